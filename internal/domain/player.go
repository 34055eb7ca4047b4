package domain

import "slices"

type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Board []int  `json:"board"`
}

// NewPlayer binds a display name to a connection handle. Names are kept
// exactly as sent and compared case-sensitively.
func NewPlayer(id, name string) Player {
	return Player{
		ID:    id,
		Name:  name,
		Board: []int{},
	}
}

func (p Player) valid() bool {
	return p.ID != "" && p.Name != ""
}

func (p Player) clone() Player {
	p.Board = slices.Clone(p.Board)
	if p.Board == nil {
		p.Board = []int{}
	}
	return p
}
