package games

import (
	"time"

	"github.com/hilthontt/bingo/internal/domain"
)

// Connection handles stay private; the REST view exposes names only.
type playerResponse struct {
	Name string `json:"name"`
}

type gameResponse struct {
	GameID        string           `json:"gameId"`
	Status        domain.Status    `json:"status"`
	GridSize      int              `json:"gridSize"`
	Players       []playerResponse `json:"players"`
	Host          string           `json:"host,omitempty"`
	CurrentTurn   string           `json:"currentTurn,omitempty"`
	CalledNumbers []int            `json:"calledNumbers"`
	Winner        string           `json:"winner,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func newGameResponse(room *domain.Room) gameResponse {
	resp := gameResponse{
		GameID:        room.Code,
		Status:        room.Status,
		GridSize:      room.GridSize,
		Players:       make([]playerResponse, len(room.Players)),
		CalledNumbers: room.CalledNumbers,
		Winner:        room.Winner,
		CreatedAt:     room.CreatedAt,
	}
	for i, p := range room.Players {
		resp.Players[i] = playerResponse{Name: p.Name}
	}
	if host, ok := room.Host(); ok {
		resp.Host = host.Name
	}
	if current, ok := room.CurrentPlayer(); ok {
		resp.CurrentTurn = current.Name
	}
	return resp
}
