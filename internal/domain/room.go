package domain

import (
	"context"
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusLobby      Status = "LOBBY"
	StatusPlaying    Status = "PLAYING"
	StatusFinished   Status = "FINISHED"
	StatusTerminated Status = "TERMINATED"
)

// Statuses lists every room status in lifecycle order.
var Statuses = []Status{StatusLobby, StatusPlaying, StatusFinished, StatusTerminated}

const (
	MaxPlayers      = 10
	DefaultGridSize = 5
	// WinningLines is how many completed lines a board needs for a bingo.
	WinningLines = 5
)

var supportedGridSizes = []int{5, 10}

func IsSupportedGridSize(n int) bool {
	return slices.Contains(supportedGridSizes, n)
}

// Room is one bingo game. It is not safe for concurrent use; the registry
// serializes every mutation of a given room.
type Room struct {
	Code          string    `json:"gameId"`
	HostID        string    `json:"hostId"`
	Players       []Player  `json:"players"`
	Status        Status    `json:"status"`
	GridSize      int       `json:"gridSize"`
	CalledNumbers []int     `json:"calledNumbers"`
	TurnIndex     int       `json:"turnIndex"`
	Winner        string    `json:"winner,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	FinishedAt    time.Time `json:"finishedAt,omitzero"`
}

type RoomRegistry interface {
	// Create registers a new LOBBY room hosted by host. onCreate, when not
	// nil, runs under the room's lock before any other caller can reach it.
	Create(ctx context.Context, host Player, gridSize int, onCreate func(*Room)) (*Room, error)
	Get(ctx context.Context, code string) (*Room, error)
	Mutate(ctx context.Context, code string, fn func(*Room) error) error
	Remove(ctx context.Context, code string) error
	ReapFinished(olderThan time.Duration, onReap func(*Room)) []string
}

func NewRoom(code string, host Player, gridSize int) (*Room, error) {
	if code == "" || !host.valid() {
		return nil, ErrInvalidInput
	}
	if !IsSupportedGridSize(gridSize) {
		gridSize = DefaultGridSize
	}

	return &Room{
		Code:          code,
		HostID:        host.ID,
		Players:       []Player{host.clone()},
		Status:        StatusLobby,
		GridSize:      gridSize,
		CalledNumbers: []int{},
		CreatedAt:     time.Now(),
	}, nil
}

// CreatedEvents is the acknowledgement sent to the host of a fresh room.
func (r *Room) CreatedEvents() []Event {
	return []Event{
		toSender(EventGameCreated, GameCreatedPayload{GameID: r.Code, Players: r.roster()}),
	}
}

func (r *Room) Join(p Player) ([]Event, error) {
	if !p.valid() {
		return nil, ErrInvalidInput
	}
	if r.Status != StatusLobby {
		return nil, ErrRoomAlreadyStarted
	}
	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	if r.indexOf(p.ID) >= 0 {
		return nil, ErrAlreadyInRoom
	}
	if r.hasName(p.Name) {
		return nil, ErrNameTaken
	}

	r.Players = append(r.Players, p.clone())
	players := r.roster()
	return []Event{
		toRoom(EventPlayerJoined, RosterPayload{Players: players}),
		toSender(EventJoinedGame, JoinedGamePayload{GameID: r.Code, Players: r.roster(), GridSize: r.GridSize}),
	}, nil
}

// Start moves a LOBBY room into PLAYING. An unsupported gridSize keeps the
// size chosen at creation.
func (r *Room) Start(requesterID string, gridSize int) ([]Event, error) {
	if r.Status != StatusLobby {
		return nil, ErrNotInLobby
	}
	if requesterID != r.HostID {
		return nil, ErrNotHost
	}
	if IsSupportedGridSize(gridSize) {
		r.GridSize = gridSize
	}

	r.Status = StatusPlaying
	r.TurnIndex = 0
	r.CalledNumbers = []int{}
	return []Event{
		toRoom(EventGameStarted, GameStartedPayload{
			Players:     r.roster(),
			CurrentTurn: r.Players[0].ID,
			GridSize:    r.GridSize,
		}),
	}, nil
}

func (r *Room) SelectNumber(requesterID string, number int) ([]Event, error) {
	selector, err := r.validateCall(requesterID, number)
	if err != nil {
		return nil, err
	}

	r.CalledNumbers = append(r.CalledNumbers, number)
	next := r.advanceTurn()
	return []Event{
		toRoom(EventNumberSelected, NumberSelectedPayload{
			Number:        number,
			CalledNumbers: slices.Clone(r.CalledNumbers),
			NextTurn:      next.ID,
			Selector:      selector.Name,
		}),
	}, nil
}

// ClaimWin ends the game with the requester as winner. With verify unset the
// claim is trusted; otherwise board must be a valid permutation with at least
// WinningLines lines completed by the called numbers.
func (r *Room) ClaimWin(requesterID string, board []int, verify bool) ([]Event, error) {
	if r.Status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	idx := r.indexOf(requesterID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}
	if verify {
		if !IsValidBoard(board, r.GridSize) || CompletedLines(board, r.CalledNumbers, r.GridSize) < WinningLines {
			return nil, ErrClaimRejected
		}
		r.Players[idx].Board = slices.Clone(board)
	}

	r.Status = StatusFinished
	r.Winner = r.Players[idx].Name
	r.FinishedAt = time.Now()
	return []Event{
		toRoom(EventGameOver, GameOverPayload{Winner: r.Winner}),
	}, nil
}

// Leave removes a player from a LOBBY room.
func (r *Room) Leave(playerID string) ([]Event, error) {
	if r.Status != StatusLobby {
		return nil, ErrNotInLobby
	}
	return r.removePlayer(playerID)
}

// Disconnect applies the departure of a player's connection. A departure
// mid-game terminates the room for everyone.
func (r *Room) Disconnect(playerID string) ([]Event, error) {
	idx := r.indexOf(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}

	switch r.Status {
	case StatusPlaying:
		name := r.Players[idx].Name
		r.Status = StatusTerminated
		return []Event{
			toRoom(EventGameTerminated, GameTerminatedPayload{
				Reason: fmt.Sprintf("Game ended because %s went offline.", name),
			}),
		}, nil
	case StatusLobby, StatusFinished:
		return r.removePlayer(playerID)
	default:
		return nil, nil
	}
}

// Closed reports whether the room should leave the registry.
func (r *Room) Closed() bool {
	return r.Status == StatusTerminated || len(r.Players) == 0
}

func (r *Room) Host() (Player, bool) {
	idx := r.indexOf(r.HostID)
	if idx < 0 {
		return Player{}, false
	}
	return r.Players[idx], true
}

// Snapshot returns a deep copy of the room.
func (r *Room) Snapshot() *Room {
	cp := *r
	cp.Players = r.roster()
	cp.CalledNumbers = slices.Clone(r.CalledNumbers)
	if cp.CalledNumbers == nil {
		cp.CalledNumbers = []int{}
	}
	return &cp
}

// removePlayer keeps roster order, which is also turn order. A departing
// LOBBY host hands the room to the next player in line.
func (r *Room) removePlayer(playerID string) ([]Event, error) {
	idx := r.indexOf(playerID)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}

	r.Players = slices.Delete(r.Players, idx, idx+1)
	if playerID == r.HostID && len(r.Players) > 0 && r.Status == StatusLobby {
		r.HostID = r.Players[0].ID
	}
	if len(r.Players) == 0 {
		return nil, nil
	}
	return []Event{
		toRoom(EventPlayerLeft, RosterPayload{Players: r.roster()}),
	}, nil
}

func (r *Room) indexOf(playerID string) int {
	return slices.IndexFunc(r.Players, func(p Player) bool {
		return p.ID == playerID
	})
}

func (r *Room) hasName(name string) bool {
	return slices.ContainsFunc(r.Players, func(p Player) bool {
		return p.Name == name
	})
}

func (r *Room) roster() []Player {
	players := make([]Player, len(r.Players))
	for i, p := range r.Players {
		players[i] = p.clone()
	}
	return players
}
