package games

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hilthontt/bingo/internal/domain"
)

// errConnectionFault means the connection must be dropped.
var errConnectionFault = errors.New("connection fault")

// Sessions is the part of session.Server a connection drives.
type Sessions interface {
	CreateGame(ctx context.Context, peerID, name string, gridSize int) (string, error)
	JoinGame(ctx context.Context, peerID, code, name string) (string, error)
	StartGame(ctx context.Context, peerID, code string, gridSize int) error
	SelectNumber(ctx context.Context, peerID, code string, number int) error
	ClaimBingo(ctx context.Context, peerID, code string, board []int) error
	Disconnect(ctx context.Context, peerID, code string) error
	Snapshot(ctx context.Context, code string) (*domain.Room, error)
}

// Connection turns the frames of one socket into session intents and
// remembers the single room the socket is bound to.
type Connection struct {
	id       string
	sessions Sessions
	validate *validator.Validate
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	roomCode  string
	closeOnce sync.Once
}

// NewConnection allows ratePerSecond intents with bursts of burst. A
// non-positive rate disables the limit.
func NewConnection(id string, sessions Sessions, ratePerSecond float64, burst int, logger *zap.SugaredLogger) *Connection {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Connection{
		id:       id,
		sessions: sessions,
		validate: newValidator(),
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With("peer", id),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// RoomCode returns the code of the room the connection is bound to, if any.
func (c *Connection) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

// Handle applies one inbound frame. Rejected or malformed intents are
// dropped; only a fault that leaves the connection unusable is returned.
func (c *Connection) Handle(ctx context.Context, raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("panic while handling intent", "panic", r)
			err = fmt.Errorf("%w: %v", errConnectionFault, r)
		}
	}()

	if !c.limiter.Allow() {
		c.logger.Debugw("intent rate exceeded, dropping frame")
		return nil
	}

	intent, payload, err := decodeIntent(c.validate, raw)
	if err != nil {
		c.logger.Warnw("dropping inbound frame", "intent", intent, "error", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := payload.(type) {
	case *createGameIntent:
		if !c.canBindLocked(ctx) {
			return nil
		}
		if code, err := c.sessions.CreateGame(ctx, c.id, p.PlayerName, p.GridSize); err == nil {
			c.roomCode = code
		}
	case *joinGameIntent:
		if !c.canBindLocked(ctx) {
			return nil
		}
		if code, err := c.sessions.JoinGame(ctx, c.id, p.GameID, p.PlayerName); err == nil {
			c.roomCode = code
		}
	case *startGameIntent:
		_ = c.sessions.StartGame(ctx, c.id, p.GameID, p.GridSize)
	case *selectNumberIntent:
		_ = c.sessions.SelectNumber(ctx, c.id, p.GameID, p.Number)
	case *claimBingoIntent:
		_ = c.sessions.ClaimBingo(ctx, c.id, p.GameID, p.Board)
	}
	return nil
}

// Close releases the connection's room exactly once, however many times
// the transport reports the socket gone.
func (c *Connection) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		code := c.roomCode
		c.roomCode = ""
		c.mu.Unlock()

		if code == "" {
			return
		}
		if err := c.sessions.Disconnect(ctx, c.id, code); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			c.logger.Debugw("disconnect ignored", "code", code, "error", err)
		}
	})
}

// canBindLocked reports whether the connection may enter a new room. A
// binding to a room that has ended is released first; a live binding
// blocks create and join.
func (c *Connection) canBindLocked(ctx context.Context) bool {
	if c.roomCode == "" {
		return true
	}

	room, err := c.sessions.Snapshot(ctx, c.roomCode)
	if err != nil {
		c.roomCode = ""
		return true
	}

	member := slices.ContainsFunc(room.Players, func(p domain.Player) bool {
		return p.ID == c.id
	})

	switch {
	case !member:
		c.roomCode = ""
		return true
	case room.Status == domain.StatusLobby || room.Status == domain.StatusPlaying:
		c.logger.Debugw("already in a live game, ignoring", "code", room.Code)
		return false
	default:
		_ = c.sessions.Disconnect(ctx, c.id, c.roomCode)
		c.roomCode = ""
		return true
	}
}
