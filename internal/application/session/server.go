package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hilthontt/bingo/internal/domain"
	"github.com/hilthontt/bingo/internal/infrastructure/events"
	"github.com/hilthontt/bingo/internal/infrastructure/metrics"
	"github.com/hilthontt/bingo/internal/infrastructure/tracing"
)

const (
	IntentCreateGame   = "create_game"
	IntentJoinGame     = "join_game"
	IntentStartGame    = "start_game"
	IntentSelectNumber = "select_number"
	IntentClaimBingo   = "claim_bingo"
	IntentDisconnect   = "disconnect"
)

const publishTimeout = 5 * time.Second

// Broadcaster delivers events to connections. Implementations must not
// block: they are called while a room is locked, which is what keeps
// delivery order equal to mutation order.
type Broadcaster interface {
	Attach(code, peerID string)
	Detach(code, peerID string)
	Publish(code string, evt domain.Event)
	SendTo(peerID string, evt domain.Event)
	Drop(code string)
}

type Options struct {
	// VerifyClaims checks a bingo claim against the called numbers instead
	// of trusting the client.
	VerifyClaims bool
}

// Server applies player intents to rooms. Every intent runs under the
// target room's lock, so intents for one room are totally ordered while
// different rooms proceed in parallel.
type Server struct {
	rooms     domain.RoomRegistry
	hub       Broadcaster
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	tracer    trace.Tracer
	opts      Options
}

func NewServer(
	rooms domain.RoomRegistry,
	hub Broadcaster,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
	opts Options,
) *Server {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Server{
		rooms:     rooms,
		hub:       hub,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    tracing.GetTracer("github.com/hilthontt/bingo/internal/application/session"),
		opts:      opts,
	}
}

func (s *Server) CreateGame(ctx context.Context, peerID, name string, gridSize int) (code string, err error) {
	ctx, span := s.startSpan(ctx, IntentCreateGame, peerID)
	defer func() { s.endSpan(span, IntentCreateGame, err) }()

	host := domain.NewPlayer(peerID, name)
	room, err := s.rooms.Create(ctx, host, gridSize, func(room *domain.Room) {
		s.hub.Attach(room.Code, peerID)
		s.deliver(room.Code, peerID, room.CreatedEvents())
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("game.code", room.Code))
	s.logger.Infow("game created", "code", room.Code, "host", host.Name, "gridSize", room.GridSize)
	s.notify(ctx, room, s.publisher.PublishGameCreated)
	return room.Code, nil
}

// JoinGame returns the canonical code of the joined room. Its rejections
// are the only ones reported back to the requester.
func (s *Server) JoinGame(ctx context.Context, peerID, code, name string) (joined string, err error) {
	ctx, span := s.startSpan(ctx, IntentJoinGame, peerID, attribute.String("game.code", code))
	defer func() { s.endSpan(span, IntentJoinGame, err) }()

	player := domain.NewPlayer(peerID, name)
	room, err := s.mutate(ctx, code, peerID, func(room *domain.Room) ([]domain.Event, error) {
		evts, err := room.Join(player)
		if err != nil {
			return nil, err
		}
		s.hub.Attach(room.Code, peerID)
		return evts, nil
	})
	if err != nil {
		s.report(peerID, err)
		return "", err
	}

	s.logger.Infow("player joined", "code", room.Code, "player", player.Name, "players", len(room.Players))
	return room.Code, nil
}

func (s *Server) StartGame(ctx context.Context, peerID, code string, gridSize int) (err error) {
	ctx, span := s.startSpan(ctx, IntentStartGame, peerID, attribute.String("game.code", code))
	defer func() { s.endSpan(span, IntentStartGame, err) }()

	room, err := s.mutate(ctx, code, peerID, func(room *domain.Room) ([]domain.Event, error) {
		return room.Start(peerID, gridSize)
	})
	if err != nil {
		return err
	}

	s.logger.Infow("game started", "code", room.Code, "players", len(room.Players), "gridSize", room.GridSize)
	s.notify(ctx, room, s.publisher.PublishGameStarted)
	return nil
}

func (s *Server) SelectNumber(ctx context.Context, peerID, code string, number int) (err error) {
	ctx, span := s.startSpan(ctx, IntentSelectNumber, peerID,
		attribute.String("game.code", code),
		attribute.Int("game.number", number),
	)
	defer func() { s.endSpan(span, IntentSelectNumber, err) }()

	_, err = s.mutate(ctx, code, peerID, func(room *domain.Room) ([]domain.Event, error) {
		return room.SelectNumber(peerID, number)
	})
	return err
}

func (s *Server) ClaimBingo(ctx context.Context, peerID, code string, board []int) (err error) {
	ctx, span := s.startSpan(ctx, IntentClaimBingo, peerID, attribute.String("game.code", code))
	defer func() { s.endSpan(span, IntentClaimBingo, err) }()

	room, err := s.mutate(ctx, code, peerID, func(room *domain.Room) ([]domain.Event, error) {
		return room.ClaimWin(peerID, board, s.opts.VerifyClaims)
	})
	if err != nil {
		return err
	}

	s.logger.Infow("game over", "code", room.Code, "winner", room.Winner, "called", len(room.CalledNumbers))
	s.notify(ctx, room, s.publisher.PublishGameFinished)
	return nil
}

// Disconnect releases everything peerID held in the room. The peer is
// detached from the room audience even if the room is already gone.
func (s *Server) Disconnect(ctx context.Context, peerID, code string) (err error) {
	ctx, span := s.startSpan(ctx, IntentDisconnect, peerID, attribute.String("game.code", code))
	defer func() { s.endSpan(span, IntentDisconnect, err) }()

	room, err := s.mutate(ctx, code, peerID, func(room *domain.Room) ([]domain.Event, error) {
		s.hub.Detach(room.Code, peerID)
		return room.Disconnect(peerID)
	})
	if err != nil {
		s.hub.Detach(code, peerID)
		return err
	}

	switch {
	case room.Status == domain.StatusTerminated:
		s.logger.Infow("game terminated", "code", room.Code, "reason", "player disconnected")
		s.notify(ctx, room, s.publisher.PublishGameTerminated)
	case room.Closed():
		s.logger.Infow("game closed", "code", room.Code, "reason", "empty")
	}
	return nil
}

// Snapshot returns a copy of the room for read-only callers.
func (s *Server) Snapshot(ctx context.Context, code string) (*domain.Room, error) {
	return s.rooms.Get(ctx, code)
}

// ReapFinished drops FINISHED rooms older than ttl along with their audiences.
func (s *Server) ReapFinished(ttl time.Duration) int {
	codes := s.rooms.ReapFinished(ttl, func(room *domain.Room) {
		s.hub.Drop(room.Code)
	})
	if len(codes) > 0 {
		s.logger.Infow("reaped finished games", "count", len(codes))
	}
	return len(codes)
}

func (s *Server) RunReaper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReapFinished(ttl)
		}
	}
}

// mutate applies fn under the room lock and delivers its events before the
// lock is released. A room left closed loses its audience once the events
// are out. The returned snapshot reflects the room after fn.
func (s *Server) mutate(ctx context.Context, code, peerID string, fn func(*domain.Room) ([]domain.Event, error)) (*domain.Room, error) {
	var snapshot *domain.Room
	err := s.rooms.Mutate(ctx, code, func(room *domain.Room) error {
		evts, err := fn(room)
		if err != nil {
			return err
		}
		s.deliver(room.Code, peerID, evts)
		if room.Closed() {
			s.hub.Drop(room.Code)
		}
		snapshot = room.Snapshot()
		return nil
	})
	return snapshot, err
}

func (s *Server) deliver(code, peerID string, evts []domain.Event) {
	for _, evt := range evts {
		switch evt.Audience {
		case domain.AudienceRoom:
			s.hub.Publish(code, evt)
		case domain.AudienceSender:
			s.hub.SendTo(peerID, evt)
		}
	}
}

func (s *Server) report(peerID string, err error) {
	if msg, ok := domain.PublicMessage(err); ok {
		s.hub.SendTo(peerID, domain.NewErrorEvent(msg))
	}
}

// notify publishes off the caller's goroutine; a slow broker never delays play.
func (s *Server) notify(ctx context.Context, room *domain.Room, publish func(context.Context, domain.Room) error) {
	snapshot := *room
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := publish(ctx, snapshot); err != nil {
			s.logger.Warnw("failed to publish game event", "code", snapshot.Code, "status", snapshot.Status, "error", err)
		}
	}()
}

func (s *Server) startSpan(ctx context.Context, intent, peerID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("peer.id", peerID))
	return s.tracer.Start(ctx, "session."+intent, trace.WithAttributes(attrs...))
}

func (s *Server) endSpan(span trace.Span, intent string, err error) {
	defer span.End()

	switch {
	case err == nil:
		s.metrics.ObserveIntent(intent, metrics.ResultOK)
	case domain.IsRejection(err):
		s.metrics.ObserveIntent(intent, metrics.ResultRejected)
		span.SetAttributes(attribute.String("rejection", err.Error()))
	default:
		s.metrics.ObserveIntent(intent, metrics.ResultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Errorw("intent failed", "intent", intent, "error", err)
	}
}
