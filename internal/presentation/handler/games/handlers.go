package games

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/hilthontt/bingo/internal/domain"
	"github.com/hilthontt/bingo/internal/infrastructure/json"
	"github.com/hilthontt/bingo/internal/infrastructure/metrics"
	"github.com/hilthontt/bingo/internal/infrastructure/ws"
)

const qrSize = 256

type Options struct {
	IntentRate  float64
	IntentBurst int
	// PublicURL is the base of join links. Empty derives it from the request.
	PublicURL string
}

type Handler struct {
	sessions Sessions
	hub      *ws.Hub
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	opts     Options
}

func NewHandler(sessions Sessions, hub *ws.Hub, m *metrics.Metrics, logger *zap.SugaredLogger, opts Options) *Handler {
	return &Handler{
		sessions: sessions,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// ServeWS upgrades the request and runs the connection until the socket
// closes. The read pump runs on the request goroutine.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.hub.Upgrade(w, r)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	client := ws.NewClient(conn, id, h.logger)
	session := NewConnection(id, h.sessions, h.opts.IntentRate, h.opts.IntentBurst, h.logger)

	h.hub.Register(client)
	h.metrics.Connections.Inc()
	h.logger.Debugw("connection opened", "peer", id, "remote", r.RemoteAddr)

	defer func() {
		session.Close(context.WithoutCancel(r.Context()))
		h.hub.Unregister(id)
		h.metrics.Connections.Dec()
		h.logger.Debugw("connection closed", "peer", id)
	}()

	client.Enqueue(ws.NewConnected(id))
	go client.WriteMessages()

	ctx := r.Context()
	client.ReadMessages(func(raw []byte) {
		if err := session.Handle(ctx, raw); err != nil {
			client.Close()
		}
	})
}

func (h *Handler) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookup(w, r)
	if !ok {
		return
	}
	json.Write(w, http.StatusOK, newGameResponse(room))
}

// GetGameQRHandler renders the game's join link as a PNG QR code.
func (h *Handler) GetGameQRHandler(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookup(w, r)
	if !ok {
		return
	}

	png, err := qrcode.Encode(h.joinURL(r, room.Code), qrcode.Medium, qrSize)
	if err != nil {
		h.logger.Errorw("failed to render QR code", "code", room.Code, "error", err)
		json.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*domain.Room, bool) {
	gameID := chi.URLParam(r, "gameId")
	if gameID == "" {
		json.WriteBadRequestError(w, "game ID is missing")
		return nil, false
	}

	room, err := h.sessions.Snapshot(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			msg, _ := domain.PublicMessage(err)
			json.WriteNotFoundError(w, msg)
			return nil, false
		}
		h.logger.Errorw("failed to load game", "code", gameID, "error", err)
		json.WriteInternalError(w)
		return nil, false
	}
	return room, true
}

func (h *Handler) joinURL(r *http.Request, code string) string {
	base := h.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimRight(base, "/") + "/?game=" + url.QueryEscape(code)
}
