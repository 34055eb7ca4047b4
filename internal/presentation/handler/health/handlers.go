package health

import (
	"net/http"
	"time"

	"github.com/hilthontt/bingo/internal/infrastructure/json"
)

// Gauge reads a live count at request time.
type Gauge func() int

type Handler struct {
	connections Gauge
	games       Gauge
	started     time.Time
}

func NewHandler(connections, games Gauge) *Handler {
	return &Handler{
		connections: connections,
		games:       games,
		started:     time.Now(),
	}
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	data := healthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Connections: h.connections(),
		Games:       h.games(),
	}
	json.Write(w, http.StatusOK, data)
}
