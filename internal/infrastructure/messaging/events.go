package messaging

import "github.com/hilthontt/bingo/internal/domain"

type GameEventData struct {
	Game domain.Room `json:"game"`
}
