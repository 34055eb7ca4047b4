package ws

import "github.com/hilthontt/bingo/internal/domain"

type WSMessage struct {
	Type   string `json:"type"`
	GameID string `json:"gameId,omitempty"`
	Data   any    `json:"data"`
}

type ConnectedPayload struct {
	PlayerID string `json:"playerId"`
}

func NewConnected(playerID string) *WSMessage {
	return &WSMessage{
		Type: Connected,
		Data: ConnectedPayload{PlayerID: playerID},
	}
}

func NewEvent(gameID string, evt domain.Event) *WSMessage {
	return &WSMessage{
		Type:   string(evt.Type),
		GameID: gameID,
		Data:   evt.Data,
	}
}

func NewError(gameID, message string) *WSMessage {
	return NewEvent(gameID, domain.NewErrorEvent(message))
}
