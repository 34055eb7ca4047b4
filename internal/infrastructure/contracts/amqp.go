package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	HostID string `json:"hostId"`
	Data   []byte `json:"data"`
}

// Routing keys for game lifecycle notifications.
const (
	EventGameCreated    = "game.created"
	EventGameStarted    = "game.started"
	EventGameFinished   = "game.finished"
	EventGameTerminated = "game.terminated"
)
