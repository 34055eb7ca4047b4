package domain

type EventType string

const (
	EventGameCreated    EventType = "game_created"
	EventJoinedGame     EventType = "joined_game"
	EventPlayerJoined   EventType = "player_joined"
	EventPlayerLeft     EventType = "player_left"
	EventGameStarted    EventType = "game_started"
	EventNumberSelected EventType = "number_selected"
	EventGameOver       EventType = "game_over"
	EventGameTerminated EventType = "game_terminated"
	EventError          EventType = "error"
)

// Audience says who receives an event: every connection attached to the
// room, or only the connection whose intent produced it.
type Audience uint8

const (
	AudienceRoom Audience = iota
	AudienceSender
)

// Event is an outbound notification produced by a room operation. Payloads
// never alias room state, so they can be serialized after the room lock is
// released.
type Event struct {
	Type     EventType
	Audience Audience
	Data     any
}

type GameCreatedPayload struct {
	GameID  string   `json:"gameId"`
	Players []Player `json:"players"`
}

type JoinedGamePayload struct {
	GameID   string   `json:"gameId"`
	Players  []Player `json:"players"`
	GridSize int      `json:"gridSize"`
}

type RosterPayload struct {
	Players []Player `json:"players"`
}

type GameStartedPayload struct {
	Players     []Player `json:"players"`
	CurrentTurn string   `json:"currentTurn"`
	GridSize    int      `json:"gridSize"`
}

type NumberSelectedPayload struct {
	Number        int    `json:"number"`
	CalledNumbers []int  `json:"calledNumbers"`
	NextTurn      string `json:"nextTurn"`
	Selector      string `json:"selector"`
}

type GameOverPayload struct {
	Winner string `json:"winner"`
}

type GameTerminatedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewErrorEvent builds the error notification sent to a rejected requester.
func NewErrorEvent(message string) Event {
	return toSender(EventError, ErrorPayload{Message: message})
}

func toRoom(t EventType, data any) Event {
	return Event{Type: t, Audience: AudienceRoom, Data: data}
}

func toSender(t EventType, data any) Event {
	return Event{Type: t, Audience: AudienceSender, Data: data}
}
