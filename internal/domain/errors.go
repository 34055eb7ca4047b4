package domain

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomAlreadyStarted = errors.New("room already started")
	ErrRoomFull           = errors.New("room is full")
	ErrNameTaken          = errors.New("name already taken")

	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotInLobby       = errors.New("room is not in the lobby")
	ErrNotPlaying       = errors.New("game is not in progress")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrDuplicateNumber  = errors.New("number already called")
	ErrNumberOutOfRange = errors.New("number out of range")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrAlreadyInRoom    = errors.New("already in room")
	ErrClaimRejected    = errors.New("bingo claim rejected")
	ErrInvalidInput     = errors.New("invalid input")
)

// Only these reach the requesting connection; every other rejection is a silent no-op.
var publicMessages = []struct {
	err error
	msg string
}{
	{ErrRoomNotFound, "Game not found"},
	{ErrRoomAlreadyStarted, "Game already started"},
	{ErrRoomFull, "Game is full (Max 10 players)"},
	{ErrNameTaken, "Name already taken in this game"},
}

var rejections = []error{
	ErrRoomNotFound,
	ErrRoomAlreadyStarted,
	ErrRoomFull,
	ErrNameTaken,
	ErrNotHost,
	ErrNotInLobby,
	ErrNotPlaying,
	ErrNotYourTurn,
	ErrDuplicateNumber,
	ErrNumberOutOfRange,
	ErrPlayerNotFound,
	ErrAlreadyInRoom,
	ErrClaimRejected,
	ErrInvalidInput,
}

// PublicMessage returns the user-facing text for err, if err is one the
// initiating connection should be told about.
func PublicMessage(err error) (string, bool) {
	for _, pm := range publicMessages {
		if errors.Is(err, pm.err) {
			return pm.msg, true
		}
	}
	return "", false
}

// IsRejection reports whether err is a game rule rejection rather than a fault.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
