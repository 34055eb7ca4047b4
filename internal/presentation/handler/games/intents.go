package games

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hilthontt/bingo/internal/application/session"
)

var errUnknownIntent = errors.New("unknown intent")

// envelope is the shape of every inbound frame.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type createGameIntent struct {
	PlayerName string `json:"playerName" validate:"required"`
	GridSize   int    `json:"gridSize" validate:"omitempty,oneof=5 10"`
}

// joinGameIntent leaves the code unchecked beyond presence so that a
// mistyped code is answered with "Game not found" by the registry.
type joinGameIntent struct {
	GameID     string `json:"gameId" validate:"required"`
	PlayerName string `json:"playerName" validate:"required"`
}

type startGameIntent struct {
	GameID   string `json:"gameId" validate:"required,len=4,alphanum"`
	GridSize int    `json:"gridSize" validate:"omitempty,oneof=5 10"`
}

type selectNumberIntent struct {
	GameID string `json:"gameId" validate:"required,len=4,alphanum"`
	Number int    `json:"number" validate:"required,min=1"`
}

// claimBingoIntent carries the claimant's board only when claims are
// verified server-side.
type claimBingoIntent struct {
	GameID string `json:"gameId" validate:"required,len=4,alphanum"`
	Board  []int  `json:"board" validate:"omitempty,max=100,dive,min=1"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeIntent parses raw into the payload struct for its type and
// validates it.
func decodeIntent(v *validator.Validate, raw []byte) (string, any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("malformed frame: %w", err)
	}

	var payload any
	switch env.Type {
	case session.IntentCreateGame:
		payload = &createGameIntent{}
	case session.IntentJoinGame:
		payload = &joinGameIntent{}
	case session.IntentStartGame:
		payload = &startGameIntent{}
	case session.IntentSelectNumber:
		payload = &selectNumberIntent{}
	case session.IntentClaimBingo:
		payload = &claimBingoIntent{}
	default:
		return env.Type, nil, fmt.Errorf("%w %q", errUnknownIntent, env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return env.Type, nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
	}
	if err := v.Struct(payload); err != nil {
		return env.Type, nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return env.Type, payload, nil
}
