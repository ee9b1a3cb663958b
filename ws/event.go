package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/judgegodwins/chess-relay/chessrules"
)

// Event is one protocol message. On the wire it is a flat JSON object whose
// "type" field selects the payload shape; Payload holds the remaining fields.
type Event struct {
	Type    string
	Payload json.RawMessage
}

type EventHandler func(ctx context.Context, evt Event, c *Client) error

const (
	EventInit            = "init"
	EventGameStarted     = "game_started"
	EventMove            = "move"
	EventMoveRejected    = "move_rejected"
	EventGameOver        = "game_over"
	EventRematchRequest  = "rematch_request"
	EventRematchAccept   = "rematch_accept"
	EventRematchDecline  = "rematch_decline"
	EventRematchDeclined = "rematch_declined"
	EventRematchStarted  = "rematch_started"
	EventPlayerLeft      = "player_left"
	EventError           = "error"
)

// Reasons carried by move_rejected.
const (
	RejectSpectator     = "spectator"
	RejectNotYourTurn   = "not_your_turn"
	RejectIllegalMove   = "illegal_move"
	RejectInvalidMove   = "invalid_move"
	RejectGameNotActive = "game_not_active"
)

type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

// Seat returns the seat color of a playing role.
func (r Role) Seat() (chessrules.Color, bool) {
	switch r {
	case RoleWhite:
		return chessrules.White, true
	case RoleBlack:
		return chessrules.Black, true
	}
	return "", false
}

func roleOf(c chessrules.Color) Role {
	if c == chessrules.White {
		return RoleWhite
	}
	return RoleBlack
}

type PayloadInit struct {
	Color             Role              `json:"color"`
	PlayerID          string            `json:"playerId"`
	Moves             []chessrules.Move `json:"moves"`
	OpponentConnected bool              `json:"opponentConnected"`
	GameStarted       bool              `json:"gameStarted"`
	WhitePlayer       string            `json:"whitePlayer"`
	BlackPlayer       string            `json:"blackPlayer"`
	Status            GameStatus        `json:"status"`
	FEN               string            `json:"fen"`
}

type PayloadGameStarted struct {
	WhitePlayer string `json:"whitePlayer"`
	BlackPlayer string `json:"blackPlayer"`
}

type PayloadMove struct {
	Move chessrules.Move `json:"move"`
}

type PayloadMoveRejected struct {
	Reason string          `json:"reason"`
	Move   chessrules.Move `json:"move"`
}

type PayloadGameOver struct {
	Result string           `json:"result"`
	Reason string           `json:"reason"`
	Winner chessrules.Color `json:"winner"`
}

type PayloadPlayer struct {
	PlayerID string `json:"playerId"`
}

type PayloadPlayerLeft struct {
	PlayerID string `json:"playerId"`
	Color    Role   `json:"color"`
}

type PayloadRematchStarted struct {
	Color       Role              `json:"color"`
	PlayerID    string            `json:"playerId"`
	Moves       []chessrules.Move `json:"moves"`
	WhitePlayer string            `json:"whitePlayer"`
	BlackPlayer string            `json:"blackPlayer"`
}

type PayloadError struct {
	Message string `json:"message"`
}

// PayloadRejection is written once, without a type, before closing a
// connection whose handshake parameters are invalid.
type PayloadRejection struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func NewEvent(evtType string, payload any) (Event, error) {
	var b []byte

	if payload != nil {
		var err error
		if b, err = json.Marshal(payload); err != nil {
			return Event{}, err
		}
	}

	return Event{Type: evtType, Payload: b}, nil
}

func NewErrorEvent(message string) (Event, error) {
	return NewEvent(EventError, PayloadError{Message: message})
}

// MarshalJSON flattens the payload fields next to "type".
func (e Event) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)

	if len(e.Payload) > 0 && string(e.Payload) != "null" {
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			return nil, err
		}
	}

	t, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = t

	return json.Marshal(fields)
}

// UnmarshalJSON keeps the whole object as payload so handlers can decode
// their own fields from it.
func (e *Event) UnmarshalJSON(b []byte) error {
	var head struct {
		Type *string `json:"type"`
	}

	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}

	if head.Type == nil {
		return errors.New("message has no type")
	}

	e.Type = *head.Type
	e.Payload = append(json.RawMessage(nil), b...)

	return nil
}
