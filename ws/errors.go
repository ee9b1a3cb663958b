package ws

import (
	"errors"

	"github.com/judgegodwins/chess-relay/chessrules"
)

var (
	ErrSpectator           = errors.New("spectators cannot play")
	ErrNotSeated           = errors.New("player does not hold this seat")
	ErrNotYourTurn         = errors.New("not your turn")
	ErrGameNotActive       = errors.New("game is not in progress")
	ErrRematchNotAvailable = errors.New("rematch is only available after the game is over")
	ErrHeartbeatTimeout    = errors.New("client missed consecutive heartbeats")
	ErrEgressFull          = errors.New("client egress queue is full")
	ErrServerShutdown      = errors.New("server is shutting down")
)

// rejectReason maps a move error to the reason sent in move_rejected.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSpectator), errors.Is(err, ErrNotSeated):
		return RejectSpectator
	case errors.Is(err, ErrNotYourTurn):
		return RejectNotYourTurn
	case errors.Is(err, ErrGameNotActive):
		return RejectGameNotActive
	case errors.Is(err, chessrules.ErrIllegalMove):
		return RejectIllegalMove
	}
	return RejectInvalidMove
}
