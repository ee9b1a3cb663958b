package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/judgegodwins/chess-relay/chessrules"
	"go.uber.org/zap"
)

// MoveHandler validates and applies a move. Rejected moves change nothing
// and are only reported back to the sender.
func MoveHandler(ctx context.Context, e Event, c *Client) error {
	var payload PayloadMove

	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		c.reject(chessrules.Move{}, RejectInvalidMove)
		return fmt.Errorf("decode move: %w", err)
	}

	applied, err := c.room.TryMove(c, payload.Move)
	if err != nil {
		c.reject(payload.Move, rejectReason(err))
		return fmt.Errorf("move %s: %w", payload.Move.UCI(), err)
	}

	c.logger.Debug("move applied", zap.String("move", applied.UCI()))

	return nil
}

// RematchRequestHandler votes for a rematch and asks the opponent.
func RematchRequestHandler(ctx context.Context, e Event, c *Client) error {
	started, err := c.room.VoteRematch(c, true)
	if err != nil {
		return fmt.Errorf("rematch request: %w", err)
	}

	c.logger.Info("rematch requested", zap.Bool("started", started))

	return nil
}

// RematchAcceptHandler votes for a rematch without notifying the opponent.
func RematchAcceptHandler(ctx context.Context, e Event, c *Client) error {
	started, err := c.room.VoteRematch(c, false)
	if err != nil {
		return fmt.Errorf("rematch accept: %w", err)
	}

	c.logger.Info("rematch accepted", zap.Bool("started", started))

	return nil
}

func RematchDeclineHandler(ctx context.Context, e Event, c *Client) error {
	if err := c.room.DeclineRematch(c); err != nil {
		return fmt.Errorf("rematch decline: %w", err)
	}

	c.logger.Info("rematch declined")

	return nil
}

func (c *Client) reject(m chessrules.Move, reason string) {
	if err := c.PushEventToEgress(EventMoveRejected, PayloadMoveRejected{Reason: reason, Move: m}); err != nil {
		c.logger.Error("cannot build rejection", zap.Error(err))
	}
}
