// Package chessrules adapts github.com/corentings/chess/v2 to the relay: it
// validates and applies move descriptors, reports the side to move and
// detects terminal positions. Callers own synchronization; a Position is not
// safe for concurrent use.
package chessrules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
	"github.com/judgegodwins/chess-relay/util"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrMalformedMove = errors.New("malformed move descriptor")
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Move is the wire descriptor of a move: algebraic squares plus an optional
// promotion piece (q, r, b or n).
type Move struct {
	From      string `json:"from" validate:"required,square"`
	To        string `json:"to" validate:"required,square"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
}

// Normalize lowercases and trims the descriptor fields.
func (m Move) Normalize() Move {
	return Move{
		From:      strings.ToLower(strings.TrimSpace(m.From)),
		To:        strings.ToLower(strings.TrimSpace(m.To)),
		Promotion: strings.ToLower(strings.TrimSpace(m.Promotion)),
	}
}

// UCI renders the descriptor in UCI long algebraic form, e.g. e7e8q.
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

type Position struct {
	game *chess.Game
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	return &Position{game: chess.NewGame()}
}

// Replay rebuilds a position by applying moves from the starting position.
func Replay(moves []Move) (*Position, error) {
	pos := NewPosition()
	for i, m := range moves {
		if _, err := pos.Apply(m); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, m.UCI(), err)
		}
	}
	return pos, nil
}

// Apply validates m against the position and plays it. The returned
// descriptor is the normalized move that was applied. An illegal or
// malformed move leaves the position untouched.
func (p *Position) Apply(m Move) (Move, error) {
	m = m.Normalize()

	if err := util.Validate.Struct(m); err != nil {
		return Move{}, fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}

	if p.Outcome() != chess.NoOutcome {
		return Move{}, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}

	if err := p.game.PushNotationMove(m.UCI(), chess.UCINotation{}, nil); err != nil {
		return Move{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI(), err)
	}

	p.claimDraws()

	return m, nil
}

// claimDraws concludes the game as soon as a claimable draw becomes
// available; the relay has no draw-claim message.
func (p *Position) claimDraws() {
	if p.game.Outcome() != chess.NoOutcome {
		return
	}

	for _, method := range p.game.EligibleDraws() {
		switch method {
		case chess.ThreefoldRepetition, chess.FiftyMoveRule:
			if err := p.game.Draw(method); err == nil {
				return
			}
		}
	}
}

// SideToMove reports whose turn it is.
func (p *Position) SideToMove() Color {
	if p.game.Position().Turn() == chess.White {
		return White
	}
	return Black
}

// MoveCount is the number of half-moves played so far.
func (p *Position) MoveCount() int {
	return len(p.game.Moves())
}

func (p *Position) FEN() string {
	return p.game.FEN()
}

func (p *Position) Outcome() chess.Outcome {
	return p.game.Outcome()
}
