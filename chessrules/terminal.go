package chessrules

import "github.com/corentings/chess/v2"

type TerminalKind int

const (
	NotTerminal TerminalKind = iota
	Checkmate
	Stalemate
	Drawn
)

// Reason codes reported in game_over.
const (
	ReasonCheckmate            = "checkmate"
	ReasonStalemate            = "stalemate"
	ReasonThreefoldRepetition  = "threefold_repetition"
	ReasonFivefoldRepetition   = "fivefold_repetition"
	ReasonFiftyMoveRule        = "fifty_move_rule"
	ReasonSeventyFiveMoveRule  = "seventy_five_move_rule"
	ReasonInsufficientMaterial = "insufficient_material"
	ReasonDraw                 = "draw"
)

type Terminal struct {
	Kind   TerminalKind
	Winner Color // set only for Checkmate
	Reason string
}

func (t Terminal) IsTerminal() bool {
	return t.Kind != NotTerminal
}

// Result is the human readable result line.
func (t Terminal) Result() string {
	switch t.Kind {
	case Checkmate:
		if t.Winner == White {
			return "Checkmate. White wins"
		}
		return "Checkmate. Black wins"
	case Stalemate:
		return "Stalemate. Draw"
	case Drawn:
		switch t.Reason {
		case ReasonThreefoldRepetition, ReasonFivefoldRepetition:
			return "Draw by repetition"
		case ReasonFiftyMoveRule, ReasonSeventyFiveMoveRule:
			return "Draw by the fifty-move rule"
		case ReasonInsufficientMaterial:
			return "Draw by insufficient material"
		}
		return "Draw"
	}
	return ""
}

// Terminal inspects the position for game-ending conditions.
func (p *Position) Terminal() Terminal {
	outcome := p.game.Outcome()
	if outcome == chess.NoOutcome {
		return Terminal{Kind: NotTerminal}
	}

	method := p.game.Method()

	switch {
	case method == chess.Checkmate:
		winner := White
		if outcome == chess.BlackWon {
			winner = Black
		}
		return Terminal{Kind: Checkmate, Winner: winner, Reason: ReasonCheckmate}
	case method == chess.Stalemate:
		return Terminal{Kind: Stalemate, Reason: ReasonStalemate}
	}

	return Terminal{Kind: Drawn, Reason: drawReason(method)}
}

func drawReason(method chess.Method) string {
	switch method {
	case chess.ThreefoldRepetition:
		return ReasonThreefoldRepetition
	case chess.FivefoldRepetition:
		return ReasonFivefoldRepetition
	case chess.FiftyMoveRule:
		return ReasonFiftyMoveRule
	case chess.SeventyFiveMoveRule:
		return ReasonSeventyFiveMoveRule
	case chess.InsufficientMaterial:
		return ReasonInsufficientMaterial
	}
	return ReasonDraw
}
