package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// Phase thresholds. The scramble override is checked first because flagging
// dominates every positional consideration.
const (
	openingMoveLimit     = 10   // full moves
	endgameMaterialLimit = 2600 // total non-king material, both sides, centipawns
	pressureImbalance    = 400  // centipawns of material advantage either way
)

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

// Tracker holds the canonical board and derives the signals the Pressure
// Model consumes. All legality checking is delegated to notnil/chess.
type Tracker struct {
	game *chess.Game
}

func NewTracker(fen string) (*Tracker, error) {
	if fen == "" {
		return &Tracker{game: chess.NewGame()}, nil
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: bad FEN: %v", ErrIllegalMove, err)
	}
	return &Tracker{game: chess.NewGame(opt)}, nil
}

func (t *Tracker) Position() *chess.Position { return t.game.Position() }
func (t *Tracker) FEN() string               { return t.game.Position().String() }
func (t *Tracker) Turn() chess.Color         { return t.game.Position().Turn() }
func (t *Tracker) Outcome() chess.Outcome    { return t.game.Outcome() }
func (t *Tracker) Method() chess.Method      { return t.game.Method() }
func (t *Tracker) MovesPlayed() int          { return len(t.game.Moves()) }

// Resign forwards a resignation to the underlying game.
func (t *Tracker) Resign(color chess.Color) { t.game.Resign(color) }

// Apply resolves input (SAN like "Nf3" or coordinate like "g1f3") to a single
// legal move and applies it. On failure nothing is mutated and the error wraps
// ErrIllegalMove with the rejection reason.
func (t *Tracker) Apply(input string) (uciStr, sanStr string, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", fmt.Errorf("%w: empty input", ErrIllegalMove)
	}

	pos := t.game.Position()
	move, sanErr := chess.AlgebraicNotation{}.Decode(pos, input)
	if sanErr != nil {
		var uciErr error
		move, uciErr = chess.UCINotation{}.Decode(pos, input)
		if uciErr != nil {
			return "", "", fmt.Errorf("%w: %q is not a recognized move (%v)", ErrIllegalMove, input, sanErr)
		}
	}

	sanStr = chess.AlgebraicNotation{}.Encode(pos, move)
	uciStr = chess.UCINotation{}.Encode(pos, move)
	if err := t.game.Move(move); err != nil {
		return "", "", fmt.Errorf("%w: %q is not legal here", ErrIllegalMove, input)
	}
	return uciStr, sanStr, nil
}

// FullMoves parses the full-move counter from the FEN tail.
func (t *Tracker) FullMoves() int {
	parts := strings.Split(t.FEN(), " ")
	moveNum := 1
	if len(parts) >= 6 {
		fmt.Sscanf(parts[5], "%d", &moveNum)
	}
	return moveNum
}

// MaterialBalance returns white material minus black material in centipawns.
func (t *Tracker) MaterialBalance() int {
	balance := 0
	for _, piece := range t.game.Position().Board().SquareMap() {
		v := pieceValues[piece.Type()]
		if piece.Color() == chess.White {
			balance += v
		} else {
			balance -= v
		}
	}
	return balance
}

// TotalMaterial returns the summed non-king material of both sides.
func (t *Tracker) TotalMaterial() int {
	total := 0
	for _, piece := range t.game.Position().Board().SquareMap() {
		total += pieceValues[piece.Type()]
	}
	return total
}

// ClassifyPhase recomputes the pressure phase from the current state; it is
// never stored, so it cannot desynchronize from the position it summarizes.
func (t *Tracker) ClassifyPhase(remaining, scrambleThreshold time.Duration) models.PressurePhase {
	if remaining < scrambleThreshold {
		return models.PhaseTimeScramble
	}
	if t.FullMoves() <= openingMoveLimit {
		return models.PhaseOpening
	}
	if t.TotalMaterial() <= endgameMaterialLimit {
		return models.PhaseEndgame
	}
	balance := t.MaterialBalance()
	if balance >= pressureImbalance || balance <= -pressureImbalance {
		return models.PhasePressure
	}
	return models.PhaseMidgame
}
