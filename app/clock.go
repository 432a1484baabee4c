package app

import (
	"time"

	"github.com/notnil/chess"

	"github.com/0xYach/liquid-pressure-chess/app/config"
	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// expected full game length, used to apportion remaining time across moves
const expectedGameMoves = 40

type sideClock struct {
	remaining time.Duration
	lastStart time.Time
	flagged   bool
}

// GameClock owns the two-sided game clock. Remaining time only decreases
// between charges (plus any configured increment); it floors at zero and the
// side transitions to flagged exactly once.
type GameClock struct {
	sides     [2]sideClock
	increment time.Duration
	now       func() time.Time
}

func NewGameClock(initial, increment time.Duration) *GameClock {
	c := &GameClock{increment: increment, now: time.Now}
	c.sides[0].remaining = initial
	c.sides[1].remaining = initial
	return c
}

func sideIdx(color chess.Color) int {
	if color == chess.Black {
		return 1
	}
	return 0
}

// StartTurn records the moment a side went on the move.
func (c *GameClock) StartTurn(color chess.Color) {
	c.sides[sideIdx(color)].lastStart = c.now()
}

// Elapsed returns wall time since the side's turn started.
func (c *GameClock) Elapsed(color chess.Color) time.Duration {
	s := c.sides[sideIdx(color)]
	if s.lastStart.IsZero() {
		return 0
	}
	return c.now().Sub(s.lastStart)
}

func (c *GameClock) Remaining(color chess.Color) time.Duration {
	return c.sides[sideIdx(color)].remaining
}

func (c *GameClock) Flagged(color chess.Color) bool {
	return c.sides[sideIdx(color)].flagged
}

// ChargeTurn deducts max(elapsedWall, simulatedThink) from the side's
// remaining time. The simulated think is capped at the remaining time first,
// so a simulated delay can never flag the side on its own; real elapsed wall
// time can. Returns true on the transition to flagged.
func (c *GameClock) ChargeTurn(color chess.Color, elapsedWall, simulatedThink time.Duration) bool {
	s := &c.sides[sideIdx(color)]
	if s.flagged {
		return false
	}

	if simulatedThink > s.remaining {
		simulatedThink = s.remaining
	}
	charge := elapsedWall
	if simulatedThink > charge {
		charge = simulatedThink
	}
	if charge < 0 {
		charge = 0
	}

	s.remaining -= charge
	if s.remaining <= 0 {
		s.remaining = 0
		s.flagged = true
		return true
	}
	s.remaining += c.increment
	return false
}

// ClockPolicy computes per-move time budgets. Pure; safe to call anywhere.
type ClockPolicy struct {
	ScrambleThreshold time.Duration
	SafetyFraction    float64
	OpeningBudget     time.Duration
	ScrambleBudget    time.Duration
}

func NewClockPolicy(p config.PressureConfig) ClockPolicy {
	return ClockPolicy{
		ScrambleThreshold: p.ScrambleThreshold,
		SafetyFraction:    p.SafetyFraction,
		OpeningBudget:     400 * time.Millisecond,
		ScrambleBudget:    150 * time.Millisecond,
	}
}

// BudgetFor returns the search budget for one move: a fixed fast floor in the
// opening, a near-instant floor in time-scramble, and otherwise a slice of
// remaining time over the moves the game is still expected to last, weighted
// up in the midgame and pressure phases.
func (p ClockPolicy) BudgetFor(phase models.PressurePhase, remaining time.Duration, movesPlayed int) time.Duration {
	if phase == models.PhaseTimeScramble || remaining < p.ScrambleThreshold {
		return clampBudget(p.ScrambleBudget, p.ScrambleBudget, remaining, p.SafetyFraction)
	}
	if phase == models.PhaseOpening {
		return clampBudget(p.OpeningBudget, p.ScrambleBudget, remaining, p.SafetyFraction)
	}

	movesLeft := expectedGameMoves - movesPlayed
	if movesLeft < 10 {
		movesLeft = 10
	}
	slice := remaining / time.Duration(movesLeft)

	// Spend only a share of the per-move slice on this move, weighted up in
	// the phases where long thinks look natural.
	switch phase {
	case models.PhasePressure:
		slice = slice / 2
	case models.PhaseMidgame:
		slice = slice / 3
	default: // endgame
		slice = slice / 4
	}
	return clampBudget(slice, p.ScrambleBudget, remaining, p.SafetyFraction)
}

func clampBudget(d, floor, remaining time.Duration, safety float64) time.Duration {
	ceil := time.Duration(float64(remaining) * safety)
	if d > ceil {
		d = ceil
	}
	if d < floor {
		d = floor
	}
	if d > remaining {
		d = remaining
	}
	if d < 0 {
		d = 0
	}
	return d
}
