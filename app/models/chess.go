package models

import "time"

// mate scores sort above any centipawn evaluation; closer mates sort higher
const mateScore = 100000

// UCIScore is one evaluation as reported by the engine.
type UCIScore struct {
	// Exactly one of these will be set:
	CP   *int `json:"cp,omitempty"`   // centipawns, positive means advantage for side to move
	Mate *int `json:"mate,omitempty"` // mate in N, sign indicates who is mating (+ means side to move mates)
}

// Candidate is one engine-proposed move from a MultiPV search.
type Candidate struct {
	MoveUCI string   `json:"move_uci"` // first move of the PV, e.g. "e2e4"
	Score   UCIScore `json:"score"`
	Depth   int      `json:"depth"`
	MultiPV int      `json:"multipv"` // engine's own 1-based line index
}

// Eval collapses cp/mate into one comparable number from the mover's
// perspective. Mate in N maps to +/-(100000 - N) so any mate outranks any
// centipawn score and shorter mates outrank longer ones.
func (c Candidate) Eval() int {
	if c.Score.Mate != nil {
		m := *c.Score.Mate
		if m >= 0 {
			return mateScore - m
		}
		return -mateScore - m
	}
	if c.Score.CP != nil {
		return *c.Score.CP
	}
	return 0
}

// PressurePhase classifies the game state for the decision policy.
type PressurePhase int

const (
	PhaseOpening PressurePhase = iota
	PhaseMidgame
	PhasePressure
	PhaseEndgame
	PhaseTimeScramble
)

func (p PressurePhase) String() string {
	switch p {
	case PhaseOpening:
		return "opening"
	case PhaseMidgame:
		return "midgame"
	case PhasePressure:
		return "pressure"
	case PhaseEndgame:
		return "endgame"
	case PhaseTimeScramble:
		return "time-scramble"
	default:
		return "unknown"
	}
}

// MoveDecision is the Pressure Model's output for one turn.
type MoveDecision struct {
	MoveUCI   string        `json:"move_uci"`
	ThinkTime time.Duration `json:"think_time"`
	Phase     PressurePhase `json:"phase"`
	Rank      int           `json:"rank"` // 0 = top candidate
}

// Deviated reports whether the decision picked a non-top candidate.
func (d MoveDecision) Deviated() bool {
	return d.Rank > 0
}

// HistoryEntry is one applied move. Engine moves carry their decision;
// human moves have Decision == nil.
type HistoryEntry struct {
	Ply      int           `json:"ply"`
	MoveUCI  string        `json:"move_uci"`
	MoveSAN  string        `json:"move_san"`
	Color    string        `json:"color"` // "w" or "b"
	Decision *MoveDecision `json:"decision,omitempty"`
}
