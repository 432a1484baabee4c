// The liquid pressure decision policy: picks a move from the engine's ranked
// candidates with a controlled amount of deviation from the top line, and
// simulates a human-looking think time for it.

package app

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xYach/liquid-pressure-chess/app/config"
	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// hesitation multiplier when the chosen move is not the obvious one
const deviationThinkStretch = 1.4

type Selector struct {
	cfg config.PressureConfig
	rng *rand.Rand
	log zerolog.Logger
}

// NewSelector builds a selector around an explicit pseudo-random source so
// seeded runs replay exactly. Seed 0 seeds from the wall clock.
func NewSelector(cfg config.PressureConfig, log zerolog.Logger) *Selector {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Selector{cfg: cfg, rng: rand.New(rand.NewSource(seed)), log: log}
}

// looseness returns the phase's willingness to deviate from the top
// candidate, damped for one turn after any previous deviation.
func (s *Selector) looseness(phase models.PressurePhase, prev *models.MoveDecision) float64 {
	if phase == models.PhaseTimeScramble {
		return 0
	}
	l := s.cfg.Looseness[int(phase)]
	if prev != nil && prev.Deviated() {
		l *= s.cfg.Damping
	}
	return l
}

// Decide selects one candidate and a simulated think time. The returned move
// is always a member of candidates; think time is always within
// [MinThink, remaining*SafetyFraction] with the upper bound winning when the
// interval inverts near zero remaining time.
func (s *Selector) Decide(candidates []models.Candidate, phase models.PressurePhase, remaining, budget time.Duration, prev *models.MoveDecision) (models.MoveDecision, error) {
	if len(candidates) == 0 {
		return models.MoveDecision{}, fmt.Errorf("%w: no candidates to decide from", ErrEngineUnavailable)
	}

	// Hard floor under time pressure: instant top move, no sampling.
	if phase == models.PhaseTimeScramble {
		return models.MoveDecision{
			MoveUCI:   candidates[0].MoveUCI,
			ThinkTime: s.clampThink(s.cfg.MinThink, remaining),
			Phase:     phase,
			Rank:      0,
		}, nil
	}

	loose := s.looseness(phase, prev)
	rank := 0
	if s.rng.Float64() < loose {
		rank = s.pickDeviation(candidates, s.cfg.GapCeiling[int(phase)])
	}

	think := s.thinkTime(budget, remaining, loose, rank > 0)

	d := models.MoveDecision{
		MoveUCI:   candidates[rank].MoveUCI,
		ThinkTime: think,
		Phase:     phase,
		Rank:      rank,
	}
	s.log.Debug().
		Str("phase", phase.String()).
		Int("rank", rank).
		Str("move", d.MoveUCI).
		Dur("think", think).
		Float64("looseness", loose).
		Msg("decision")
	return d, nil
}

// pickDeviation samples a non-top candidate, weighted down by rank and by the
// evaluation gap from the best line. Candidates beyond the gap ceiling get no
// weight at all; if nothing qualifies the top move is kept.
func (s *Selector) pickDeviation(candidates []models.Candidate, gapCeiling int) int {
	top := candidates[0].Eval()

	type option struct {
		rank   int
		weight float64
	}
	var options []option
	total := 0.0
	for i := 1; i < len(candidates); i++ {
		gap := top - candidates[i].Eval()
		if gap < 0 || gap > gapCeiling {
			continue
		}
		w := (1.0 - float64(gap)/float64(gapCeiling+1)) / float64(i+1)
		options = append(options, option{rank: i, weight: w})
		total += w
	}
	if len(options) == 0 {
		return 0
	}

	draw := s.rng.Float64() * total
	for _, o := range options {
		draw -= o.weight
		if draw <= 0 {
			return o.rank
		}
	}
	return options[len(options)-1].rank
}

// thinkTime perturbs the budget by bounded jitter, stretches it with
// looseness and with hesitation when deviating, then clamps.
func (s *Selector) thinkTime(budget, remaining time.Duration, loose float64, deviated bool) time.Duration {
	jitter := 0.75 + s.rng.Float64()*0.5 // +/-25%
	think := float64(budget) * jitter * (1.0 + 0.5*loose)
	if deviated {
		think *= deviationThinkStretch
	}
	return s.clampThink(time.Duration(think), remaining)
}

func (s *Selector) clampThink(d, remaining time.Duration) time.Duration {
	if d < s.cfg.MinThink {
		d = s.cfg.MinThink
	}
	upper := time.Duration(float64(remaining) * s.cfg.SafetyFraction)
	if d > upper {
		d = upper
	}
	if d < 0 {
		d = 0
	}
	return d
}
