// Session Controller: drives the per-turn loop of one game and owns all of
// its mutable state (clock, board, history).

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/0xYach/liquid-pressure-chess/app/config"
	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// Analyzer is the engine capability the session depends on. The real
// implementation is UCIEngine; tests use fixed-candidate doubles.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, multiPV int, budget, overhead time.Duration) ([]models.Candidate, error)
	NewGame() error
	Close() error
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCheckmate  Status = "checkmate"
	StatusDraw       Status = "draw"
	StatusFlagged    Status = "flagged"
	StatusResigned   Status = "resigned"
)

type Session struct {
	ID string

	mu           sync.Mutex
	cfg          *config.Config
	tracker      *Tracker
	clock        *GameClock
	policy       ClockPolicy
	selector     *Selector
	engine       Analyzer
	humanColor   chess.Color
	history      []models.HistoryEntry
	lastDecision *models.MoveDecision
	hub          *Hub
	log          zerolog.Logger

	closeOnce sync.Once
	closeErr  error

	// injectable for tests; the terminal UI really sleeps through think time
	sleep func(time.Duration)
}

func NewSession(cfg *config.Config, engine Analyzer, humanColor chess.Color, startFEN string, log zerolog.Logger) (*Session, error) {
	tracker, err := NewTracker(startFEN)
	if err != nil {
		return nil, err
	}
	if err := engine.NewGame(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		cfg:        cfg,
		tracker:    tracker,
		clock:      NewGameClock(cfg.Clock.Initial, cfg.Clock.Increment),
		policy:     NewClockPolicy(cfg.Pressure),
		selector:   NewSelector(cfg.Pressure, log),
		engine:     engine,
		humanColor: humanColor,
		hub:        NewHub(),
		sleep:      time.Sleep,
	}
	s.log = log.With().Str("game_id", s.ID).Logger()
	s.clock.StartTurn(s.tracker.Turn())
	return s, nil
}

func (s *Session) EngineColor() chess.Color { return s.humanColor.Other() }
func (s *Session) HumanColor() chess.Color  { return s.humanColor }
func (s *Session) Hub() *Hub                { return s.hub }

func (s *Session) Position() *chess.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Position()
}

func (s *Session) Turn() chess.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Turn()
}

func (s *Session) Remaining(color chess.Color) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Remaining(color)
}

// CurrentPhase recomputes the phase for the side to move.
func (s *Session) CurrentPhase() models.PressurePhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked(s.tracker.Turn())
}

func (s *Session) phaseLocked(color chess.Color) models.PressurePhase {
	return s.tracker.ClassifyPhase(s.clock.Remaining(color), s.cfg.Pressure.ScrambleThreshold)
}

func (s *Session) History() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	if s.clock.Flagged(chess.White) || s.clock.Flagged(chess.Black) {
		return StatusFlagged
	}
	switch s.tracker.Outcome() {
	case chess.NoOutcome:
		return StatusInProgress
	case chess.Draw:
		return StatusDraw
	}
	if s.tracker.Method() == chess.Resignation {
		return StatusResigned
	}
	return StatusCheckmate
}

func (s *Session) Done() bool { return s.Status() != StatusInProgress }

// inProgressLocked gates moves on a live game. A game lost on time reports
// both the flag and the game-over condition.
func (s *Session) inProgressLocked() error {
	switch s.statusLocked() {
	case StatusInProgress:
		return nil
	case StatusFlagged:
		return fmt.Errorf("%w: %w", ErrGameOver, ErrFlagged)
	default:
		return ErrGameOver
	}
}

// Close releases the session's engine process. Safe to call more than once;
// the first result is sticky.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.engine.Close()
	})
	return s.closeErr
}

// Resign ends the game in the engine's favor (or the human's, if the engine
// side is passed).
func (s *Session) Resign(color chess.Color) {
	s.mu.Lock()
	s.tracker.Resign(color)
	s.mu.Unlock()
	s.broadcastOver()
}

// PlayHumanMove validates and applies one human move. Illegal input leaves
// the position, clock, and history untouched. A legal move charges only the
// wall time the human actually spent.
func (s *Session) PlayHumanMove(input string) (models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inProgressLocked(); err != nil {
		return models.HistoryEntry{}, err
	}
	if s.tracker.Turn() != s.humanColor {
		return models.HistoryEntry{}, fmt.Errorf("%w: not your turn", ErrIllegalMove)
	}

	elapsed := s.clock.Elapsed(s.humanColor)
	uciStr, sanStr, err := s.tracker.Apply(input)
	if err != nil {
		return models.HistoryEntry{}, err
	}

	flagged := s.clock.ChargeTurn(s.humanColor, elapsed, 0)
	entry := s.appendLocked(uciStr, sanStr, s.humanColor, nil)
	s.hub.Broadcast(models.GameEvent{Type: "move", Data: entry})

	if flagged {
		s.log.Info().Str("side", s.humanColor.Name()).Msg("flagged")
		s.broadcastOverLocked()
		return entry, nil
	}
	if s.statusLocked() != StatusInProgress {
		s.broadcastOverLocked()
		return entry, nil
	}
	s.clock.StartTurn(s.EngineColor())
	return entry, nil
}

// PlayEngineTurn runs one full engine turn: classify phase, budget, query the
// engine, run the pressure policy, sleep through the simulated think, apply,
// and charge the clock. Engine failures abort the turn with nothing applied
// or charged; a move the engine did not produce is never substituted.
// The session mutex is not held across the search or the simulated think, so
// observers can keep reading state while the opponent is "thinking".
func (s *Session) PlayEngineTurn(ctx context.Context) (models.HistoryEntry, error) {
	s.mu.Lock()
	if err := s.inProgressLocked(); err != nil {
		s.mu.Unlock()
		return models.HistoryEntry{}, err
	}
	engineColor := s.EngineColor()
	if s.tracker.Turn() != engineColor {
		s.mu.Unlock()
		return models.HistoryEntry{}, fmt.Errorf("%w: engine is not on the move", ErrIllegalMove)
	}

	remaining := s.clock.Remaining(engineColor)
	phase := s.phaseLocked(engineColor)
	budget := s.policy.BudgetFor(phase, remaining, s.tracker.FullMoves())
	fen := s.tracker.FEN()
	prev := s.lastDecision
	s.mu.Unlock()

	candidates, err := s.engine.Analyze(ctx, fen, s.cfg.Engine.MultiPV, budget, s.cfg.Engine.Overhead)
	if err != nil {
		s.log.Warn().Err(err).Msg("engine query failed, turn aborted")
		return models.HistoryEntry{}, err
	}

	s.mu.Lock()
	// The search consumed real wall time: re-derive the effective remaining
	// time and the phase before deciding, so a side that crossed the scramble
	// threshold mid-search gets the hard floor and the think-time clamp is
	// bounded by what is actually left.
	remaining -= s.clock.Elapsed(engineColor)
	if remaining < 0 {
		remaining = 0
	}
	phase = s.tracker.ClassifyPhase(remaining, s.cfg.Pressure.ScrambleThreshold)

	decision, err := s.selector.Decide(candidates, phase, remaining, budget, prev)
	if err != nil {
		s.mu.Unlock()
		return models.HistoryEntry{}, err
	}
	s.hub.Broadcast(models.GameEvent{Type: "decision", Data: decision})
	s.mu.Unlock()

	s.sleep(decision.ThinkTime)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The game may have ended (resignation) while the think was simulated.
	if err := s.inProgressLocked(); err != nil {
		return models.HistoryEntry{}, err
	}

	uciStr, sanStr, err := s.tracker.Apply(decision.MoveUCI)
	if err != nil {
		// The engine proposed something the board rejects; surface it rather
		// than substituting a move the engine did not produce.
		return models.HistoryEntry{}, fmt.Errorf("%w: engine move %q rejected: %v", ErrEngineUnavailable, decision.MoveUCI, err)
	}

	elapsed := s.clock.Elapsed(engineColor)
	flagged := s.clock.ChargeTurn(engineColor, elapsed, decision.ThinkTime)
	s.lastDecision = &decision
	entry := s.appendLocked(uciStr, sanStr, engineColor, &decision)
	s.hub.Broadcast(models.GameEvent{Type: "move", Data: entry})

	if flagged {
		s.log.Info().Str("side", engineColor.Name()).Msg("flagged")
		s.broadcastOverLocked()
		return entry, nil
	}
	if s.statusLocked() != StatusInProgress {
		s.broadcastOverLocked()
		return entry, nil
	}
	s.clock.StartTurn(s.humanColor)
	return entry, nil
}

func (s *Session) appendLocked(uciStr, sanStr string, color chess.Color, decision *models.MoveDecision) models.HistoryEntry {
	c := "w"
	if color == chess.Black {
		c = "b"
	}
	entry := models.HistoryEntry{
		Ply:      len(s.history) + 1,
		MoveUCI:  uciStr,
		MoveSAN:  sanStr,
		Color:    c,
		Decision: decision,
	}
	s.history = append(s.history, entry)
	return entry
}

// Snapshot assembles the observational view of the game.
func (s *Session) Snapshot() models.GameResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := "w"
	if s.tracker.Turn() == chess.Black {
		turn = "b"
	}
	history := make([]models.HistoryEntry, len(s.history))
	copy(history, s.history)

	resp := models.GameResponse{
		GameID: s.ID,
		FEN:    s.tracker.FEN(),
		Turn:   turn,
		Phase:  s.phaseLocked(s.tracker.Turn()).String(),
		Status: string(s.statusLocked()),
		Clock: models.ClockResponse{
			WhiteMS: s.clock.Remaining(chess.White).Milliseconds(),
			BlackMS: s.clock.Remaining(chess.Black).Milliseconds(),
		},
		History: history,
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		resp.LastMove = &last
	}
	return resp
}

func (s *Session) broadcastOver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastOverLocked()
}

func (s *Session) broadcastOverLocked() {
	s.hub.Broadcast(models.GameEvent{Type: "game_over", Data: string(s.statusLocked())})
}
