package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/0xYach/liquid-pressure-chess/app/config"
	"github.com/0xYach/liquid-pressure-chess/app/models"
)

type stubAnalyzer struct {
	cands    []models.Candidate
	err      error
	calls    int
	newGames int
	closes   int
	lastFEN  string
	hook     func() // runs on every Analyze, before returning
}

func (a *stubAnalyzer) Analyze(_ context.Context, fen string, _ int, _, _ time.Duration) ([]models.Candidate, error) {
	a.calls++
	a.lastFEN = fen
	if a.hook != nil {
		a.hook()
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.cands, nil
}

func (a *stubAnalyzer) NewGame() error {
	a.newGames++
	return nil
}

func (a *stubAnalyzer) Close() error {
	a.closes++
	return nil
}

func testSessionConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{Path: "stockfish", MultiPV: 3, Overhead: 100 * time.Millisecond},
		Clock:  config.ClockConfig{Initial: 600 * time.Second},
		Pressure: config.PressureConfig{
			ScrambleThreshold: 30 * time.Second,
			MinThink:          time.Millisecond,
			SafetyFraction:    0.1,
			Damping:           0.35,
			// zero looseness keeps engine turns deterministic
			Looseness:  [4]float64{0, 0, 0, 0},
			GapCeiling: [4]int{30, 60, 90, 25},
			Seed:       7,
		},
	}
}

func newTestSession(t *testing.T, stub *stubAnalyzer, humanColor chess.Color) *Session {
	t.Helper()
	s, err := NewSession(testSessionConfig(), stub, humanColor, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSession error = %v", err)
	}
	s.sleep = func(time.Duration) {}
	return s
}

func TestNewSessionInitialState(t *testing.T) {
	stub := &stubAnalyzer{}
	s := newTestSession(t, stub, chess.White)

	if stub.newGames != 1 {
		t.Fatalf("engine NewGame called %d times, want 1", stub.newGames)
	}
	if s.Status() != StatusInProgress {
		t.Fatalf("status = %s, want in_progress", s.Status())
	}
	if s.Turn() != chess.White {
		t.Fatalf("turn = %s, want White", s.Turn().Name())
	}
	if s.EngineColor() != chess.Black {
		t.Fatalf("engine color = %s, want Black", s.EngineColor().Name())
	}
}

func TestPlayHumanMoveAppendsAndPassesTurn(t *testing.T) {
	s := newTestSession(t, &stubAnalyzer{}, chess.White)

	entry, err := s.PlayHumanMove("e4")
	if err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}
	if entry.Ply != 1 || entry.MoveSAN != "e4" || entry.MoveUCI != "e2e4" || entry.Color != "w" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Decision != nil {
		t.Fatalf("human moves must not carry a decision, got %+v", entry.Decision)
	}
	if got := len(s.History()); got != 1 {
		t.Fatalf("history length = %d, want 1", got)
	}
	if s.Turn() != chess.Black {
		t.Fatalf("turn after human move = %s, want Black", s.Turn().Name())
	}
	if got := s.Remaining(chess.White); got > 600*time.Second || got < 599*time.Second {
		t.Fatalf("white remaining = %s, want just under 600s", got)
	}
	if got := s.Remaining(chess.Black); got != 600*time.Second {
		t.Fatalf("black remaining = %s, want untouched 600s", got)
	}
}

func TestPlayHumanMoveIllegalLeavesStateUntouched(t *testing.T) {
	s := newTestSession(t, &stubAnalyzer{}, chess.White)
	before := s.Snapshot()

	_, err := s.PlayHumanMove("Kx9")
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("PlayHumanMove error = %v, want ErrIllegalMove", err)
	}

	after := s.Snapshot()
	if after.FEN != before.FEN {
		t.Fatalf("position mutated: %q -> %q", before.FEN, after.FEN)
	}
	if len(after.History) != 0 {
		t.Fatalf("history mutated: %+v", after.History)
	}
	if after.Clock != before.Clock {
		t.Fatalf("clock mutated: %+v -> %+v", before.Clock, after.Clock)
	}
	if s.Turn() != chess.White {
		t.Fatalf("turn changed after rejected input")
	}
}

func TestPlayHumanMoveOutOfTurn(t *testing.T) {
	// human is black, white (the engine) is on the move
	s := newTestSession(t, &stubAnalyzer{}, chess.Black)

	_, err := s.PlayHumanMove("e5")
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("out-of-turn move error = %v, want ErrIllegalMove", err)
	}
}

func TestPlayEngineTurnAppliesTopCandidate(t *testing.T) {
	stub := &stubAnalyzer{cands: []models.Candidate{
		{MoveUCI: "e7e5", Score: models.UCIScore{CP: cp(20)}, MultiPV: 1},
		{MoveUCI: "c7c5", Score: models.UCIScore{CP: cp(15)}, MultiPV: 2},
	}}
	s := newTestSession(t, stub, chess.White)

	if _, err := s.PlayHumanMove("e4"); err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}
	entry, err := s.PlayEngineTurn(context.Background())
	if err != nil {
		t.Fatalf("PlayEngineTurn error = %v", err)
	}

	if entry.MoveUCI != "e7e5" || entry.MoveSAN != "e5" || entry.Color != "b" {
		t.Fatalf("entry = %+v, want top candidate e7e5", entry)
	}
	if entry.Decision == nil {
		t.Fatalf("engine move must carry its decision")
	}
	if entry.Decision.Rank != 0 || entry.Decision.Phase != models.PhaseOpening {
		t.Fatalf("decision = %+v, want rank 0 in the opening", entry.Decision)
	}
	if stub.calls != 1 {
		t.Fatalf("Analyze called %d times, want 1", stub.calls)
	}
	// the engine was asked about the position after the human's move
	if !strings.Contains(stub.lastFEN, " b ") {
		t.Fatalf("Analyze FEN = %q, want black to move", stub.lastFEN)
	}
	if s.Turn() != chess.White {
		t.Fatalf("turn after engine move = %s, want White", s.Turn().Name())
	}
	// the simulated think is charged even though nothing actually slept
	if got := s.Remaining(chess.Black); got >= 600*time.Second {
		t.Fatalf("black remaining = %s, want reduced by the simulated think", got)
	}
}

func TestPlayEngineTurnEngineErrorLeavesStateUntouched(t *testing.T) {
	stub := &stubAnalyzer{}
	s := newTestSession(t, stub, chess.Black)
	stub.err = ErrEngineTimeout
	before := s.Snapshot()

	_, err := s.PlayEngineTurn(context.Background())
	if !errors.Is(err, ErrEngineTimeout) {
		t.Fatalf("PlayEngineTurn error = %v, want ErrEngineTimeout", err)
	}

	after := s.Snapshot()
	if after.FEN != before.FEN || len(after.History) != 0 || after.Clock != before.Clock {
		t.Fatalf("engine failure mutated state: %+v -> %+v", before, after)
	}
	if s.Status() != StatusInProgress {
		t.Fatalf("status = %s, want in_progress", s.Status())
	}
}

func TestPlayEngineTurnRejectsImpossibleEngineMove(t *testing.T) {
	stub := &stubAnalyzer{cands: []models.Candidate{
		{MoveUCI: "e2e5", Score: models.UCIScore{CP: cp(50)}, MultiPV: 1},
	}}
	s := newTestSession(t, stub, chess.Black)

	_, err := s.PlayEngineTurn(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("PlayEngineTurn error = %v, want ErrEngineUnavailable", err)
	}
	if got := len(s.History()); got != 0 {
		t.Fatalf("rejected engine move appended to history: %d entries", got)
	}
}

func TestPlayEngineTurnWhenNotOnMove(t *testing.T) {
	s := newTestSession(t, &stubAnalyzer{}, chess.White)
	_, err := s.PlayEngineTurn(context.Background())
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("PlayEngineTurn out of turn error = %v, want ErrIllegalMove", err)
	}
}

func TestHumanFlagsOnOvercharge(t *testing.T) {
	s := newTestSession(t, &stubAnalyzer{}, chess.White)

	base := time.Now()
	s.clock.now = func() time.Time { return base }
	s.clock.StartTurn(chess.White)
	s.clock.now = func() time.Time { return base.Add(601 * time.Second) }

	if _, err := s.PlayHumanMove("e4"); err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}
	if s.Status() != StatusFlagged {
		t.Fatalf("status = %s, want flagged", s.Status())
	}
	if !s.Done() {
		t.Fatalf("flagged game should be done")
	}
	if _, err := s.PlayHumanMove("d4"); !errors.Is(err, ErrGameOver) || !errors.Is(err, ErrFlagged) {
		t.Fatalf("move after flag error = %v, want ErrGameOver wrapping ErrFlagged", err)
	}
	if _, err := s.PlayEngineTurn(context.Background()); !errors.Is(err, ErrGameOver) {
		t.Fatalf("engine turn after flag error = %v, want ErrGameOver", err)
	}
}

func TestResignEndsGame(t *testing.T) {
	s := newTestSession(t, &stubAnalyzer{}, chess.White)
	s.Resign(chess.White)

	if s.Status() != StatusResigned {
		t.Fatalf("status = %s, want resigned", s.Status())
	}
	if _, err := s.PlayHumanMove("e4"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("move after resignation error = %v, want ErrGameOver", err)
	}
}

func TestSnapshotReflectsGame(t *testing.T) {
	stub := &stubAnalyzer{cands: []models.Candidate{
		{MoveUCI: "e7e5", Score: models.UCIScore{CP: cp(20)}, MultiPV: 1},
	}}
	s := newTestSession(t, stub, chess.White)
	if _, err := s.PlayHumanMove("e4"); err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}
	if _, err := s.PlayEngineTurn(context.Background()); err != nil {
		t.Fatalf("PlayEngineTurn error = %v", err)
	}

	snap := s.Snapshot()
	if snap.GameID != s.ID {
		t.Fatalf("snapshot game id = %q, want %q", snap.GameID, s.ID)
	}
	if snap.Turn != "w" || snap.Status != string(StatusInProgress) {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.History) != 2 {
		t.Fatalf("snapshot history length = %d, want 2", len(snap.History))
	}
	if snap.LastMove == nil || snap.LastMove.MoveUCI != "e7e5" {
		t.Fatalf("snapshot last move = %+v, want e7e5", snap.LastMove)
	}
	if snap.Phase != models.PhaseOpening.String() {
		t.Fatalf("snapshot phase = %q, want opening", snap.Phase)
	}
}

func TestSnapshotRespondsDuringSimulatedThink(t *testing.T) {
	stub := &stubAnalyzer{cands: []models.Candidate{
		{MoveUCI: "e7e5", Score: models.UCIScore{CP: cp(20)}, MultiPV: 1},
	}}
	cfg := testSessionConfig()
	// force the fixed-minimum think path and make the think long enough to
	// observe; the session keeps the real time.Sleep
	cfg.Pressure.ScrambleThreshold = cfg.Clock.Initial + time.Second
	cfg.Pressure.MinThink = 400 * time.Millisecond

	s, err := NewSession(cfg, stub, chess.White, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSession error = %v", err)
	}
	if _, err := s.PlayHumanMove("e4"); err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}

	searching := make(chan struct{})
	stub.hook = func() { close(searching) }

	done := make(chan error, 1)
	go func() {
		_, err := s.PlayEngineTurn(context.Background())
		done <- err
	}()

	<-searching
	time.Sleep(50 * time.Millisecond) // well inside the 400ms think

	start := time.Now()
	_ = s.Snapshot()
	if blocked := time.Since(start); blocked > 150*time.Millisecond {
		t.Fatalf("Snapshot blocked for %s during the simulated think", blocked)
	}

	if err := <-done; err != nil {
		t.Fatalf("PlayEngineTurn error = %v", err)
	}
	if got := len(s.History()); got != 2 {
		t.Fatalf("history length = %d, want 2", got)
	}
}

func TestEngineTurnReclassifiesAfterLongSearch(t *testing.T) {
	stub := &stubAnalyzer{cands: []models.Candidate{
		{MoveUCI: "e2e4", Score: models.UCIScore{CP: cp(30)}, MultiPV: 1},
		{MoveUCI: "d2d4", Score: models.UCIScore{CP: cp(28)}, MultiPV: 2},
	}}
	s := newTestSession(t, stub, chess.Black)

	base := time.Now()
	s.clock.now = func() time.Time { return base }
	// the search eats 580 of the 600s, leaving less than the 30s threshold
	stub.hook = func() {
		s.clock.now = func() time.Time { return base.Add(580 * time.Second) }
	}

	entry, err := s.PlayEngineTurn(context.Background())
	if err != nil {
		t.Fatalf("PlayEngineTurn error = %v", err)
	}
	if entry.Decision.Phase != models.PhaseTimeScramble {
		t.Fatalf("decision phase = %s, want time-scramble after the long search", entry.Decision.Phase)
	}
	if entry.Decision.Rank != 0 {
		t.Fatalf("scramble decision rank = %d, want 0", entry.Decision.Rank)
	}
	if got := s.Remaining(chess.White); got >= 30*time.Second {
		t.Fatalf("white remaining = %s, want under the scramble threshold", got)
	}
}

func TestResignDuringSimulatedThinkAbortsTurn(t *testing.T) {
	stub := &stubAnalyzer{cands: []models.Candidate{
		{MoveUCI: "e7e5", Score: models.UCIScore{CP: cp(20)}, MultiPV: 1},
	}}
	s := newTestSession(t, stub, chess.White)
	s.sleep = func(time.Duration) { s.Resign(chess.White) }

	if _, err := s.PlayHumanMove("e4"); err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}
	_, err := s.PlayEngineTurn(context.Background())
	if !errors.Is(err, ErrGameOver) {
		t.Fatalf("engine turn after mid-think resignation error = %v, want ErrGameOver", err)
	}
	if got := len(s.History()); got != 1 {
		t.Fatalf("history length = %d, want only the human move", got)
	}
	if s.Status() != StatusResigned {
		t.Fatalf("status = %s, want resigned", s.Status())
	}
}

func TestCloseReleasesEngineOnce(t *testing.T) {
	stub := &stubAnalyzer{}
	s := newTestSession(t, stub, chess.White)

	if err := s.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close error = %v", err)
	}
	if stub.closes != 1 {
		t.Fatalf("engine closed %d times, want 1", stub.closes)
	}
}

func TestSessionEventsBroadcast(t *testing.T) {
	s := newTestSession(t, &stubAnalyzer{}, chess.White)
	sub := s.Hub().Subscribe(8)
	defer s.Hub().Unsubscribe(sub)

	if _, err := s.PlayHumanMove("e4"); err != nil {
		t.Fatalf("PlayHumanMove error = %v", err)
	}

	select {
	case ev := <-sub.C():
		if ev.Type != "move" {
			t.Fatalf("event type = %q, want move", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no move event broadcast")
	}
}
