// Starts the engine process, speaks UCI over stdin/stdout, and exposes a
// MultiPV Analyze method returning ranked candidate moves.

package app

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// stopGrace is how long to wait for the engine to acknowledge a "stop" before
// giving up on the search.
const stopGrace = 500 * time.Millisecond

type UCIEngine struct {
	cmd     *exec.Cmd
	in      *bufio.Writer
	out     *bufio.Scanner
	mu      sync.Mutex
	ready   bool
	multipv int // last MultiPV value sent, 0 = never set
	log     zerolog.Logger

	// pending is the reader of a timed out search that never acknowledged
	// "stop". It must finish before another search may touch the scanner.
	pending chan error
}

func NewUCIEngine(path string, log zerolog.Logger) (*UCIEngine, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	e := &UCIEngine{
		cmd: cmd,
		in:  bufio.NewWriter(stdin),
		out: bufio.NewScanner(stdout),
		log: log,
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrEngineUnavailable, path, err)
	}
	// Handshake: "uci" -> wait for "uciok"; also "isready" -> "readyok"
	if err := e.send("uci"); err != nil {
		return nil, err
	}
	for e.out.Scan() {
		if e.out.Text() == "uciok" {
			break
		}
	}
	if err := e.send("isready"); err != nil {
		return nil, err
	}
	for e.out.Scan() {
		if e.out.Text() == "readyok" {
			break
		}
	}
	e.ready = true
	e.log.Debug().Str("path", path).Msg("engine ready")
	return e, nil
}

func (e *UCIEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	_ = e.send("quit")
	return e.cmd.Wait()
}

// NewGame lets the engine clear its internal state between games.
func (e *UCIEngine) NewGame() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return fmt.Errorf("%w: engine not ready", ErrEngineUnavailable)
	}
	if err := e.send("ucinewgame"); err != nil {
		return err
	}
	if err := e.send("isready"); err != nil {
		return err
	}
	for e.out.Scan() {
		if e.out.Text() == "readyok" {
			break
		}
	}
	return nil
}

// Analyze evaluates one position and returns up to multiPV candidate lines,
// best first from the side to move's perspective. The engine searches for
// budget; the hard response ceiling is budget+overhead, after which the call
// fails with ErrEngineTimeout. Only one analysis may be in flight at a time.
func (e *UCIEngine) Analyze(ctx context.Context, fen string, multiPV int, budget, overhead time.Duration) ([]models.Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return nil, fmt.Errorf("%w: engine not ready", ErrEngineUnavailable)
	}
	if e.pending != nil {
		// A previous search was abandoned with its reader still parked on the
		// scanner. Give the engine one more grace period to flush the stale
		// bestmove; starting a second reader would race on the shared scanner.
		select {
		case <-e.pending:
			e.pending = nil
		case <-time.After(stopGrace):
			return nil, fmt.Errorf("%w: engine never answered the abandoned search", ErrEngineUnavailable)
		}
	}
	if multiPV < 1 {
		multiPV = 1
	}

	if e.multipv != multiPV {
		if err := e.send(fmt.Sprintf("setoption name MultiPV value %d", multiPV)); err != nil {
			return nil, err
		}
		e.multipv = multiPV
	}

	if err := e.send(fmt.Sprintf("position fen %s", fen)); err != nil {
		return nil, err
	}
	if err := e.send(fmt.Sprintf("go movetime %d", budget.Milliseconds())); err != nil {
		return nil, err
	}

	// Latest (deepest) info line per multipv index, plus the bestmove token.
	lines := make(map[int]models.Candidate)
	var best string

	readDone := make(chan error, 1)
	go func() {
		for e.out.Scan() {
			line := e.out.Text()
			if strings.HasPrefix(line, "info ") {
				if c, ok := parseInfoLine(line); ok {
					prev, seen := lines[c.MultiPV]
					if !seen || c.Depth >= prev.Depth {
						lines[c.MultiPV] = c
					}
				}
			} else if strings.HasPrefix(line, "bestmove ") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					best = fields[1]
				}
				readDone <- nil
				return
			}
		}
		// process exit or broken pipe before a bestmove arrived
		if err := e.out.Err(); err != nil {
			readDone <- fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
			return
		}
		readDone <- fmt.Errorf("%w: engine closed its output", ErrEngineUnavailable)
	}()

	ceiling := budget + overhead
	select {
	case err := <-readDone:
		if err != nil {
			return nil, err
		}
	case <-time.After(ceiling):
		_ = e.send("stop")
		select {
		case err := <-readDone:
			if err != nil {
				return nil, err
			}
		case <-time.After(stopGrace):
			e.pending = readDone
			return nil, fmt.Errorf("%w: no response within %s", ErrEngineTimeout, ceiling)
		}
	case <-ctx.Done():
		_ = e.send("stop")
		select {
		case <-readDone:
		case <-time.After(stopGrace):
			e.pending = readDone
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineTimeout, ctx.Err())
	}

	cands := make([]models.Candidate, 0, len(lines))
	for _, c := range lines {
		cands = append(cands, c)
	}
	// Descending evaluation; the engine's own multipv order breaks ties.
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Eval() != cands[j].Eval() {
			return cands[i].Eval() > cands[j].Eval()
		}
		return cands[i].MultiPV < cands[j].MultiPV
	})

	if len(cands) == 0 {
		if best == "" || best == "(none)" {
			return nil, fmt.Errorf("%w: engine produced no candidates", ErrEngineUnavailable)
		}
		// Engine replied with a bestmove but no scored lines (very short
		// budgets can do this); treat it as a single unscored candidate.
		cands = append(cands, models.Candidate{MoveUCI: best, MultiPV: 1})
	}
	return cands, nil
}

// parseInfoLine extracts depth, multipv, score and the first pv move from one
// "info ..." line. Lines without a score or pv (e.g. "info string ...",
// currmove reports) are skipped.
func parseInfoLine(line string) (models.Candidate, bool) {
	c := models.Candidate{MultiPV: 1}
	fields := strings.Fields(line)
	scored := false
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				c.Depth, _ = strconv.Atoi(fields[i+1])
			}
		case "multipv":
			if i+1 < len(fields) {
				c.MultiPV, _ = strconv.Atoi(fields[i+1])
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err == nil {
					switch fields[i+1] {
					case "cp":
						c.Score.CP = &n
						scored = true
					case "mate":
						c.Score.Mate = &n
						scored = true
					}
				}
			}
		case "pv":
			if i+1 < len(fields) {
				c.MoveUCI = fields[i+1]
			}
			// pv is the last section of the line
			if scored && c.MoveUCI != "" {
				return c, true
			}
			return models.Candidate{}, false
		}
	}
	return models.Candidate{}, false
}

func (e *UCIEngine) send(cmd string) error {
	_, err := fmt.Fprintln(e.in, cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := e.in.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}
