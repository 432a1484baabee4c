// Interactive terminal game against the liquid pressure opponent.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/0xYach/liquid-pressure-chess/app"
	"github.com/0xYach/liquid-pressure-chess/app/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Logs.Level)
	if err != nil {
		level = zerolog.WarnLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	stdin := bufio.NewScanner(os.Stdin)
	humanColor := askColor(stdin)

	engine, err := app.NewUCIEngine(cfg.Engine.Path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start engine at %s: %v\n", cfg.Engine.Path, err)
		os.Exit(1)
	}
	defer engine.Close()

	session, err := app.NewSession(cfg, engine, humanColor, "", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start game: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nLiquid Pressure engaged - %s game clock\n\n", app.FormatClock(cfg.Clock.Initial))

	for !session.Done() {
		printState(session)

		if session.Turn() == session.HumanColor() {
			if !humanTurn(session, stdin) {
				return
			}
			continue
		}

		fmt.Println("Opponent is thinking...")
		entry, err := session.PlayEngineTurn(context.Background())
		switch {
		case errors.Is(err, app.ErrEngineTimeout):
			fmt.Println("Engine did not answer in time, retrying the turn.")
			continue
		case errors.Is(err, app.ErrEngineUnavailable):
			fmt.Fprintf(os.Stderr, "engine is gone: %v\n", err)
			return
		case errors.Is(err, app.ErrGameOver):
		case err != nil:
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			return
		default:
			think := entry.Decision.ThinkTime.Seconds()
			fmt.Printf("Opponent plays %s (thought for %.1fs)\n", entry.MoveSAN, think)
		}
	}

	printSummary(session)
}

func askColor(stdin *bufio.Scanner) chess.Color {
	for {
		fmt.Print("Are you playing as White or Black? (w/b): ")
		if !stdin.Scan() {
			os.Exit(0)
		}
		switch strings.ToLower(strings.TrimSpace(stdin.Text())) {
		case "w", "white":
			return chess.White
		case "b", "black":
			return chess.Black
		}
		fmt.Println("Please answer w or b.")
	}
}

// humanTurn prompts until a legal move or quit. Returns false on quit.
func humanTurn(session *app.Session, stdin *bufio.Scanner) bool {
	for {
		fmt.Print("Your move (SAN or UCI) or 'quit': ")
		if !stdin.Scan() {
			return false
		}
		input := strings.TrimSpace(stdin.Text())
		if strings.EqualFold(input, "quit") {
			session.Resign(session.HumanColor())
			fmt.Println("Game resigned.")
			return false
		}

		_, err := session.PlayHumanMove(input)
		if err == nil {
			return true
		}
		if errors.Is(err, app.ErrGameOver) {
			return true
		}
		fmt.Printf("Rejected: %v\n", err)
	}
}

func printState(session *app.Session) {
	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Println(app.ClockLine(
		session.Remaining(session.HumanColor()),
		session.Remaining(session.EngineColor()),
	))
	fmt.Println(app.PhaseLine(session.CurrentPhase()))
	fmt.Print(app.RenderBoard(session.Position(), session.HumanColor()))
}

func printSummary(session *app.Session) {
	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Println("GAME OVER")
	fmt.Println(app.ClockLine(
		session.Remaining(session.HumanColor()),
		session.Remaining(session.EngineColor()),
	))

	switch session.Status() {
	case app.StatusFlagged:
		if session.Remaining(session.HumanColor()) == 0 {
			fmt.Println("You ran out of time.")
		} else {
			fmt.Println("Opponent ran out of time. You win!")
		}
	case app.StatusCheckmate:
		fmt.Println("Checkmate.")
	case app.StatusDraw:
		fmt.Println("Draw.")
	case app.StatusResigned:
		fmt.Println("Resignation.")
	}
}
