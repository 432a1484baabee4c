// Terminal presentation: unicode board from the player's point of view plus
// the clock and phase lines. Purely observational, nothing reads it back.

package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/notnil/chess"

	"github.com/0xYach/liquid-pressure-chess/app/models"
)

var unicodePieces = map[chess.Piece]string{
	chess.WhiteKing:   "♔",
	chess.WhiteQueen:  "♕",
	chess.WhiteRook:   "♖",
	chess.WhiteBishop: "♗",
	chess.WhiteKnight: "♘",
	chess.WhitePawn:   "♙",
	chess.BlackKing:   "♚",
	chess.BlackQueen:  "♛",
	chess.BlackRook:   "♜",
	chess.BlackBishop: "♝",
	chess.BlackKnight: "♞",
	chess.BlackPawn:   "♟",
}

// RenderBoard draws the position with pov's pieces at the bottom.
func RenderBoard(pos *chess.Position, pov chess.Color) string {
	board := pos.Board()
	var sb strings.Builder

	ranks := []int{7, 6, 5, 4, 3, 2, 1, 0}
	files := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if pov == chess.Black {
		ranks = []int{0, 1, 2, 3, 4, 5, 6, 7}
		files = []int{7, 6, 5, 4, 3, 2, 1, 0}
	}

	for _, r := range ranks {
		sb.WriteString(fmt.Sprintf("%d ", r+1))
		for _, f := range files {
			piece := board.Piece(chess.Square(r*8 + f))
			glyph, ok := unicodePieces[piece]
			if !ok {
				glyph = "."
			}
			sb.WriteString(glyph)
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("  ")
	for _, f := range files {
		sb.WriteByte(byte('a' + f))
		sb.WriteString(" ")
	}
	sb.WriteString("\n")
	return sb.String()
}

// FormatClock renders a remaining duration as MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ClockLine shows both clocks from the human's point of view.
func ClockLine(human, engine time.Duration) string {
	return fmt.Sprintf("Your time: %s | Opponent: %s", FormatClock(human), FormatClock(engine))
}

// PhaseLine is the textual phase/pressure indicator.
func PhaseLine(phase models.PressurePhase) string {
	return fmt.Sprintf("Phase: %s", phase)
}
