package app

import "errors"

// Error taxonomy. IllegalMove and the engine errors are recoverable at the
// session boundary; Flagged ends the game. InvalidConfiguration lives in
// app/config and is fatal at startup.
var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine timeout")
	ErrFlagged           = errors.New("flagged: clock ran out")
	ErrGameOver          = errors.New("game is over")
)
