package models

// What we return to API clients (trimmed & consistent DTOs)

type CreateGameRequest struct {
	HumanColor string `json:"human_color"` // "white" or "black", default white
	FEN        string `json:"fen,omitempty"`
}

type MoveRequest struct {
	Move string `json:"move"` // SAN ("Nf3") or coordinate ("g1f3")
}

type ClockResponse struct {
	WhiteMS int64 `json:"white_ms"`
	BlackMS int64 `json:"black_ms"`
}

type GameResponse struct {
	GameID   string         `json:"game_id"`
	FEN      string         `json:"fen"`
	Turn     string         `json:"turn"`  // "w" or "b"
	Phase    string         `json:"phase"` // current pressure phase
	Status   string         `json:"status"`
	Clock    ClockResponse  `json:"clock"`
	History  []HistoryEntry `json:"history"`
	LastMove *HistoryEntry  `json:"last_move,omitempty"`
}

// GameEvent is broadcast to websocket spectators as moves happen.
type GameEvent struct {
	Type string      `json:"type"` // "move", "decision", "game_over"
	Data interface{} `json:"data"`
}
