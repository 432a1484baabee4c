package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/0xYach/liquid-pressure-chess/app/config"
	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// Server exposes games over HTTP and streams their events over websockets.
type Server struct {
	cfg       *config.Config
	manager   *SessionManager
	newEngine func() (Analyzer, error)
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewServer(cfg *config.Config, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		manager: NewSessionManager(),
		newEngine: func() (Analyzer, error) {
			return NewUCIEngine(cfg.Engine.Path, log)
		},
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CreateGame(c *gin.Context) {
	var req models.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	humanColor := chess.White
	switch strings.ToLower(req.HumanColor) {
	case "", "white", "w":
	case "black", "b":
		humanColor = chess.Black
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "human_color must be white or black"})
		return
	}

	engine, err := s.newEngine()
	if err != nil {
		s.log.Error().Err(err).Msg("engine spawn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "engine unavailable"})
		return
	}

	session, err := NewSession(s.cfg, engine, humanColor, req.FEN, s.log)
	if err != nil {
		if errors.Is(err, ErrIllegalMove) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.manager.Add(session)

	// If the engine opens, produce its first move before responding.
	if session.Turn() == session.EngineColor() {
		if _, err := session.PlayEngineTurn(c.Request.Context()); err != nil {
			s.log.Warn().Err(err).Msg("opening engine turn failed")
		}
	}
	s.releaseIfDone(session)
	c.JSON(http.StatusCreated, session.Snapshot())
}

// releaseIfDone shuts the session's engine process down once the game has
// reached a terminal state. The session itself stays registered so the final
// position remains queryable.
func (s *Server) releaseIfDone(session *Session) {
	if !session.Done() {
		return
	}
	if err := session.Close(); err != nil {
		s.log.Warn().Err(err).Str("game_id", session.ID).Msg("engine shutdown failed")
	}
}

func (s *Server) GetGame(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// PlayMove applies the human move and, when the game continues, the engine's
// reply in the same request so the response carries both.
func (s *Server) PlayMove(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}

	var req models.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Move == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing move"})
		return
	}

	if _, err := session.PlayHumanMove(req.Move); err != nil {
		switch {
		case errors.Is(err, ErrGameOver):
			c.JSON(http.StatusConflict, gin.H{"error": "game is over"})
		case errors.Is(err, ErrIllegalMove):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if session.Status() == StatusInProgress && session.Turn() == session.EngineColor() {
		if _, err := session.PlayEngineTurn(c.Request.Context()); err != nil && !errors.Is(err, ErrGameOver) {
			// Turn aborted, nothing applied or charged; the client may retry.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "state": session.Snapshot()})
			return
		}
	}
	s.releaseIfDone(session)
	c.JSON(http.StatusOK, session.Snapshot())
}

func (s *Server) ResignGame(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	session.Resign(session.HumanColor())
	s.releaseIfDone(session)
	c.JSON(http.StatusOK, session.Snapshot())
}

// DeleteGame tears a game down: the engine process is released and the
// session is dropped from the registry.
func (s *Server) DeleteGame(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err := session.Close(); err != nil {
		s.log.Warn().Err(err).Str("game_id", session.ID).Msg("engine shutdown failed")
	}
	s.manager.Remove(session.ID)
	c.Status(http.StatusNoContent)
}

// StreamEvents upgrades to a websocket and forwards game events until the
// client goes away. Spectators are read-only.
func (s *Server) StreamEvents(c *gin.Context) {
	session, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := session.Hub().Subscribe(32)
	defer session.Hub().Unsubscribe(sub)

	// Drain (and discard) client frames so pings and closes are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(models.GameEvent{Type: "snapshot", Data: session.Snapshot()}); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
