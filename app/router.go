// Package app wires the game session core to its HTTP/websocket surface.
package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP router over an existing Server.
func NewRouter(s *Server) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.Health)
	router.POST("/games", s.CreateGame)
	router.GET("/games/:id", s.GetGame)
	router.POST("/games/:id/move", s.PlayMove)
	router.POST("/games/:id/resign", s.ResignGame)
	router.DELETE("/games/:id", s.DeleteGame)
	router.GET("/games/:id/events", s.StreamEvents)

	return router
}
