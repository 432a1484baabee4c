package main

import (
	"fmt"
	"os"

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
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	srv := app.NewServer(cfg, logger)
	router := app.NewRouter(srv)

	logger.Info().Str("addr", cfg.Server.ListenAddr).Msg("listening")
	if err := router.Run(cfg.Server.ListenAddr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
