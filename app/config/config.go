package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

// ErrInvalidConfig is returned for out-of-range parameters. Fatal at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Logs     LogConfig
	Engine   EngineConfig
	Clock    ClockConfig
	Pressure PressureConfig
	Server   ServerConfig
}

type LogConfig struct {
	Level string
}

type EngineConfig struct {
	Path     string
	MultiPV  int
	Overhead time.Duration // added to the search budget for the hard response ceiling
}

type ClockConfig struct {
	Initial   time.Duration // per side
	Increment time.Duration // per move, none by default
}

// PressureConfig holds the tunables of the decision policy. The looseness and
// gap-ceiling tables are indexed opening/midgame/pressure/endgame; the
// time-scramble phase ignores both (hard top-move floor).
type PressureConfig struct {
	ScrambleThreshold time.Duration
	MinThink          time.Duration
	SafetyFraction    float64 // max slice of remaining time one think may take
	Damping           float64 // looseness multiplier for the turn after a deviation
	Looseness         [4]float64
	GapCeiling        [4]int // centipawns
	Seed              int64  // 0 = seed from the clock
}

type ServerConfig struct {
	ListenAddr string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Logs: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Engine: EngineConfig{
			Path:     getEnv("ENGINE_PATH", "stockfish"),
			MultiPV:  envInt("ENGINE_MULTIPV", 4),
			Overhead: time.Duration(envInt("ENGINE_OVERHEAD_MS", 2000)) * time.Millisecond,
		},
		Clock: ClockConfig{
			Initial:   time.Duration(envInt("CLOCK_SECONDS", 600)) * time.Second,
			Increment: time.Duration(envInt("INCREMENT_SECONDS", 0)) * time.Second,
		},
		Pressure: PressureConfig{
			ScrambleThreshold: time.Duration(envInt("SCRAMBLE_SECONDS", 30)) * time.Second,
			MinThink:          time.Duration(envInt("MIN_THINK_MS", 300)) * time.Millisecond,
			SafetyFraction:    envFloat("SAFETY_FRACTION", 0.1),
			Damping:           envFloat("DEVIATION_DAMPING", 0.35),
			Looseness: [4]float64{
				envFloat("LOOSENESS_OPENING", 0.05),
				envFloat("LOOSENESS_MIDGAME", 0.20),
				envFloat("LOOSENESS_PRESSURE", 0.30),
				envFloat("LOOSENESS_ENDGAME", 0.05),
			},
			GapCeiling: [4]int{
				envInt("GAP_CEILING_OPENING", 30),
				envInt("GAP_CEILING_MIDGAME", 60),
				envInt("GAP_CEILING_PRESSURE", 90),
				envInt("GAP_CEILING_ENDGAME", 25),
			},
			Seed: int64(envInt("SEED", 0)),
		},
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the startup invariants from the error taxonomy.
func (c *Config) Validate() error {
	if c.Clock.Initial <= 0 {
		return fmt.Errorf("%w: CLOCK_SECONDS must be positive, got %s", ErrInvalidConfig, c.Clock.Initial)
	}
	if c.Clock.Increment < 0 {
		return fmt.Errorf("%w: INCREMENT_SECONDS must not be negative", ErrInvalidConfig)
	}
	if c.Engine.MultiPV < 1 {
		return fmt.Errorf("%w: ENGINE_MULTIPV must be >= 1, got %d", ErrInvalidConfig, c.Engine.MultiPV)
	}
	if c.Engine.Overhead <= 0 {
		return fmt.Errorf("%w: ENGINE_OVERHEAD_MS must be positive", ErrInvalidConfig)
	}
	if c.Pressure.ScrambleThreshold <= 0 {
		return fmt.Errorf("%w: SCRAMBLE_SECONDS must be positive", ErrInvalidConfig)
	}
	if c.Pressure.MinThink <= 0 {
		return fmt.Errorf("%w: MIN_THINK_MS must be positive", ErrInvalidConfig)
	}
	if c.Pressure.SafetyFraction <= 0 || c.Pressure.SafetyFraction > 0.5 {
		return fmt.Errorf("%w: SAFETY_FRACTION must be in (0, 0.5], got %v", ErrInvalidConfig, c.Pressure.SafetyFraction)
	}
	if c.Pressure.Damping < 0 || c.Pressure.Damping > 1 {
		return fmt.Errorf("%w: DEVIATION_DAMPING must be in [0, 1]", ErrInvalidConfig)
	}
	for i, l := range c.Pressure.Looseness {
		if l < 0 || l > 1 {
			return fmt.Errorf("%w: looseness[%d] must be in [0, 1], got %v", ErrInvalidConfig, i, l)
		}
	}
	for i, g := range c.Pressure.GapCeiling {
		if g < 0 {
			return fmt.Errorf("%w: gap ceiling[%d] must not be negative, got %d", ErrInvalidConfig, i, g)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
