// Package app wires the full pipeline together: fit-cache short circuit,
// spec normalization, program generation, artifact build, chain dispatch,
// merge, and persistence.
package app

import (
	"io"
	"log/slog"

	"fitgrid/internal/engine"
)

// App encapsulates one configured pipeline instance with its own logger.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	ambient Ambient
	engine  engine.Engine
}

// NewApp constructs an App. A nil engine selects the process-backed engine
// in the ambient work dir; tests inject their own.
func NewApp(outW io.Writer, cfg *Config, eng engine.Engine) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ambient := ResolveAmbient()
	if cfg.CacheDir != "" {
		ambient.CacheDir = cfg.CacheDir
	}
	logger.Debug("Ambient defaults resolved.", "cores", ambient.Cores, "futures", ambient.Futures, "compiler", ambient.CompilerBin)

	if eng == nil {
		eng = engine.NewProcessEngine(ambient.WorkDir)
	}
	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		ambient: ambient,
		engine:  eng,
	}
}

// Logger returns the app's logger. Primarily for testing.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
