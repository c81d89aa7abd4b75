package sandbox

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/config"
	"analyst-sandbox/internal/runtime"
)

// NewRunnerFromConfig builds a Runner from the sandbox section of cfg.
func NewRunnerFromConfig(cfg *config.Config) (*Runner, error) {
	sc := cfg.Sandbox
	limits, err := Limits{
		MaxCallStack:   sc.MaxCallStack,
		MaxOutputBytes: sc.MaxOutputBytes,
	}.orDefaults(DefaultLimits()).WithTimeout(sc.Timeout, sc.MaxTimeout)
	if err != nil {
		return nil, err
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("sandbox limits: %w", err)
	}

	registry := runtime.NewRegistry()
	r := NewRunner(Options{
		Limits:        limits,
		MaxConcurrent: sc.MaxConcurrent,
		DatasetName:   sc.DatasetName,
		FigureWidth:   sc.FigureWidth,
		FigureHeight:  sc.FigureHeight,
		Registry:      registry,
	})

	log.Info().
		Dur("timeout", limits.Timeout).
		Int("max_concurrent", sc.MaxConcurrent).
		Str("dataset_name", sc.DatasetName).
		Strs("modules", registry.Names()).
		Msg("sandbox runner ready")
	return r, nil
}
