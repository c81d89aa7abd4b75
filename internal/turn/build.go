package turn

import (
	"analyst-sandbox/internal/config"
	"analyst-sandbox/internal/extract"
	"analyst-sandbox/internal/monitor"
	"analyst-sandbox/internal/sandbox"
	"analyst-sandbox/internal/validator"
)

// Build assembles a Processor and the Runner behind it from cfg. metrics
// and recorder may be nil.
func Build(cfg *config.Config, metrics *monitor.Metrics, recorder Recorder) (*Processor, *sandbox.Runner, error) {
	runner, err := sandbox.NewRunnerFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := NewProcessor(Options{
		Extractor: extract.New(cfg.Extractor.Languages),
		Validator: NewValidator(cfg),
		Executor:  runner,
		Metrics:   metrics,
		Recorder:  recorder,
	})
	return p, runner, nil
}

// NewValidator builds the validator described by cfg.
func NewValidator(cfg *config.Config) *validator.Validator {
	return validator.New(validator.Options{
		MaxScriptBytes:      cfg.Validator.MaxScriptBytes,
		ExtraDenied:         cfg.Validator.ExtraDenied,
		ExtraAllowedModules: cfg.Validator.ExtraAllowedModules,
	})
}
