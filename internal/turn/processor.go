// Package turn runs every script found in one assistant response: each
// candidate is validated and, when safe, executed against the turn's
// dataset.
package turn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/dataset"
	"analyst-sandbox/internal/extract"
	"analyst-sandbox/internal/monitor"
	"analyst-sandbox/internal/runtime"
	"analyst-sandbox/internal/sandbox"
	"analyst-sandbox/internal/validator"
)

// Executor runs one validated script. *sandbox.Runner implements it.
type Executor interface {
	Execute(ctx context.Context, code string, table runtime.Table) *sandbox.Outcome
}

// Recorder receives every finished turn, e.g. for auditing. Record must
// not block.
type Recorder interface {
	Record(res *Result)
}

// ScriptResult pairs a candidate with its verdict and, for safe scripts
// only, the execution outcome.
type ScriptResult struct {
	Index     int               `json:"index"`
	Candidate extract.Candidate `json:"candidate"`
	Verdict   validator.Verdict `json:"verdict"`
	Outcome   *sandbox.Outcome  `json:"outcome,omitempty"`
}

// Executed reports whether the script passed validation and ran.
func (s ScriptResult) Executed() bool {
	return s.Outcome != nil
}

// Succeeded reports whether the script ran and succeeded.
func (s ScriptResult) Succeeded() bool {
	return s.Outcome != nil && s.Outcome.Success
}

// Result is the outcome of one turn. Scripts are in response order.
type Result struct {
	ID        string         `json:"id"`
	Response  string         `json:"response"`
	DatasetID string         `json:"dataset_id,omitempty"`
	HasCode   bool           `json:"has_code"`
	Scripts   []ScriptResult `json:"scripts"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Counts returns how many scripts were rejected, failed and succeeded.
func (r *Result) Counts() (rejected, failed, succeeded int) {
	for _, s := range r.Scripts {
		switch {
		case !s.Executed():
			rejected++
		case s.Succeeded():
			succeeded++
		default:
			failed++
		}
	}
	return rejected, failed, succeeded
}

// Options configures a Processor. Extractor, Validator and Executor are
// required; the rest are optional.
type Options struct {
	Extractor *extract.Extractor
	Validator *validator.Validator
	Executor  Executor
	Metrics   *monitor.Metrics
	Tracer    *monitor.Tracer
	Recorder  Recorder
}

// Processor turns responses into Results. It is safe for concurrent use;
// turns against the same dataset are serialized by the dataset's lock.
type Processor struct {
	extractor *extract.Extractor
	validator *validator.Validator
	executor  Executor
	metrics   *monitor.Metrics
	tracer    *monitor.Tracer
	recorder  Recorder
}

// NewProcessor creates a Processor.
func NewProcessor(opts Options) *Processor {
	if opts.Extractor == nil {
		opts.Extractor = extract.New(nil)
	}
	if opts.Validator == nil {
		opts.Validator = validator.New(validator.Options{})
	}
	if opts.Tracer == nil {
		opts.Tracer = monitor.NewTracer()
	}
	return &Processor{
		extractor: opts.Extractor,
		validator: opts.Validator,
		executor:  opts.Executor,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		recorder:  opts.Recorder,
	}
}

// Validator returns the validator scripts are checked with.
func (p *Processor) Validator() *validator.Validator {
	return p.validator
}

// Validate checks a single script without running it.
func (p *Processor) Validate(ctx context.Context, code string) validator.Verdict {
	_, span := p.tracer.StartSpan(ctx, "validate")
	verdict := p.validator.Validate(code)
	span.SetAttributes(monitor.AttrRule.String(string(verdict.Rule)))
	span.End()

	if p.metrics != nil {
		p.metrics.RecordVerdict(string(verdict.Rule), len(code))
		for _, d := range p.validator.Scan(code) {
			p.metrics.RecordSecurityEvent(d.Pattern)
		}
	}
	return verdict
}

// Process extracts the scripts in response and runs them in order against
// ds, which may be nil. Unsafe scripts are reported but never executed.
// The dataset stays locked for the whole turn so that a script's changes
// to it are seen by the scripts after it and by no concurrent turn.
func (p *Processor) Process(ctx context.Context, response string, ds *dataset.Dataset) *Result {
	res := &Result{
		ID:        uuid.New().String(),
		Response:  response,
		Scripts:   []ScriptResult{},
		StartedAt: time.Now().UTC(),
	}

	// A nil *Dataset must reach the executor as a nil interface.
	var table runtime.Table
	if ds != nil {
		res.DatasetID = ds.ID
		table = ds
		ds.Lock()
		defer ds.Unlock()
	}

	ctx, span := p.tracer.StartSpan(ctx, "turn",
		monitor.AttrTurnID.String(res.ID),
		monitor.AttrDatasetID.String(res.DatasetID),
	)
	defer span.End()

	logger := log.With().Str("turn_id", res.ID).Logger()

	for c := range p.extractor.Candidates(response) {
		sr := ScriptResult{Index: len(res.Scripts), Candidate: c}
		sr.Verdict = p.Validate(ctx, c.Text)

		if !sr.Verdict.Safe {
			logger.Warn().
				Int("script", sr.Index).
				Str("rule", string(sr.Verdict.Rule)).
				Str("reason", sr.Verdict.Reason).
				Msg("script rejected")
			if p.metrics != nil {
				p.metrics.RecordRejected()
			}
			res.Scripts = append(res.Scripts, sr)
			continue
		}

		sr.Outcome = p.execute(ctx, c.Text, table)
		res.Scripts = append(res.Scripts, sr)
	}

	res.HasCode = len(res.Scripts) > 0
	res.Duration = time.Since(res.StartedAt)

	rejected, failed, succeeded := res.Counts()
	span.SetAttributes(monitor.AttrScripts.Int(len(res.Scripts)))
	logger.Info().
		Bool("has_code", res.HasCode).
		Int("rejected", rejected).
		Int("failed", failed).
		Int("succeeded", succeeded).
		Dur("duration", res.Duration).
		Msg("turn processed")

	if p.metrics != nil {
		p.metrics.RecordTurn(res.HasCode)
	}
	if p.recorder != nil {
		p.recorder.Record(res)
	}
	return res
}

func (p *Processor) execute(ctx context.Context, code string, table runtime.Table) *sandbox.Outcome {
	ctx, span := p.tracer.StartSpan(ctx, "execute")
	if p.metrics != nil {
		p.metrics.ActiveExecutions.Inc()
		defer p.metrics.ActiveExecutions.Dec()
	}

	out := p.executor.Execute(ctx, code, table)

	span.SetAttributes(
		monitor.AttrExecID.String(out.ID),
		monitor.AttrCodeHash.String(out.CodeHash),
		monitor.AttrSuccess.Bool(out.Success),
		monitor.AttrDurationMS.Int64(out.Duration.Milliseconds()),
	)
	monitor.EndSpan(span, sandbox.Classify(out))

	if p.metrics != nil {
		p.metrics.RecordExecution(string(out.Kind), out.Duration.Seconds(), len(out.Figures), len(out.Output))
	}
	return out
}
