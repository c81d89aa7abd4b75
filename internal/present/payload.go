// Package present turns processed turns into the response payload and
// renders it as HTML or plain text.
package present

import (
	"analyst-sandbox/internal/sandbox"
	"analyst-sandbox/internal/turn"
)

// Payload is the boundary contract returned for every turn.
type Payload struct {
	TurnID           string            `json:"turn_id,omitempty"`
	HasCode          bool              `json:"has_code"`
	ExecutionResults []ExecutionResult `json:"execution_results"`
}

// ExecutionResult is one script's entry in the payload.
type ExecutionResult struct {
	ID         string         `json:"id,omitempty"`
	Code       string         `json:"code"`
	Success    bool           `json:"success"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	Results    map[string]any `json:"results"`
	Figures    []string       `json:"figures"`
	DurationMS int64          `json:"duration_ms"`
}

// BuildPayload converts res into a Payload, preserving script order.
// Rejected scripts are reported as failures with the rejection reason and
// nothing else.
func BuildPayload(res *turn.Result) Payload {
	p := Payload{ExecutionResults: []ExecutionResult{}}
	if res == nil {
		return p
	}
	p.TurnID = res.ID
	p.HasCode = res.HasCode

	for _, s := range res.Scripts {
		er := ExecutionResult{
			Code:    s.Candidate.Text,
			Results: map[string]any{},
			Figures: []string{},
		}
		if s.Outcome == nil {
			er.Error = sandbox.ErrUnsafeScript.Error() + ": " + s.Verdict.Reason
			p.ExecutionResults = append(p.ExecutionResults, er)
			continue
		}

		o := s.Outcome
		er.ID = o.ID
		er.Success = o.Success
		er.Output = o.Output
		er.DurationMS = o.Duration.Milliseconds()
		if !o.Success {
			er.Error = o.Error
		}
		if o.Results != nil {
			er.Results = o.Results
		}
		if o.Figures != nil {
			er.Figures = o.Figures
		}
		p.ExecutionResults = append(p.ExecutionResults, er)
	}
	return p
}
