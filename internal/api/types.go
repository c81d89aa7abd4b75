package api

import (
	"time"

	"analyst-sandbox/internal/present"
	"analyst-sandbox/internal/validator"
)

// TurnRequest asks the server to run the scripts in an assistant response.
type TurnRequest struct {
	Response  string `json:"response"`
	DatasetID string `json:"dataset_id,omitempty"`
	Format    string `json:"format,omitempty"` // json (default) or html
}

// TurnResponse is returned for format=html: the payload plus its rendering.
type TurnResponse struct {
	Payload present.Payload `json:"payload"`
	HTML    string          `json:"html"`
}

// ValidateRequest asks for a verdict on a single script.
type ValidateRequest struct {
	Code string `json:"code"`
}

// ValidateResponse is the validator's verdict plus every denylist hit.
type ValidateResponse struct {
	validator.Verdict
	Detections []validator.Detection `json:"detections"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status           string   `json:"status"`
	Database         bool     `json:"database"`
	Datasets         int      `json:"datasets"`
	ActiveExecutions int64    `json:"active_executions"`
	Uptime           Duration `json:"uptime"`
}
