package storage

import (
	"time"

	"github.com/google/uuid"

	"analyst-sandbox/internal/turn"
)

// Turn is the stored summary of one processed turn.
type Turn struct {
	ID         string    `json:"id" db:"id"`
	DatasetID  string    `json:"dataset_id,omitempty" db:"dataset_id"`
	Response   string    `json:"response" db:"response"`
	HasCode    bool      `json:"has_code" db:"has_code"`
	Scripts    int       `json:"scripts" db:"scripts"`
	Rejected   int       `json:"rejected" db:"rejected"`
	Failed     int       `json:"failed" db:"failed"`
	Succeeded  int       `json:"succeeded" db:"succeeded"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Script stores one script of a turn, whether it ran or was rejected.
type Script struct {
	ID         string         `json:"id" db:"id"`
	TurnID     string         `json:"turn_id" db:"turn_id"`
	Index      int            `json:"index" db:"idx"`
	Code       string         `json:"code" db:"code"`
	CodeHash   string         `json:"code_hash,omitempty" db:"code_hash"`
	Safe       bool           `json:"safe" db:"safe"`
	Rule       string         `json:"rule,omitempty" db:"rule"`
	Reason     string         `json:"reason,omitempty" db:"reason"`
	Status     string         `json:"status" db:"status"` // ok, fault, stderr, limit_exceeded, cancelled, unsafe
	Output     string         `json:"output" db:"output"`
	Error      string         `json:"error,omitempty" db:"error"`
	Figures    int            `json:"figures" db:"figures"`
	Results    map[string]any `json:"results,omitempty" db:"results"`
	DurationMS int64          `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// TurnRecord is a turn together with its scripts in order.
type TurnRecord struct {
	Turn
	ScriptRecords []Script `json:"script_records"`
}

// TurnFilter provides criteria for querying turns.
type TurnFilter struct {
	DatasetID string
	Since     *time.Time
	Limit     int
	Offset    int
}

// StatusUnsafe marks a script that was rejected before execution.
const StatusUnsafe = "unsafe"

// FromResult converts a processed turn into its audit record. Figures are
// counted, not stored.
func FromResult(res *turn.Result) *TurnRecord {
	rejected, failed, succeeded := res.Counts()
	rec := &TurnRecord{
		Turn: Turn{
			ID:         res.ID,
			DatasetID:  res.DatasetID,
			Response:   res.Response,
			HasCode:    res.HasCode,
			Scripts:    len(res.Scripts),
			Rejected:   rejected,
			Failed:     failed,
			Succeeded:  succeeded,
			DurationMS: res.Duration.Milliseconds(),
			CreatedAt:  res.StartedAt,
		},
		ScriptRecords: make([]Script, 0, len(res.Scripts)),
	}

	for _, s := range res.Scripts {
		sc := Script{
			TurnID:    res.ID,
			Index:     s.Index,
			Code:      s.Candidate.Text,
			Safe:      s.Verdict.Safe,
			Rule:      string(s.Verdict.Rule),
			Reason:    s.Verdict.Reason,
			CreatedAt: res.StartedAt,
		}
		if o := s.Outcome; o != nil {
			sc.ID = o.ID
			sc.CodeHash = o.CodeHash
			sc.Status = string(o.Kind)
			sc.Output = o.Output
			sc.Error = o.Error
			sc.Figures = len(o.Figures)
			sc.Results = o.Results
			sc.DurationMS = o.Duration.Milliseconds()
		} else {
			sc.ID = uuid.New().String()
			sc.Status = StatusUnsafe
		}
		rec.ScriptRecords = append(rec.ScriptRecords, sc)
	}
	return rec
}
