package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"analyst-sandbox/internal/config"
)

func TestRecordTurn(t *testing.T) {
	m := NewMetrics()
	m.RecordTurn(true)
	m.RecordTurn(true)
	m.RecordTurn(false)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("true")); got != 2 {
		t.Errorf("turns with code = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("false")); got != 1 {
		t.Errorf("turns without code = %v, want 1", got)
	}
}

func TestRecordVerdict(t *testing.T) {
	m := NewMetrics()
	m.RecordVerdict("", 120)
	m.RecordVerdict("banned_call", 40)

	if got := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("none")); got != 1 {
		t.Errorf("safe verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("banned_call")); got != 1 {
		t.Errorf("banned_call verdicts = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.CodeSizeBytes); n != 1 {
		t.Errorf("code size series = %d, want 1", n)
	}
}

func TestRecordExecution(t *testing.T) {
	m := NewMetrics()
	m.RecordExecution("ok", 0.02, 2, 64)
	m.RecordExecution("fault", 0.01, 0, 10)
	m.RecordRejected()

	tests := []struct {
		status string
		want   float64
	}{
		{"ok", 1},
		{"fault", 1},
		{"unsafe", 1},
		{"stderr", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.ScriptsTotal.WithLabelValues(tt.status)); got != tt.want {
			t.Errorf("scripts{status=%q} = %v, want %v", tt.status, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(m.FiguresTotal); got != 2 {
		t.Errorf("figures = %v, want 2", got)
	}
}

func TestRegistryGather(t *testing.T) {
	m := NewMetrics()
	m.RecordSecurityEvent("eval")
	m.ActiveExecutions.Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"analyst_security_events_total", "analyst_active_executions"} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestTracerNoopProvider(t *testing.T) {
	tr := NewTracer()
	ctx, span := tr.StartSpan(context.Background(), "turn", AttrTurnID.String("t-1"))
	if SpanFromContext(ctx) == nil {
		t.Error("no span in context")
	}
	EndSpan(span, errors.New("boom"))
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
