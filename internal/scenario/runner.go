package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

// OutcomeOK marks a step that returned no error.
const OutcomeOK = "OK"

// TraceEntry records what one step did.
type TraceEntry struct {
	Seq      int      `json:"seq"`
	Op       string   `json:"op"`
	Caller   string   `json:"caller,omitempty"`
	Outcome  string   `json:"outcome"`
	Result   any      `json:"result,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Events   []string `json:"events,omitempty"`
}

// Report is the trace of a scenario run plus any expectation mismatches.
type Report struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEntry `json:"trace"`
	Failures []string     `json:"failures,omitempty"`
}

// Passed reports whether every step met its expectation.
func (r *Report) Passed() bool { return len(r.Failures) == 0 }

// JSON renders the report as indented JSON with a trailing newline.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "scenario: encode report")
	}
	return append(data, '\n'), nil
}

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) Publish(_ context.Context, e domain.Event) {
	l.mu.Lock()
	l.types = append(l.types, string(e.Type))
	l.mu.Unlock()
}

func (l *eventLog) drain() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.types
	l.types = nil
	return out
}

// Run replays sc against a fresh in-memory ledger. opts are applied before
// the scenario's own clock, owner and event capture. The returned error
// reports a malformed scenario; failed expectations land in Report.Failures.
func Run(ctx context.Context, sc *Scenario, opts ...core.ServiceOption) (*Report, error) {
	at, err := sc.StartTime()
	if err != nil {
		return nil, eris.Wrap(err, "scenario: invalid")
	}
	events := &eventLog{}
	opts = append(opts,
		core.WithClock(core.ClockFunc(func() time.Time { return at })),
		core.WithEventSink(events),
	)
	if sc.Owner != "" {
		opts = append(opts, core.WithOwner(sc.Owner))
	}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), opts...)

	report := &Report{Scenario: sc.Name, Trace: make([]TraceEntry, 0, len(sc.Steps))}
	vars := map[string]string{}
	for i, step := range sc.Steps {
		op, ok := operations[step.Op]
		if !ok {
			return nil, eris.Errorf("scenario: steps[%d]: unknown op %q", i, step.Op)
		}
		result, res, err := op(ctx, call{svc: svc, caller: expand(step.Caller, vars), args: expandArgs(step.Args, vars)})
		var bad argError
		if errors.As(err, &bad) {
			return nil, eris.Wrapf(bad.error, "scenario: steps[%d] (%s)", i, step.Op)
		}

		entry := TraceEntry{
			Seq:     i + 1,
			Op:      step.Op,
			Caller:  step.Caller,
			Outcome: outcomeOf(err),
			Result:  result,
			Events:  events.drain(),
		}
		for _, w := range res.Warnings() {
			entry.Warnings = append(entry.Warnings, w.Rule+": "+w.Message)
		}
		report.Trace = append(report.Trace, entry)

		want := step.Expect
		if want == "" {
			want = OutcomeOK
		}
		if !strings.EqualFold(want, entry.Outcome) {
			report.Failures = append(report.Failures, fmt.Sprintf("step %d (%s): expected %s, got %s", entry.Seq, step.Op, want, entry.Outcome))
		}
		if step.Save != "" {
			if s, ok := result.(string); ok {
				vars[step.Save] = s
			}
		}
	}
	return report, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var blocked core.RuleViolationError
	if errors.As(err, &blocked) {
		return "RULE_VIOLATION"
	}
	return domain.KindName(err)
}

func expand(value string, vars map[string]string) string {
	if name, ok := strings.CutPrefix(value, "$"); ok {
		if v, found := vars[name]; found {
			return v
		}
	}
	return value
}

func expandArgs(args map[string]any, vars map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			v = expand(s, vars)
		}
		out[k] = v
	}
	return out
}
