package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/gridtrace/internal/geometry"
	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/testutil"
	"github.com/roach88/gridtrace/internal/workflow"
)

// TraceEvent is one recorded event: a step completion or a workflow state
// transition.
type TraceEvent struct {
	Type string `json:"type"` // "step" or "transition"

	// Step fields.
	Op     string `json:"op,omitempty"`
	Detail string `json:"detail,omitempty"`

	// Transition fields.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Seq is the logical clock value when the event was recorded.
	Seq int64 `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step and assertion held.
	Pass bool `json:"pass"`

	// Trace contains step and transition events in order. Used for golden
	// comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// run holds the live pieces of one scenario execution.
type run struct {
	wf         *workflow.Workflow
	identifier *testutil.ScriptedIdentifier
	elements   *testutil.StaticElements
	runner     *testutil.ScriptedRunner
	highlights *testutil.CaptureHighlights

	changes   <-chan workflow.StateChange
	cancelSub func()

	// traceDone is the settle channel of an unsettled (hung) submission.
	traceDone <-chan struct{}

	// lastCode is the most recent workflow error code observed.
	lastCode workflow.ErrorCode
}

// Run executes a scenario against a fresh workflow with scripted
// collaborators and evaluates its assertions. The returned Result carries
// the recorded event trace; harness-level failures (not scenario
// failures) are returned as an error.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	sessionID := scenario.SessionToken
	if sessionID == "" {
		sessionID = "test-session"
	}

	r := &run{
		identifier: &testutil.ScriptedIdentifier{},
		elements:   &testutil.StaticElements{ByAsset: map[string]network.NetworkElement{}},
		runner:     &testutil.ScriptedRunner{},
		highlights: &testutil.CaptureHighlights{},
	}

	wf, err := workflow.New(
		network.Session{ID: sessionID, User: "harness"},
		workflow.Deps{
			Identifier:  r.identifier,
			Elements:    r.elements,
			Runner:      r.runner,
			Highlighter: r.highlights,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	r.wf = wf
	r.changes, r.cancelSub = wf.Subscribe()
	defer r.cancelSub()

	result := &Result{Pass: true, Trace: []TraceEvent{}}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := r.execute(ctx, i, &step, result); err != nil {
			return nil, err
		}
	}

	r.assertAll(scenario.Assertions, result)
	return result, nil
}

// execute runs one step, records its transitions and outcome, and checks
// its error expectation.
func (r *run) execute(ctx context.Context, index int, step *Step, result *Result) error {
	var opErr error
	detail := ""

	switch step.Op {
	case OpBegin:
		opErr = r.wf.Begin(ctx)

	case OpTap:
		detail, opErr = r.tap(ctx, step)

	case OpSelectTerminal:
		var point *network.TracePoint
		point, opErr = r.wf.SelectTerminal(ctx, step.Index)
		if opErr == nil {
			detail = fmt.Sprintf("committed %s terminal %s", point.Element.AssetID, point.Element.Terminal.ID)
		}

	case OpCancelPending:
		if r.wf.CancelPending() {
			detail = "cancelled"
		} else {
			detail = "nothing pending"
		}

	case OpNext:
		opErr = r.wf.Next(ctx)

	case OpSelectType:
		t, _ := network.ParseTraceType(step.TraceType)
		opErr = r.wf.SelectTraceType(t)
		if opErr == nil {
			detail = string(t)
		}

	case OpRun:
		detail, opErr = r.runTrace(ctx, step)

	case OpReset:
		opErr = r.wf.Reset(ctx)
		if r.traceDone != nil {
			// The cancelled submission settles (and is discarded) before we
			// move on, keeping the trace deterministic.
			<-r.traceDone
			r.traceDone = nil
		}

	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	r.drainTransitions(result)

	if opErr != nil {
		code := workflow.CodeOf(opErr)
		r.lastCode = code
		detail = "error " + string(code)
		if step.ExpectError == "" {
			result.AddError("steps[%d] %s: unexpected error: %v", index, step.Op, opErr)
		} else if string(code) != step.ExpectError {
			result.AddError("steps[%d] %s: expected error %s, got %s", index, step.Op, step.ExpectError, code)
		}
	} else if step.ExpectError != "" {
		result.AddError("steps[%d] %s: expected error %s, got none", index, step.Op, step.ExpectError)
	}

	result.Trace = append(result.Trace, TraceEvent{
		Type:   "step",
		Op:     step.Op,
		Detail: detail,
		Seq:    r.wf.Clock().Current(),
	})
	return nil
}

// tap scripts the identify resolution, performs the tap, and describes the
// outcome.
func (r *run) tap(ctx context.Context, step *Step) (string, error) {
	switch step.Resolve.Kind {
	case ResolveMiss:
		r.identifier.QueueMiss()
	case ResolveError:
		r.identifier.Queue(testutil.Resolution{Err: errors.New("scripted identify failure")})
	case ResolveEdge, ResolveJunction:
		feature := workflow.IdentifiedFeature{
			AssetID:  step.Resolve.AssetID,
			Layer:    step.Resolve.Layer,
			Geometry: polylineOf(step.Resolve.Geometry),
		}
		r.identifier.QueueFeature(feature)
		r.elements.ByAsset[step.Resolve.AssetID] = elementOf(step.Resolve)
	}

	outcome, err := r.wf.Tap(ctx, network.MapPoint{X: step.At.X, Y: step.At.Y}, network.PointRole(step.Role))
	if err != nil {
		return "", err
	}
	if outcome.Pending != nil {
		return fmt.Sprintf("pending %d terminals", len(outcome.Pending.Terminals())), nil
	}
	return fmt.Sprintf("committed %s", outcome.Point.Element.AssetID), nil
}

// runTrace scripts the trace execution, submits, and (unless hung) waits
// for the submission to settle.
func (r *run) runTrace(ctx context.Context, step *Step) (string, error) {
	switch {
	case step.Outcome.Hang:
		// Never closed; only workflow cancellation unblocks the runner.
		r.runner.Queue(testutil.RunScript{Result: &network.TraceResult{}, Hold: make(chan struct{})})
	case step.Outcome.Fail != "":
		r.runner.Queue(testutil.RunScript{Err: errors.New(step.Outcome.Fail)})
	default:
		r.runner.Queue(testutil.RunScript{Result: resultOf(step.Outcome.Layers)})
	}

	done, err := r.wf.RunTrace(ctx)
	if err != nil {
		return "", err
	}

	if step.Outcome.Hang {
		r.traceDone = done
		return "submitted", nil
	}

	<-done
	if runErr := r.wf.RunErr(); runErr != nil {
		return "", runErr
	}

	_, layers := network.ResultLayers(r.wf.Result())
	if len(layers) == 0 {
		return "empty", nil
	}
	return strings.Join(layers, ","), nil
}

// drainTransitions moves published state changes into the trace.
func (r *run) drainTransitions(result *Result) {
	for {
		select {
		case ch := <-r.changes:
			result.Trace = append(result.Trace, TraceEvent{
				Type: "transition",
				From: ch.From,
				To:   ch.To,
				Seq:  ch.Seq,
			})
		default:
			return
		}
	}
}

// assertAll evaluates the scenario's assertions against the final state.
func (r *run) assertAll(assertions []Assertion, result *Result) {
	for i, a := range assertions {
		switch a.Type {
		case AssertStateEquals:
			if got := r.wf.State(); got != a.State {
				result.AddError("assertions[%d] state_equals: expected %s, got %s", i, a.State, got)
			}

		case AssertPointCounts:
			if a.Starts != nil {
				if got := len(r.wf.Starts()); got != *a.Starts {
					result.AddError("assertions[%d] point_counts: expected %d starts, got %d", i, *a.Starts, got)
				}
			}
			if a.Barriers != nil {
				if got := len(r.wf.Barriers()); got != *a.Barriers {
					result.AddError("assertions[%d] point_counts: expected %d barriers, got %d", i, *a.Barriers, got)
				}
			}

		case AssertResultLayers:
			_, layers := network.ResultLayers(r.wf.Result())
			if !equalStrings(layers, a.Layers) {
				result.AddError("assertions[%d] result_layers: expected %v, got %v", i, a.Layers, layers)
			}

		case AssertPendingTerminalCount:
			got := 0
			if pending := r.wf.Pending(); pending != nil {
				got = len(pending.Terminals())
			}
			if got != *a.Count {
				result.AddError("assertions[%d] pending_terminal_count: expected %d, got %d", i, *a.Count, got)
			}

		case AssertErrorCode:
			if string(r.lastCode) != a.Code {
				result.AddError("assertions[%d] error_code: expected %s, got %q", i, a.Code, r.lastCode)
			}
		}
	}
}

// polylineOf converts [x, y] vertex pairs into a polyline.
func polylineOf(vertices [][]float64) geometry.Polyline {
	if len(vertices) == 0 {
		return nil
	}
	line := make(geometry.Polyline, len(vertices))
	for i, v := range vertices {
		line[i] = geometry.Point{X: v[0], Y: v[1]}
	}
	return line
}

// elementOf builds the network element a tap's resolution commits to.
func elementOf(resolve *Resolve) network.NetworkElement {
	el := network.NetworkElement{
		AssetID: resolve.AssetID,
		Layer:   resolve.Layer,
	}
	if resolve.Kind == ResolveEdge {
		el.Kind = network.KindEdge
		return el
	}

	el.Kind = network.KindJunction
	for _, name := range resolve.Terminals {
		el.Terminals = append(el.Terminals, network.Terminal{ID: name, Name: name})
	}
	return el
}

// resultOf builds a scripted result with count elements per layer,
// one element outcome per layer in sorted order.
func resultOf(layers map[string]int) *network.TraceResult {
	names := make([]string, 0, len(layers))
	for layer := range layers {
		names = append(names, layer)
	}
	sort.Strings(names)

	result := &network.TraceResult{}
	for _, layer := range names {
		elements := make([]network.NetworkElement, layers[layer])
		for i := range elements {
			elements[i] = network.NetworkElement{
				AssetID: fmt.Sprintf("%s-%d", layer, i+1),
				Layer:   layer,
				Kind:    network.KindEdge,
			}
		}
		result.Outcomes = append(result.Outcomes, network.ElementOutcome{Elements: elements})
	}
	return result
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
