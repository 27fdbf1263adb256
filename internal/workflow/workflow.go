package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"github.com/roach88/gridtrace/internal/geometry"
	"github.com/roach88/gridtrace/internal/network"
)

// Workflow states.
const (
	StateIdle               = "idle"
	StateSelectingPoints    = "selecting_points"
	StateSelectingTraceType = "selecting_trace_type"
	StateTracing            = "tracing"
	StateViewingResults     = "viewing_results"
)

// Workflow events.
const (
	EventBegin     = "begin"
	EventNext      = "next"
	EventRun       = "run"
	EventTraceDone = "trace_done"
	EventReset     = "reset"
)

var allStates = []string{
	StateIdle,
	StateSelectingPoints,
	StateSelectingTraceType,
	StateTracing,
	StateViewingResults,
}

// PendingPoint is a tap whose addition is paused until the user
// disambiguates which terminal of a multi-terminal junction it refers to.
type PendingPoint struct {
	Role    network.PointRole
	Element network.NetworkElement
}

// Terminals returns the candidate terminals to choose from.
func (p *PendingPoint) Terminals() []network.Terminal {
	return p.Element.Terminals
}

// TapOutcome reports what a tap resolved to: either a committed point or a
// pending item awaiting terminal disambiguation. Exactly one field is set.
type TapOutcome struct {
	Point   *network.TracePoint
	Pending *PendingPoint
}

// Deps bundles the external collaborators a workflow drives.
// Identifier, Elements and Runner are required; Highlighter is optional.
type Deps struct {
	Identifier  Identifier
	Elements    ElementFactory
	Runner      TraceRunner
	Highlighter HighlightSink
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRecorder attaches a history recorder. Committed points and finished
// runs are persisted through it; recorder failures are logged, never
// surfaced to the user.
func WithRecorder(r Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// WithClock replaces the workflow's logical clock. Used by tests and by
// sessions resuming against recorded history.
func WithClock(c *Clock) Option {
	return func(w *Workflow) { w.clock = c }
}

// WithTokens replaces the token generator (FixedGenerator in tests).
func WithTokens(g TokenGenerator) Option {
	return func(w *Workflow) { w.tokens = g }
}

// Workflow is the trace workflow state machine.
//
// All mutation happens under one mutex through the exported operations
// (single-writer discipline). The asynchronous trace goroutine re-enters
// only through the guarded completion path, and a generation counter
// ensures completions from cancelled traces are discarded.
type Workflow struct {
	mu sync.Mutex

	machine *fsm.FSM
	session network.Session

	identifier  Identifier
	elements    ElementFactory
	runner      TraceRunner
	highlighter HighlightSink
	recorder    Recorder

	notifier *Notifier
	clock    *Clock
	tokens   TokenGenerator

	starts   []network.TracePoint
	barriers []network.TracePoint
	pending  *PendingPoint

	traceType network.TraceType
	config    *network.TraceConfig

	result *network.TraceResult
	runErr error

	// gen increments on every reset. A trace completion carrying a stale
	// generation is discarded without mutating state.
	gen         uint64
	cancelTrace context.CancelFunc
}

// New creates a Workflow in the idle state for the given session.
func New(session network.Session, deps Deps, opts ...Option) (*Workflow, error) {
	if deps.Identifier == nil {
		return nil, fmt.Errorf("workflow: Identifier is required")
	}
	if deps.Elements == nil {
		return nil, fmt.Errorf("workflow: ElementFactory is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("workflow: TraceRunner is required")
	}

	w := &Workflow{
		session:     session,
		identifier:  deps.Identifier,
		elements:    deps.Elements,
		runner:      deps.Runner,
		highlighter: deps.Highlighter,
		notifier:    NewNotifier(),
		clock:       NewClock(),
		tokens:      UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.session.ID == "" {
		w.session.ID = w.tokens.Generate()
	}

	w.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventBegin, Src: []string{StateIdle}, Dst: StateSelectingPoints},
			{Name: EventNext, Src: []string{StateSelectingPoints}, Dst: StateSelectingTraceType},
			{Name: EventRun, Src: []string{StateSelectingTraceType}, Dst: StateTracing},
			{Name: EventTraceDone, Src: []string{StateTracing}, Dst: StateViewingResults},
			{Name: EventReset, Src: allStates, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)

	return w, nil
}

// Session returns the session the workflow operates under.
func (w *Workflow) Session() network.Session {
	return w.session
}

// State returns the current workflow state.
func (w *Workflow) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.Current()
}

// Subscribe registers for state-change notifications.
func (w *Workflow) Subscribe() (<-chan StateChange, func()) {
	return w.notifier.Subscribe()
}

// Begin starts a trace workflow cycle: idle -> selecting_points.
func (w *Workflow) Begin(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fire(ctx, EventBegin)
}

// Tap resolves a map location to a network element and accumulates it as a
// start point or barrier.
//
// Outcomes:
//   - resolved edge or unambiguous junction: committed immediately
//   - junction with multiple terminals: paused as a pending item until
//     SelectTerminal or CancelPending
//   - failed or empty lookup: LOOKUP_FAILURE error, state unchanged
//
// Only available in selecting_points, and only while no pending item is
// awaiting disambiguation.
func (w *Workflow) Tap(ctx context.Context, pt network.MapPoint, role network.PointRole) (*TapOutcome, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("workflow: invalid point role %q", role)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.machine.Current()
	if state != StateSelectingPoints {
		return nil, newError(ErrCodeInvalidTransition, state, "point collection is only available while selecting points")
	}
	if w.pending != nil {
		return nil, newError(ErrCodeTerminalSelectionRequired, state, "a terminal selection is pending; select or cancel it first")
	}

	// Identify runs under the workflow mutex: point collection is strictly
	// sequential (single-writer discipline), and the lookup is the only
	// suspension point in it.
	features, err := w.identifier.Identify(ctx, pt)
	if err != nil {
		slog.Debug("identify failed, tap ignored", "session", w.session.ID, "error", err)
		return nil, wrapError(ErrCodeLookupFailure, state, "identify lookup failed", err)
	}
	if len(features) == 0 {
		return nil, newError(ErrCodeLookupFailure, state, "no feature at tap location")
	}
	feature := features[0]

	element, err := w.elements.ElementFor(ctx, feature)
	if err != nil {
		slog.Debug("element conversion failed, tap ignored", "session", w.session.ID, "asset", feature.AssetID, "error", err)
		return nil, wrapError(ErrCodeLookupFailure, state, "feature is not a network element", err)
	}

	if element.Kind == network.KindEdge {
		element.Fraction = geometry.FractionAlong(feature.Geometry, pt)
	}

	if element.Kind == network.KindJunction && len(element.Terminals) > 1 && element.Terminal == nil {
		w.pending = &PendingPoint{Role: role, Element: element}
		slog.Debug("tap paused for terminal selection",
			"session", w.session.ID,
			"asset", element.AssetID,
			"terminals", len(element.Terminals),
		)
		return &TapOutcome{Pending: w.pending}, nil
	}

	point := w.commit(ctx, role, element)
	return &TapOutcome{Point: &point}, nil
}

// SelectTerminal disambiguates the pending junction by choosing the
// terminal at index i, committing exactly one point.
func (w *Workflow) SelectTerminal(ctx context.Context, i int) (*network.TracePoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.machine.Current()
	if state != StateSelectingPoints {
		return nil, newError(ErrCodeInvalidTransition, state, "terminal selection is only available while selecting points")
	}
	if w.pending == nil {
		return nil, newError(ErrCodeInvalidTransition, state, "no terminal selection is pending")
	}
	terminals := w.pending.Element.Terminals
	if i < 0 || i >= len(terminals) {
		return nil, fmt.Errorf("workflow: terminal index %d out of range [0,%d)", i, len(terminals))
	}

	element := w.pending.Element
	element.Terminal = &terminals[i]
	role := w.pending.Role
	w.pending = nil

	point := w.commit(ctx, role, element)
	return &point, nil
}

// CancelPending discards the pending item without committing a point.
// Returns false if nothing was pending.
func (w *Workflow) CancelPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		return false
	}
	w.pending = nil
	return true
}

// commit appends a resolved point to the accumulated lists and records it.
// Caller holds w.mu.
func (w *Workflow) commit(ctx context.Context, role network.PointRole, element network.NetworkElement) network.TracePoint {
	point := network.TracePoint{
		Role:    role,
		Element: element,
		Seq:     w.clock.Next(),
	}

	switch role {
	case network.RoleStart:
		w.starts = append(w.starts, point)
	case network.RoleBarrier:
		w.barriers = append(w.barriers, point)
	}

	slog.Info("trace point committed",
		"session", w.session.ID,
		"role", role,
		"asset", element.AssetID,
		"layer", element.Layer,
		"seq", point.Seq,
	)

	if w.recorder != nil {
		// Log and continue - history is an audit trail, not a gate.
		if err := w.recorder.RecordPoint(ctx, w.session.ID, point); err != nil {
			slog.Error("record point failed", "session", w.session.ID, "seq", point.Seq, "error", err)
		}
	}

	return point
}

// Next advances from point selection to trace-type selection.
// Requires at least one accumulated start point and no pending terminal
// disambiguation.
func (w *Workflow) Next(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.machine.Current()
	if state == StateSelectingPoints && w.pending != nil {
		return newError(ErrCodeTerminalSelectionRequired, state, "resolve or cancel the pending terminal selection first")
	}
	if state == StateSelectingPoints && len(w.starts) == 0 {
		return newError(ErrCodeNoStartPoints, state, "at least one start point is required")
	}
	return w.fire(ctx, EventNext)
}

// SelectTraceType chooses the trace type to submit.
// Only available while selecting the trace type.
func (w *Workflow) SelectTraceType(t network.TraceType) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.machine.Current()
	if state != StateSelectingTraceType {
		return newError(ErrCodeInvalidTransition, state, "trace type selection is only available while selecting a trace type")
	}
	if !t.Valid() {
		return fmt.Errorf("workflow: unknown trace type %q", t)
	}
	w.traceType = t
	return nil
}

// SelectConfig attaches a named trace configuration. The configuration's
// trace type becomes the selected type.
func (w *Workflow) SelectConfig(cfg network.TraceConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.machine.Current()
	if state != StateSelectingTraceType {
		return newError(ErrCodeInvalidTransition, state, "trace configuration is only available while selecting a trace type")
	}
	if !cfg.Type.Valid() {
		return fmt.Errorf("workflow: config %q has unknown trace type %q", cfg.Name, cfg.Type)
	}
	w.config = &cfg
	w.traceType = cfg.Type
	return nil
}

// RunTrace builds a fresh TraceRequest from the accumulated points and
// submits it asynchronously. The workflow transitions to tracing
// immediately; the returned channel closes when the submission has settled
// (result applied, failure surfaced, or stale outcome discarded).
//
// RunTrace never blocks on the trace service. Cancellation is via Reset,
// which aborts the pending operation without side effects on state.
func (w *Workflow) RunTrace(ctx context.Context) (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := w.machine.Current()
	if state != StateSelectingTraceType {
		return nil, newError(ErrCodeInvalidTransition, state, "run trace is only available while selecting a trace type")
	}
	if !w.traceType.Valid() {
		return nil, newError(ErrCodeInvalidTransition, state, "no trace type selected")
	}

	req := w.buildRequest()
	if err := req.Validate(); err != nil {
		return nil, wrapError(ErrCodeNoStartPoints, state, "invalid trace request", err)
	}

	if err := w.fire(ctx, EventRun); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancelTrace = cancel
	gen := w.gen
	done := make(chan struct{})

	slog.Info("trace submitted",
		"session", w.session.ID,
		"type", req.Type,
		"starts", len(req.Starts),
		"barriers", len(req.Barriers),
		"seq", req.Seq,
	)

	go func() {
		defer close(done)
		result, err := w.runner.RunTrace(runCtx, req)
		w.completeTrace(gen, req, result, err)
	}()

	return done, nil
}

// buildRequest constructs a fresh TraceRequest from accumulated state.
// Caller holds w.mu.
func (w *Workflow) buildRequest() network.TraceRequest {
	starts := make([]network.TracePoint, len(w.starts))
	copy(starts, w.starts)
	barriers := make([]network.TracePoint, len(w.barriers))
	copy(barriers, w.barriers)

	return network.TraceRequest{
		SessionID: w.session.ID,
		Type:      w.traceType,
		Config:    w.config,
		Starts:    starts,
		Barriers:  barriers,
		Seq:       w.clock.Next(),
	}
}

// completeTrace applies the outcome of an asynchronous submission.
// Runs on the trace goroutine; the generation check guarantees a
// completion from a cancelled trace never mutates state.
func (w *Workflow) completeTrace(gen uint64, req network.TraceRequest, result *network.TraceResult, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		// Reset happened while the trace was in flight (CANCELLATION_REQUESTED):
		// discard the outcome silently.
		slog.Debug("discarding stale trace completion", "session", w.session.ID, "seq", req.Seq)
		return
	}
	w.cancelTrace = nil

	if err != nil {
		w.result = &network.TraceResult{}
		w.runErr = wrapError(ErrCodeTraceSubmissionFailure, w.machine.Current(), "trace submission failed", err)
		slog.Warn("trace submission failed", "session", w.session.ID, "type", req.Type, "error", err)
	} else {
		if result == nil {
			result = &network.TraceResult{}
		}
		w.result = result
		w.runErr = nil
	}

	// tracing -> viewing_results holds for both success and reported
	// failure; the workflow is never left stuck in tracing.
	if ferr := w.fire(context.Background(), EventTraceDone); ferr != nil {
		slog.Error("trace completion transition failed", "session", w.session.ID, "error", ferr)
		return
	}

	byLayer, layers := network.ResultLayers(w.result)
	if w.runErr == nil && w.highlighter != nil {
		w.highlighter.Highlight(byLayer, layers)
	}

	slog.Info("trace completed",
		"session", w.session.ID,
		"type", req.Type,
		"layers", len(layers),
		"failed", w.runErr != nil,
	)

	w.recordRun(req, byLayer)
}

// recordRun persists a finished run. Caller holds w.mu.
// Log and continue on failure - history never gates the workflow.
func (w *Workflow) recordRun(req network.TraceRequest, byLayer map[string][]network.NetworkElement) {
	if w.recorder == nil {
		return
	}

	id, err := network.RunID(req.SessionID, req.Type, req.Starts, req.Barriers, req.Seq)
	if err != nil {
		slog.Error("compute run ID failed", "session", w.session.ID, "error", err)
		return
	}

	layerCounts := make(map[string]int, len(byLayer))
	for layer, elements := range byLayer {
		layerCounts[layer] = len(elements)
	}

	record := RunRecord{
		ID:          id,
		SessionID:   req.SessionID,
		Type:        req.Type,
		Config:      req.Config,
		Starts:      req.Starts,
		Barriers:    req.Barriers,
		Layers:      layerCounts,
		StartedSeq:  req.Seq,
		FinishedSeq: w.clock.Next(),
	}
	if w.runErr != nil {
		record.Err = w.runErr.Error()
	}

	if err := w.recorder.RecordRun(context.Background(), record); err != nil {
		slog.Error("record run failed", "session", w.session.ID, "run", id, "error", err)
	}
}

// Reset returns the workflow to idle from any state: cancels the in-flight
// trace (if any), clears accumulated points, pending item, selected type,
// and result.
func (w *Workflow) Reset(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.cancelTrace != nil {
		w.cancelTrace()
		w.cancelTrace = nil
		slog.Info("in-flight trace cancelled", "session", w.session.ID)
	}

	w.starts = nil
	w.barriers = nil
	w.pending = nil
	w.traceType = ""
	w.config = nil
	w.result = nil
	w.runErr = nil

	return w.fire(ctx, EventReset)
}

// fire drives the state machine and publishes the state change.
// Caller holds w.mu.
func (w *Workflow) fire(ctx context.Context, event string) error {
	from := w.machine.Current()
	if err := w.machine.Event(ctx, event); err != nil {
		var noop fsm.NoTransitionError
		if errors.As(err, &noop) {
			// Reset while already idle - nothing to transition.
			return nil
		}
		return wrapError(ErrCodeInvalidTransition, from, fmt.Sprintf("event %q not allowed", event), err)
	}

	to := w.machine.Current()
	w.notifier.publish(StateChange{From: from, To: to, Seq: w.clock.Next()})
	slog.Debug("workflow transition", "session", w.session.ID, "from", from, "to", to)
	return nil
}

// Starts returns a copy of the accumulated start points, ordered by commit
// sequence.
func (w *Workflow) Starts() []network.TracePoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]network.TracePoint, len(w.starts))
	copy(out, w.starts)
	return out
}

// Barriers returns a copy of the accumulated barrier points.
func (w *Workflow) Barriers() []network.TracePoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]network.TracePoint, len(w.barriers))
	copy(out, w.barriers)
	return out
}

// Pending returns the pending item awaiting terminal disambiguation, or
// nil.
func (w *Workflow) Pending() *PendingPoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return nil
	}
	p := *w.pending
	return &p
}

// TraceTypeSelected returns the selected trace type ("" if none).
func (w *Workflow) TraceTypeSelected() network.TraceType {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.traceType
}

// Result returns the trace result being viewed, or nil outside
// viewing_results.
func (w *Workflow) Result() *network.TraceResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// RunErr returns the surfaced submission failure for the viewed result, or
// nil on success.
func (w *Workflow) RunErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

// Clock returns the workflow's logical clock.
func (w *Workflow) Clock() *Clock {
	return w.clock
}
