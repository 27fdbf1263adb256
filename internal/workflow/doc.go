// Package workflow implements the gridtrace utility-network trace workflow.
//
// The workflow is the heart of gridtrace - it sequences user point
// collection, trace-type selection, asynchronous trace execution against an
// external trace service, and result viewing, and it enforces that each
// operation is only available in the correct state.
//
// ARCHITECTURE:
//
// State Machine:
// Five states driven by a looplab/fsm machine:
//
//	idle -> selecting_points -> selecting_trace_type -> tracing -> viewing_results
//
// with reset returning to idle from any state. Transitions outside this
// table fail with INVALID_TRANSITION; in particular no state permits
// re-entry into tracing, so a single trace is in flight at most.
//
// Single-Writer Discipline:
// All workflow state (point lists, pending item, selected type, result) is
// owned by the Workflow and mutated only through its operations under one
// mutex. The only concurrency is the trace submission goroutine, which
// re-enters exclusively through the guarded completion path.
//
// Cancellation:
// Each trace submission captures the workflow's generation counter. Reset
// cancels the submission context and bumps the generation; a late-arriving
// completion observes the stale generation and is discarded without
// touching state. A cancelled trace therefore leaves no orphaned
// completion able to mutate the workflow.
//
// Point Collection:
// While selecting points, each tap resolves through the Identifier to zero
// or one network element. Failed or empty lookups are ignored (no state
// change). Edge elements get a fractional position computed from the tap
// location. Junctions offering multiple terminals pause the addition as a
// pending item until the user disambiguates the terminal.
//
// Failure Semantics:
// A submission failure moves the workflow to viewing_results with an empty
// result and a surfaced error - it never leaves the workflow stuck in
// tracing. Every error is recoverable via reset; none is fatal.
package workflow
