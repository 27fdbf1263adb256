// Package harness provides scenario-based conformance testing for the
// trace workflow.
//
// The harness drives a workflow through a scripted sequence of operations
// with fake collaborators, records an event trace, and validates
// assertions over the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	session_token: "sess-0001"
//	steps:
//	  - op: begin
//	  - op: tap
//	    role: start
//	    at: { x: 5, y: 0 }
//	    resolve:
//	      kind: edge
//	      asset_id: L1
//	      layer: line
//	      geometry: [[0, 0], [10, 0]]
//	  - op: next
//	  - op: select_type
//	    trace_type: upstream
//	  - op: run
//	    outcome:
//	      layers: { line: 2, device: 1 }
//	assertions:
//	  - type: state_equals
//	    state: viewing_results
//	  - type: result_layers
//	    layers: [device, line]
//
// # Steps
//
//   - begin, next, reset: bare transitions
//   - tap: scripted identify resolution (kind: edge, junction, miss, error)
//   - select_terminal: disambiguate the pending junction by index
//   - cancel_pending: discard the pending item
//   - select_type: choose the trace type
//   - run: scripted trace execution (layers, fail, or hang for
//     cancellation scenarios)
//
// A step with expect_error asserts that the operation surfaces that
// workflow error code; an unexpected error fails the scenario.
//
// # Assertion Types
//
//   - state_equals: final workflow state
//   - point_counts: accumulated start and barrier counts
//   - result_layers: sorted layer keys of the viewed result
//   - pending_terminal_count: terminals on the pending item (0 = none)
//   - error_code: last workflow error code observed during the run
//
// # Deterministic Testing
//
// Scenarios execute with a fixed session token, a fresh logical clock, and
// fully scripted collaborators, so the same scenario always produces a
// byte-identical event trace. Golden comparison uses canonical JSON via
// sebdah/goldie.
package harness
