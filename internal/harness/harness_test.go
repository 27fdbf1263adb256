package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func edgeTap(role, asset string) Step {
	return Step{
		Op:   OpTap,
		Role: role,
		At:   &XY{X: 5, Y: 0},
		Resolve: &Resolve{
			Kind:     ResolveEdge,
			AssetID:  asset,
			Layer:    "line",
			Geometry: [][]float64{{0, 0}, {10, 0}},
		},
	}
}

func TestRun_HappyPath(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "happy",
		Description: "edge start, upstream trace",
		Steps: []Step{
			{Op: OpBegin},
			edgeTap("start", "L1"),
			{Op: OpNext},
			{Op: OpSelectType, TraceType: "upstream"},
			{Op: OpRun, Outcome: &Outcome{Layers: map[string]int{"line": 2}}},
		},
		Assertions: []Assertion{
			{Type: AssertStateEquals, State: "viewing_results"},
			{Type: AssertPointCounts, Starts: intPtr(1), Barriers: intPtr(0)},
			{Type: AssertResultLayers, Layers: []string{"line"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NotEmpty(t, result.Trace)
}

func TestRun_LookupFailureIgnored(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "lookup_miss",
		Description: "a miss is ignored and the workflow stays in selecting_points",
		Steps: []Step{
			{Op: OpBegin},
			{
				Op: OpTap, Role: "start", At: &XY{X: 1, Y: 1},
				Resolve:     &Resolve{Kind: ResolveMiss},
				ExpectError: "LOOKUP_FAILURE",
			},
		},
		Assertions: []Assertion{
			{Type: AssertStateEquals, State: "selecting_points"},
			{Type: AssertPointCounts, Starts: intPtr(0)},
			{Type: AssertErrorCode, Code: "LOOKUP_FAILURE"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_TapWhilePendingRejected(t *testing.T) {
	junctionTap := Step{
		Op: OpTap, Role: "start", At: &XY{X: 2, Y: 2},
		Resolve: &Resolve{
			Kind: ResolveJunction, AssetID: "J1", Layer: "device",
			Terminals: []string{"T1", "T2"},
		},
	}
	second := edgeTap("start", "L1")
	second.ExpectError = "TERMINAL_SELECTION_REQUIRED"

	result, err := Run(&Scenario{
		Name:        "pending_blocks_taps",
		Description: "a second tap while a terminal selection is pending is rejected",
		Steps: []Step{
			{Op: OpBegin},
			junctionTap,
			second,
			{Op: OpCancelPending},
		},
		Assertions: []Assertion{
			{Type: AssertPointCounts, Starts: intPtr(0)},
			{Type: AssertPendingTerminalCount, Count: intPtr(0)},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SubmissionFailureSurfaced(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "failed_submission",
		Description: "a failed submission lands in viewing_results with an empty result",
		Steps: []Step{
			{Op: OpBegin},
			edgeTap("start", "L1"),
			{Op: OpNext},
			{Op: OpSelectType, TraceType: "connected"},
			{
				Op:          OpRun,
				Outcome:     &Outcome{Fail: "service exploded"},
				ExpectError: "TRACE_SUBMISSION_FAILURE",
			},
		},
		Assertions: []Assertion{
			{Type: AssertStateEquals, State: "viewing_results"},
			{Type: AssertResultLayers, Layers: []string{}},
			{Type: AssertErrorCode, Code: "TRACE_SUBMISSION_FAILURE"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_NextWithoutStartFails(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "no_starts",
		Description: "next without a start point is rejected",
		Steps: []Step{
			{Op: OpBegin},
			{Op: OpNext, ExpectError: "NO_START_POINTS"},
		},
		Assertions: []Assertion{
			{Type: AssertStateEquals, State: "selecting_points"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "surprise_error",
		Description: "an error without expect_error fails the scenario",
		Steps: []Step{
			{Op: OpBegin},
			{Op: OpNext}, // rejected: no start points, not expected
		},
		Assertions: []Assertion{
			{Type: AssertStateEquals, State: "selecting_points"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_FailedAssertionReported(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "wrong_state",
		Description: "assertion mismatch fails the scenario",
		Steps: []Step{
			{Op: OpBegin},
		},
		Assertions: []Assertion{
			{Type: AssertStateEquals, State: "viewing_results"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "state_equals")
}

func TestRun_FractionComputedFromTapLocation(t *testing.T) {
	// Tap at x=5 on a 10-unit edge; the committed fraction is 0.5. The
	// detail string only names the asset, so verify through point counts
	// and a clean pass.
	result, err := Run(&Scenario{
		Name:        "edge_fraction",
		Description: "edge taps get a fractional position along the edge",
		Steps: []Step{
			{Op: OpBegin},
			edgeTap("start", "L1"),
			edgeTap("barrier", "L2"),
		},
		Assertions: []Assertion{
			{Type: AssertPointCounts, Starts: intPtr(1), Barriers: intPtr(1)},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
