package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridtrace/internal/geometry"
)

func TestResultLayers_PartitionsByLayer(t *testing.T) {
	result := &TraceResult{
		Outcomes: []TraceOutcome{
			ElementOutcome{Elements: []NetworkElement{
				{AssetID: "L1", Layer: "line", Kind: KindEdge},
				{AssetID: "D1", Layer: "device", Kind: KindJunction},
				{AssetID: "L2", Layer: "line", Kind: KindEdge},
			}},
		},
	}

	byLayer, layers := ResultLayers(result)

	require.Equal(t, []string{"device", "line"}, layers)
	assert.Len(t, byLayer["line"], 2)
	assert.Len(t, byLayer["device"], 1)
	assert.Equal(t, "L1", byLayer["line"][0].AssetID)
	assert.Equal(t, "L2", byLayer["line"][1].AssetID)
}

func TestResultLayers_GeometryOutcomesNotPartitioned(t *testing.T) {
	result := &TraceResult{
		Outcomes: []TraceOutcome{
			GeometryOutcome{Layer: "line", Lines: []geometry.Polyline{{{X: 0, Y: 0}, {X: 1, Y: 1}}}},
			ElementOutcome{Elements: []NetworkElement{
				{AssetID: "D1", Layer: "device", Kind: KindJunction},
			}},
		},
	}

	byLayer, layers := ResultLayers(result)

	assert.Equal(t, []string{"device"}, layers)
	assert.NotContains(t, byLayer, "line")
}

func TestResultLayers_NilAndEmpty(t *testing.T) {
	byLayer, layers := ResultLayers(nil)
	assert.Empty(t, byLayer)
	assert.Empty(t, layers)

	byLayer, layers = ResultLayers(&TraceResult{})
	assert.Empty(t, byLayer)
	assert.Empty(t, layers)
}

func TestTraceResult_Empty(t *testing.T) {
	assert.True(t, (*TraceResult)(nil).Empty())
	assert.True(t, (&TraceResult{}).Empty())
	assert.False(t, (&TraceResult{Outcomes: []TraceOutcome{ElementOutcome{}}}).Empty())
}

// Exhaustive matching over the sealed variant should not need a default
// arm for the known kinds.
func TestTraceOutcome_Sealed(t *testing.T) {
	outcomes := []TraceOutcome{
		ElementOutcome{},
		GeometryOutcome{},
	}

	for _, o := range outcomes {
		switch o.(type) {
		case ElementOutcome, GeometryOutcome:
			// Known kinds.
		default:
			t.Fatalf("unexpected outcome kind %T", o)
		}
	}
}
