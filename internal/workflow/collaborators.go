package workflow

import (
	"context"

	"github.com/roach88/gridtrace/internal/geometry"
	"github.com/roach88/gridtrace/internal/network"
)

// IdentifiedFeature is a candidate feature returned by an identify lookup:
// geometry plus source-layer identity, not yet converted into a network
// element.
type IdentifiedFeature struct {
	AssetID string
	Layer   string

	// Geometry is the feature's polyline for line features. Point features
	// carry a single-vertex polyline (or none).
	Geometry geometry.Polyline
}

// Identifier resolves a map location to candidate features. The external
// map/identify service sits behind this interface; the workflow treats it
// as an opaque awaitable lookup and uses at most the first candidate.
type Identifier interface {
	Identify(ctx context.Context, pt network.MapPoint) ([]IdentifiedFeature, error)
}

// ElementFactory converts an identified feature into a network element
// reference and classifies it as junction or edge kind. Owned by the
// external network service.
type ElementFactory interface {
	ElementFor(ctx context.Context, f IdentifiedFeature) (network.NetworkElement, error)
}

// TraceRunner submits a trace request to the external trace execution
// service. The call must honor ctx cancellation; partial or empty results
// are valid outcomes, not errors.
type TraceRunner interface {
	RunTrace(ctx context.Context, req network.TraceRequest) (*network.TraceResult, error)
}

// HighlightSink accepts trace result elements grouped by source layer and
// applies selection highlighting. Layers arrive in sorted order.
type HighlightSink interface {
	Highlight(byLayer map[string][]network.NetworkElement, layers []string)
}

// Recorder persists committed points and finished runs. The history store
// implements it; a nil recorder disables history.
type Recorder interface {
	RecordPoint(ctx context.Context, sessionID string, p network.TracePoint) error
	RecordRun(ctx context.Context, run RunRecord) error
}

// RunRecord summarizes one finished trace run for the history store.
type RunRecord struct {
	ID        string
	SessionID string
	Type      network.TraceType
	Config    *network.TraceConfig
	Starts    []network.TracePoint
	Barriers  []network.TracePoint

	// Layers maps source layer to element count in the result.
	Layers map[string]int

	StartedSeq  int64
	FinishedSeq int64

	// Err is the surfaced submission failure, empty on success.
	Err string
}
