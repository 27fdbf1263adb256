package network

import (
	"fmt"

	"github.com/roach88/gridtrace/internal/geometry"
)

// ElementKind classifies a network element as a junction or an edge.
type ElementKind string

const (
	// KindJunction is a point feature (device, fuse, transformer).
	KindJunction ElementKind = "junction"
	// KindEdge is a line feature (conductor, pipe segment).
	KindEdge ElementKind = "edge"
)

// Valid reports whether the kind is one of the two known kinds.
func (k ElementKind) Valid() bool {
	return k == KindJunction || k == KindEdge
}

// Terminal is a named connection point on a junction element. Junctions
// with more than one terminal require the user to disambiguate which
// terminal a trace point refers to.
type Terminal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NetworkElement is an opaque reference to a feature within the utility
// network's logical graph. The element is owned by the external network
// service; gridtrace only carries enough identity to hand it back.
type NetworkElement struct {
	// AssetID identifies the feature within its source layer.
	AssetID string `json:"asset_id"`

	// Layer names the source layer the feature came from. Results are
	// partitioned by layer for highlighting.
	Layer string `json:"layer"`

	Kind ElementKind `json:"kind"`

	// Terminals lists the connection points a junction offers. Empty for
	// edges and single-terminal junctions.
	Terminals []Terminal `json:"terminals,omitempty"`

	// Terminal is the user-selected terminal, set only after
	// disambiguation.
	Terminal *Terminal `json:"terminal,omitempty"`

	// Fraction is the fractional position along an edge's geometry where
	// the user tapped. Meaningful only when Kind == KindEdge.
	Fraction float64 `json:"fraction,omitempty"`
}

// PointRole classifies a trace point as a start location or a barrier.
type PointRole string

const (
	RoleStart   PointRole = "start"
	RoleBarrier PointRole = "barrier"
)

// Valid reports whether the role is one of the two known roles.
func (r PointRole) Valid() bool {
	return r == RoleStart || r == RoleBarrier
}

// TracePoint is a user-selected map location committed to the workflow,
// classified as a start location or a barrier.
//
// TracePoints live for one workflow cycle: created on tap, discarded on
// reset.
type TracePoint struct {
	Role    PointRole      `json:"role"`
	Element NetworkElement `json:"element"`

	// Seq is the logical clock value at commit time. Ordering of start
	// points is by Seq, never by wall clock.
	Seq int64 `json:"seq"`
}

// TraceType is the topological rule governing which connected elements a
// trace includes.
type TraceType string

const (
	TraceConnected  TraceType = "connected"
	TraceSubnetwork TraceType = "subnetwork"
	TraceUpstream   TraceType = "upstream"
	TraceDownstream TraceType = "downstream"
)

// TraceTypes lists the supported trace types in a fixed order.
var TraceTypes = []TraceType{TraceConnected, TraceSubnetwork, TraceUpstream, TraceDownstream}

// Valid reports whether the trace type is one of the supported types.
func (t TraceType) Valid() bool {
	for _, known := range TraceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTraceType converts a string into a TraceType.
func ParseTraceType(s string) (TraceType, error) {
	t := TraceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown trace type %q (valid: %v)", s, TraceTypes)
	}
	return t, nil
}

// TraceConfig is an optional named trace configuration forwarded to the
// trace service alongside the trace type. Configurations are authored in
// CUE and compiled by internal/config.
type TraceConfig struct {
	Name string    `json:"name"`
	Type TraceType `json:"type"`

	// Domain and Tier scope the trace within the utility network
	// (e.g. "electric" / "Medium Voltage Radial"). Optional.
	Domain string `json:"domain,omitempty"`
	Tier   string `json:"tier,omitempty"`

	IncludeBarriers     bool `json:"include_barriers"`
	ValidateConsistency bool `json:"validate_consistency"`
}

// TraceRequest is the payload submitted to the trace execution service.
// A request is constructed fresh per trace invocation from the workflow's
// accumulated points.
//
// Invariant: a request is only valid with at least one start point.
type TraceRequest struct {
	SessionID string       `json:"session_id"`
	Type      TraceType    `json:"type"`
	Config    *TraceConfig `json:"config,omitempty"`

	// Starts is ordered by commit Seq. Barriers are a set; order carries
	// no meaning but is kept stable for deterministic history.
	Starts   []TracePoint `json:"starts"`
	Barriers []TracePoint `json:"barriers"`

	// Seq is the logical clock value at submission time.
	Seq int64 `json:"seq"`
}

// Validate checks the request invariants before submission.
func (r TraceRequest) Validate() error {
	if len(r.Starts) == 0 {
		return fmt.Errorf("trace request requires at least one start point")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("unknown trace type %q", r.Type)
	}
	for i, p := range r.Starts {
		if p.Role != RoleStart {
			return fmt.Errorf("starts[%d] has role %q", i, p.Role)
		}
	}
	for i, p := range r.Barriers {
		if p.Role != RoleBarrier {
			return fmt.Errorf("barriers[%d] has role %q", i, p.Role)
		}
	}
	return nil
}

// Session carries the credentials and endpoint configuration a workflow
// operates under. It replaces any process-wide SDK environment: callers
// construct a Session explicitly and inject it.
type Session struct {
	ID         string `json:"id"`
	User       string `json:"user"`
	ServiceURL string `json:"service_url"`

	// Token authenticates calls to the trace service. Carried per-session,
	// never ambient.
	Token string `json:"-"`
}

// MapPoint re-exports the geometry point type at the domain boundary so
// higher layers can speak in network terms.
type MapPoint = geometry.Point
