package network

import (
	"sort"

	"github.com/roach88/gridtrace/internal/geometry"
)

// TraceOutcome is a sealed interface over the closed set of result kinds a
// trace service can return. Only ElementOutcome and GeometryOutcome
// implement it, which lets consumers type-switch exhaustively:
//
//	switch o := outcome.(type) {
//	case ElementOutcome:
//	    // highlight o.Elements
//	case GeometryOutcome:
//	    // draw o.Lines
//	}
type TraceOutcome interface {
	traceOutcome() // Sealed - only types in this package implement it
}

// ElementOutcome is a trace result expressed as network elements.
type ElementOutcome struct {
	Elements []NetworkElement `json:"elements"`
}

func (ElementOutcome) traceOutcome() {}

// GeometryOutcome is a trace result expressed as aggregate geometry for a
// single source layer.
type GeometryOutcome struct {
	Layer string              `json:"layer"`
	Lines []geometry.Polyline `json:"lines"`
}

func (GeometryOutcome) traceOutcome() {}

// TraceResult is the collection of outcomes returned by the external trace
// service for one submission. A result with zero outcomes is a valid
// terminal state (the trace found nothing), not an error.
//
// The result is owned by the workflow for display only and is discarded on
// reset.
type TraceResult struct {
	Outcomes []TraceOutcome
}

// Empty reports whether the result carries no outcomes.
func (r *TraceResult) Empty() bool {
	return r == nil || len(r.Outcomes) == 0
}

// ResultLayers partitions the element outcomes of a result by source layer
// for downstream highlighting. Layer keys are returned sorted so callers
// iterate deterministically; geometry outcomes are not included (they carry
// no per-element identity to highlight).
func ResultLayers(r *TraceResult) (map[string][]NetworkElement, []string) {
	byLayer := make(map[string][]NetworkElement)
	if r == nil {
		return byLayer, nil
	}

	for _, outcome := range r.Outcomes {
		switch o := outcome.(type) {
		case ElementOutcome:
			for _, el := range o.Elements {
				byLayer[el.Layer] = append(byLayer[el.Layer], el)
			}
		case GeometryOutcome:
			// No element identity to partition.
		}
	}

	layers := make([]string, 0, len(byLayer))
	for layer := range byLayer {
		layers = append(layers, layer)
	}
	sort.Strings(layers)

	return byLayer, layers
}
