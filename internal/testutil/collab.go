package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

// Resolution is one scripted identify outcome: an error, a miss (no
// features), or a list of candidate features.
type Resolution struct {
	Err      error
	Features []workflow.IdentifiedFeature
}

// ScriptedIdentifier replays queued resolutions in order, one per Identify
// call. Running out of script is a test bug and panics.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedIdentifier struct {
	mu    sync.Mutex
	queue []Resolution
}

// Queue appends resolutions to the script.
func (s *ScriptedIdentifier) Queue(rs ...Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, rs...)
}

// QueueMiss scripts an identify that finds nothing.
func (s *ScriptedIdentifier) QueueMiss() {
	s.Queue(Resolution{})
}

// QueueFeature scripts an identify resolving to a single feature.
func (s *ScriptedIdentifier) QueueFeature(f workflow.IdentifiedFeature) {
	s.Queue(Resolution{Features: []workflow.IdentifiedFeature{f}})
}

// Identify implements workflow.Identifier.
func (s *ScriptedIdentifier) Identify(_ context.Context, _ network.MapPoint) ([]workflow.IdentifiedFeature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		panic("ScriptedIdentifier: identify script exhausted")
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r.Features, r.Err
}

// StaticElements maps asset IDs to prebuilt network elements, implementing
// workflow.ElementFactory. Unknown assets fail the lookup.
type StaticElements struct {
	ByAsset map[string]network.NetworkElement
}

// ElementFor implements workflow.ElementFactory.
func (s *StaticElements) ElementFor(_ context.Context, f workflow.IdentifiedFeature) (network.NetworkElement, error) {
	el, ok := s.ByAsset[f.AssetID]
	if !ok {
		return network.NetworkElement{}, fmt.Errorf("no element for asset %q", f.AssetID)
	}
	return el, nil
}

// RunScript is one scripted trace execution.
type RunScript struct {
	Result *network.TraceResult
	Err    error

	// Hold, when non-nil, blocks the run until the channel closes or the
	// request context is cancelled. Used to script in-flight cancellation.
	Hold <-chan struct{}
}

// ScriptedRunner replays queued run scripts in order, implementing
// workflow.TraceRunner.
//
// Thread-safety: safe for concurrent use via internal mutex; the blocking
// wait happens outside the lock.
type ScriptedRunner struct {
	mu    sync.Mutex
	queue []RunScript

	// Requests records every submitted request in order.
	Requests []network.TraceRequest
}

// Queue appends run scripts.
func (s *ScriptedRunner) Queue(rs ...RunScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, rs...)
}

// RunTrace implements workflow.TraceRunner.
func (s *ScriptedRunner) RunTrace(ctx context.Context, req network.TraceRequest) (*network.TraceResult, error) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		panic("ScriptedRunner: run script exhausted")
	}
	script := s.queue[0]
	s.queue = s.queue[1:]
	s.Requests = append(s.Requests, req)
	s.mu.Unlock()

	if script.Hold != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-script.Hold:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return script.Result, script.Err
}

// CaptureHighlights records highlight calls, implementing
// workflow.HighlightSink.
type CaptureHighlights struct {
	mu    sync.Mutex
	calls []HighlightCall
}

// HighlightCall is one recorded highlight application.
type HighlightCall struct {
	ByLayer map[string][]network.NetworkElement
	Layers  []string
}

// Highlight implements workflow.HighlightSink.
func (c *CaptureHighlights) Highlight(byLayer map[string][]network.NetworkElement, layers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, HighlightCall{ByLayer: byLayer, Layers: layers})
}

// Calls returns a copy of the recorded highlight calls.
func (c *CaptureHighlights) Calls() []HighlightCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HighlightCall, len(c.calls))
	copy(out, c.calls)
	return out
}

var (
	_ workflow.Identifier     = (*ScriptedIdentifier)(nil)
	_ workflow.ElementFactory = (*StaticElements)(nil)
	_ workflow.TraceRunner    = (*ScriptedRunner)(nil)
	_ workflow.HighlightSink  = (*CaptureHighlights)(nil)
)
