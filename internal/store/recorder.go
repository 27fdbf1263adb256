package store

import (
	"context"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

// Recorder adapts a Store to the workflow.Recorder interface, writing the
// session record lazily before the first point or run that references it.
type Recorder struct {
	store   *Store
	session network.Session
}

// NewRecorder creates a recorder for one session.
func NewRecorder(s *Store, session network.Session) *Recorder {
	return &Recorder{store: s, session: session}
}

// RecordPoint implements workflow.Recorder.
func (r *Recorder) RecordPoint(ctx context.Context, sessionID string, p network.TracePoint) error {
	if err := r.ensureSession(ctx); err != nil {
		return err
	}
	return r.store.WritePoint(ctx, sessionID, p)
}

// RecordRun implements workflow.Recorder.
func (r *Recorder) RecordRun(ctx context.Context, run workflow.RunRecord) error {
	if err := r.ensureSession(ctx); err != nil {
		return err
	}
	return r.store.WriteRun(ctx, run)
}

// ensureSession writes the session row. WriteSession is idempotent, so
// calling it per record costs one no-op insert and avoids tracking state.
func (r *Recorder) ensureSession(ctx context.Context) error {
	return r.store.WriteSession(ctx, r.session, 0)
}

var _ workflow.Recorder = (*Recorder)(nil)
