package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

// WriteSession inserts a session record.
// Idempotent via ON CONFLICT(id) DO NOTHING. The session token is never
// persisted - history records "who and where", not credentials.
func (s *Store) WriteSession(ctx context.Context, sess network.Session, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_name, service_url, created_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.User,
		sess.ServiceURL,
		seq,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WritePoint inserts a committed trace point.
// The point ID is content-addressed, so re-recording the same point is a
// no-op (ON CONFLICT DO NOTHING).
func (s *Store) WritePoint(ctx context.Context, sessionID string, p network.TracePoint) error {
	id, err := network.PointID(sessionID, p)
	if err != nil {
		return fmt.Errorf("write point: %w", err)
	}

	terminalID := ""
	if p.Element.Terminal != nil {
		terminalID = p.Element.Terminal.ID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trace_points
		(id, session_id, role, asset_id, layer, kind, terminal_id, fraction_ppm, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		sessionID,
		string(p.Role),
		p.Element.AssetID,
		p.Element.Layer,
		string(p.Element.Kind),
		terminalID,
		network.FractionPPM(p.Element.Fraction),
		p.Seq,
	)
	if err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}

// WriteRun inserts a finished trace run and its per-layer result counts in
// a single transaction. Idempotent on the content-addressed run ID: a
// replayed record leaves the stored run and its layers untouched.
func (s *Store) WriteRun(ctx context.Context, rec workflow.RunRecord) error {
	request, err := requestSnapshot(rec)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	configName := ""
	if rec.Config != nil {
		configName = rec.Config.Name
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO trace_runs
		(id, session_id, trace_type, config_name, request, error, started_seq, finished_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.SessionID,
		string(rec.Type),
		configName,
		request,
		rec.Err,
		rec.StartedSeq,
		rec.FinishedSeq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write run: rows affected: %w", err)
	}
	if inserted == 0 {
		// Run already recorded; layers were written with it.
		return tx.Commit()
	}

	for layer, count := range rec.Layers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_layers (run_id, layer, element_count)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, layer) DO NOTHING
		`, rec.ID, layer, count); err != nil {
			return fmt.Errorf("write run layer %q: %w", layer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

// requestSnapshot serializes the points of a run for the audit trail.
// This is display data, not identity data - plain JSON, not canonical.
func requestSnapshot(rec workflow.RunRecord) (string, error) {
	snapshot := struct {
		Type     network.TraceType    `json:"type"`
		Config   *network.TraceConfig `json:"config,omitempty"`
		Starts   []network.TracePoint `json:"starts"`
		Barriers []network.TracePoint `json:"barriers"`
	}{
		Type:     rec.Type,
		Config:   rec.Config,
		Starts:   rec.Starts,
		Barriers: rec.Barriers,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal request snapshot: %w", err)
	}
	return string(data), nil
}
