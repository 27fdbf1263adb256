package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/gridtrace/internal/network"
)

// PointRow is a stored trace point.
type PointRow struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	Role        network.PointRole   `json:"role"`
	AssetID     string              `json:"asset_id"`
	Layer       string              `json:"layer"`
	Kind        network.ElementKind `json:"kind"`
	TerminalID  string              `json:"terminal_id,omitempty"`
	FractionPPM int64               `json:"fraction_ppm"`
	Seq         int64               `json:"seq"`
}

// RunRow is a stored trace run.
type RunRow struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Type        network.TraceType `json:"trace_type"`
	ConfigName  string            `json:"config_name,omitempty"`
	Request     string            `json:"request"`
	Err         string            `json:"error,omitempty"`
	StartedSeq  int64             `json:"started_seq"`
	FinishedSeq int64             `json:"finished_seq"`

	// Layers maps source layer to element count; filled by ReadRun.
	Layers map[string]int `json:"layers,omitempty"`
}

// History is the recorded timeline for one session.
type History struct {
	SessionID string     `json:"session_id"`
	Points    []PointRow `json:"points"`
	Runs      []RunRow   `json:"runs"`
}

// ReadSessionHistory returns all points and runs recorded for a session.
// Results are ordered deterministically: seq ASC, id ASC COLLATE BINARY.
// Returns empty slices (not nil) if nothing is recorded.
func (s *Store) ReadSessionHistory(ctx context.Context, sessionID string) (*History, error) {
	points, err := s.readSessionPoints(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	runs, err := s.readSessionRuns(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &History{SessionID: sessionID, Points: points, Runs: runs}, nil
}

func (s *Store) readSessionPoints(ctx context.Context, sessionID string) ([]PointRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, asset_id, layer, kind, terminal_id, fraction_ppm, seq
		FROM trace_points
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	points := []PointRow{}
	for rows.Next() {
		var p PointRow
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.Role, &p.AssetID, &p.Layer,
			&p.Kind, &p.TerminalID, &p.FractionPPM, &p.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}

	return points, nil
}

func (s *Store) readSessionRuns(ctx context.Context, sessionID string) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, trace_type, config_name, request, error, started_seq, finished_seq
		FROM trace_runs
		WHERE session_id = ?
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRow{}
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Type, &r.ConfigName, &r.Request,
			&r.Err, &r.StartedSeq, &r.FinishedSeq,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ReadRun returns one run by ID, with its per-layer result counts.
// Returns sql.ErrNoRows if the run is not recorded.
func (s *Store) ReadRun(ctx context.Context, id string) (*RunRow, error) {
	var r RunRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, trace_type, config_name, request, error, started_seq, finished_seq
		FROM trace_runs
		WHERE id = ?
	`, id).Scan(
		&r.ID, &r.SessionID, &r.Type, &r.ConfigName, &r.Request,
		&r.Err, &r.StartedSeq, &r.FinishedSeq,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT layer, element_count
		FROM run_layers
		WHERE run_id = ?
		ORDER BY layer COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query run layers: %w", err)
	}
	defer rows.Close()

	r.Layers = make(map[string]int)
	for rows.Next() {
		var layer string
		var count int
		if err := rows.Scan(&layer, &count); err != nil {
			return nil, fmt.Errorf("scan run layer: %w", err)
		}
		r.Layers[layer] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run layers: %w", err)
	}

	return &r, nil
}

// LastSeq returns the highest logical clock value recorded for a session,
// or 0 if nothing is recorded. Used to resume a session's clock past its
// history.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT created_seq AS seq FROM sessions WHERE id = ?1
			UNION ALL
			SELECT seq FROM trace_points WHERE session_id = ?1
			UNION ALL
			SELECT finished_seq AS seq FROM trace_runs WHERE session_id = ?1
		)
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
