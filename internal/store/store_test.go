package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession() network.Session {
	return network.Session{ID: "sess-1", User: "tester", ServiceURL: "https://svc.example/utility"}
}

func edgePoint(asset string, seq int64) network.TracePoint {
	return network.TracePoint{
		Role: network.RoleStart,
		Element: network.NetworkElement{
			AssetID:  asset,
			Layer:    "line",
			Kind:     network.KindEdge,
			Fraction: 0.5,
		},
		Seq: seq,
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestOpen_SchemaVersionStamped(t *testing.T) {
	s := openTestStore(t)

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestWritePoint_ReadBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	require.NoError(t, s.WriteSession(ctx, sess, 0))

	p := edgePoint("L1", 2)
	require.NoError(t, s.WritePoint(ctx, sess.ID, p))

	junction := network.TracePoint{
		Role: network.RoleBarrier,
		Element: network.NetworkElement{
			AssetID:  "J1",
			Layer:    "device",
			Kind:     network.KindJunction,
			Terminal: &network.Terminal{ID: "T2", Name: "Low"},
		},
		Seq: 3,
	}
	require.NoError(t, s.WritePoint(ctx, sess.ID, junction))

	history, err := s.ReadSessionHistory(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, history.Points, 2)

	assert.Equal(t, "L1", history.Points[0].AssetID)
	assert.Equal(t, int64(500000), history.Points[0].FractionPPM)
	assert.Equal(t, "T2", history.Points[1].TerminalID)
	assert.Equal(t, network.RoleBarrier, history.Points[1].Role)
}

func TestWritePoint_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	require.NoError(t, s.WriteSession(ctx, sess, 0))

	p := edgePoint("L1", 2)
	require.NoError(t, s.WritePoint(ctx, sess.ID, p))
	require.NoError(t, s.WritePoint(ctx, sess.ID, p))

	history, err := s.ReadSessionHistory(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, history.Points, 1)
}

func testRun(t *testing.T, sessionID string) workflow.RunRecord {
	t.Helper()

	starts := []network.TracePoint{edgePoint("L1", 2)}
	id, err := network.RunID(sessionID, network.TraceUpstream, starts, nil, 5)
	require.NoError(t, err)

	return workflow.RunRecord{
		ID:          id,
		SessionID:   sessionID,
		Type:        network.TraceUpstream,
		Starts:      starts,
		Layers:      map[string]int{"line": 3, "device": 1},
		StartedSeq:  5,
		FinishedSeq: 6,
	}
}

func TestWriteRun_ReadBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	require.NoError(t, s.WriteSession(ctx, sess, 0))
	rec := testRun(t, sess.ID)
	require.NoError(t, s.WriteRun(ctx, rec))

	got, err := s.ReadRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, network.TraceUpstream, got.Type)
	assert.Equal(t, map[string]int{"line": 3, "device": 1}, got.Layers)
	assert.Empty(t, got.Err)
	assert.Contains(t, got.Request, `"starts"`)
}

func TestWriteRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	require.NoError(t, s.WriteSession(ctx, sess, 0))
	rec := testRun(t, sess.ID)
	require.NoError(t, s.WriteRun(ctx, rec))
	require.NoError(t, s.WriteRun(ctx, rec))

	history, err := s.ReadSessionHistory(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, history.Runs, 1)
}

func TestWriteRun_FailureRecorded(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	require.NoError(t, s.WriteSession(ctx, sess, 0))
	rec := testRun(t, sess.ID)
	rec.Err = "TRACE_SUBMISSION_FAILURE: trace submission failed (state=tracing)"
	rec.Layers = nil
	require.NoError(t, s.WriteRun(ctx, rec))

	got, err := s.ReadRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Err)
	assert.Empty(t, got.Layers)
}

func TestReadRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadSessionHistory_Empty(t *testing.T) {
	s := openTestStore(t)

	history, err := s.ReadSessionHistory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, history.Points)
	assert.NotNil(t, history.Runs)
	assert.Empty(t, history.Points)
	assert.Empty(t, history.Runs)
}

func TestLastSeq(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	seq, err := s.LastSeq(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteSession(ctx, sess, 1))
	require.NoError(t, s.WritePoint(ctx, sess.ID, edgePoint("L1", 4)))
	require.NoError(t, s.WriteRun(ctx, testRun(t, sess.ID)))

	seq, err = s.LastSeq(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), seq) // run finished_seq is the latest
}

func TestRecorder_ImplementsWorkflowRecorder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sess := testSession()

	r := NewRecorder(s, sess)

	// Session row appears lazily with the first record.
	require.NoError(t, r.RecordPoint(ctx, sess.ID, edgePoint("L1", 2)))
	require.NoError(t, r.RecordRun(ctx, testRun(t, sess.ID)))

	var user string
	require.NoError(t, s.DB().QueryRow("SELECT user_name FROM sessions WHERE id = ?", sess.ID).Scan(&user))
	assert.Equal(t, "tester", user)
}
