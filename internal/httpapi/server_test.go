package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/testutil"
	"github.com/roach88/gridtrace/internal/workflow"
)

// fixture wires a server whose session workflows share one set of scripted
// collaborators.
type fixture struct {
	srv        *httptest.Server
	identifier *testutil.ScriptedIdentifier
	elements   *testutil.StaticElements
	runner     *testutil.ScriptedRunner
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		identifier: &testutil.ScriptedIdentifier{},
		elements:   &testutil.StaticElements{ByAsset: map[string]network.NetworkElement{}},
		runner:     &testutil.ScriptedRunner{},
	}

	factory := func(session network.Session) (*workflow.Workflow, error) {
		return workflow.New(session, workflow.Deps{
			Identifier: f.identifier,
			Elements:   f.elements,
			Runner:     f.runner,
		})
	}

	opts = append(opts, WithTokens(testutil.SequentialTokens("sess", 8)))
	server := NewServer(factory, opts...)
	f.srv = httptest.NewServer(server.Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/sessions", map[string]any{"user": "tester"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["session_id"].(string)
}

func edgeFeature(asset string) workflow.IdentifiedFeature {
	return workflow.IdentifiedFeature{
		AssetID:  asset,
		Layer:    "line",
		Geometry: []network.MapPoint{{X: 0, Y: 0}, {X: 10, Y: 0}},
	}
}

func (f *fixture) scriptEdge(asset string) {
	f.identifier.QueueFeature(edgeFeature(asset))
	f.elements.ByAsset[asset] = network.NetworkElement{
		AssetID: asset, Layer: "line", Kind: network.KindEdge,
	}
}

func sessionPath(id, op string) string {
	return fmt.Sprintf("/sessions/%s/%s", id, op)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	assert.Equal(t, "sess-0001", id)

	resp, body := f.do(t, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["state"])

	resp, _ = f.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_SESSION", body["code"])
}

func TestFullTraceOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "selecting_points", body["state"])

	f.scriptEdge("L1")
	resp, body = f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{
		"role": "start", "x": 5, "y": 0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	point := body["point"].(map[string]any)
	assert.Equal(t, "L1", point["asset_id"])
	assert.InDelta(t, 0.5, point["fraction"].(float64), 1e-9)

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "next"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "selecting_trace_type", body["state"])

	resp, _ = f.do(t, http.MethodPost, sessionPath(id, "trace-type"), map[string]any{"type": "upstream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.runner.Queue(testutil.RunScript{Result: &network.TraceResult{
		Outcomes: []network.TraceOutcome{network.ElementOutcome{
			Elements: []network.NetworkElement{
				{AssetID: "L2", Layer: "line", Kind: network.KindEdge},
				{AssetID: "D1", Layer: "device", Kind: network.KindJunction},
			},
		}},
	}})
	resp, body = f.do(t, http.MethodPost, sessionPath(id, "run"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "viewing_results", body["state"])
	assert.Equal(t, []any{"device", "line"}, body["result_layers"])

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "reset"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["state"])
}

func TestTapLookupFailureIgnored(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)

	f.identifier.QueueMiss()
	resp, body := f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{
		"role": "start", "x": 1, "y": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ignored"])
	assert.Equal(t, "LOOKUP_FAILURE", body["code"])

	session := body["session"].(map[string]any)
	assert.Equal(t, "selecting_points", session["state"])
	assert.Empty(t, session["starts"])
}

func TestTerminalDisambiguationOverHTTP(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)

	f.identifier.QueueFeature(workflow.IdentifiedFeature{AssetID: "J1", Layer: "device"})
	f.elements.ByAsset["J1"] = network.NetworkElement{
		AssetID: "J1", Layer: "device", Kind: network.KindJunction,
		Terminals: []network.Terminal{{ID: "T1", Name: "High"}, {ID: "T2", Name: "Low"}},
	}

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{
		"role": "start", "x": 3, "y": 4,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	session := body["session"].(map[string]any)
	pending := session["pending"].(map[string]any)
	assert.Equal(t, []any{"T1", "T2"}, pending["terminals"])

	// A second tap while pending is rejected with 409.
	resp, body = f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{
		"role": "start", "x": 9, "y": 9,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "TERMINAL_SELECTION_REQUIRED", body["code"])

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "terminal"), map[string]any{"index": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	point := body["point"].(map[string]any)
	assert.Equal(t, "T2", point["terminal"])
}

func TestNextWithoutStartsRejected(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "next"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NO_START_POINTS", body["code"])
}

func TestOperationsOutsideStateConflict(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	// Tap before begin.
	resp, body := f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{
		"role": "start", "x": 1, "y": 1,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])

	// Begin twice.
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)
	resp, body = f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
}

func TestRunFailureSurfacedAs502(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)
	f.scriptEdge("L1")
	f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{"role": "start", "x": 5, "y": 0})
	f.do(t, http.MethodPost, sessionPath(id, "next"), nil)
	f.do(t, http.MethodPost, sessionPath(id, "trace-type"), map[string]any{"type": "connected"})

	f.runner.Queue(testutil.RunScript{Err: fmt.Errorf("service exploded")})
	resp, body := f.do(t, http.MethodPost, sessionPath(id, "run"), nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "TRACE_SUBMISSION_FAILURE", errObj["code"])

	session := body["session"].(map[string]any)
	assert.Equal(t, "viewing_results", session["state"])
	assert.Empty(t, session["result_layers"])
}

func TestSelectNamedConfig(t *testing.T) {
	f := newFixture(t, WithConfigs([]network.TraceConfig{{
		Name: "ACME Upstream", Type: network.TraceUpstream,
		IncludeBarriers: true, ValidateConsistency: true,
	}}))
	id := f.createSession(t)
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)
	f.scriptEdge("L1")
	f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{"role": "start", "x": 5, "y": 0})
	f.do(t, http.MethodPost, sessionPath(id, "next"), nil)

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "trace-type"), map[string]any{"config": "ACME Upstream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upstream", body["trace_type"])

	resp, body = f.do(t, http.MethodPost, sessionPath(id, "trace-type"), map[string]any{"config": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_CONFIG", body["code"])
}

func TestUnknownTraceTypeRejected(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	f.do(t, http.MethodPost, sessionPath(id, "begin"), nil)
	f.scriptEdge("L1")
	f.do(t, http.MethodPost, sessionPath(id, "tap"), map[string]any{"role": "start", "x": 5, "y": 0})
	f.do(t, http.MethodPost, sessionPath(id, "next"), nil)

	resp, body := f.do(t, http.MethodPost, sessionPath(id, "trace-type"), map[string]any{"type": "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", body["code"])
}
