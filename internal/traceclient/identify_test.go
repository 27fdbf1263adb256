package traceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

func TestIdentify_ResolvesAndCaches(t *testing.T) {
	var gotReq identifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/identify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"features": [
			{"asset_id": "J1", "layer": "device", "kind": "junction",
			 "terminals": [{"id": "T1", "name": "High"}, {"id": "T2", "name": "Low"}]},
			{"asset_id": "L1", "layer": "line", "kind": "edge",
			 "geometry": [{"x": 0, "y": 0}, {"x": 10, "y": 0}]}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	features, err := c.Identify(context.Background(), network.MapPoint{X: 3, Y: 4})
	require.NoError(t, err)
	assert.Equal(t, 3.0, gotReq.X)
	require.Len(t, features, 2)
	assert.Equal(t, "J1", features[0].AssetID)
	assert.Len(t, features[1].Geometry, 2)

	// Classification comes from the cached identify response.
	el, err := c.ElementFor(context.Background(), features[0])
	require.NoError(t, err)
	assert.Equal(t, network.KindJunction, el.Kind)
	require.Len(t, el.Terminals, 2)
	assert.Equal(t, "T2", el.Terminals[1].ID)

	el, err = c.ElementFor(context.Background(), features[1])
	require.NoError(t, err)
	assert.Equal(t, network.KindEdge, el.Kind)
}

func TestIdentify_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	features, err := c.Identify(context.Background(), network.MapPoint{})
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestIdentify_ServerErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	_, err := c.Identify(context.Background(), network.MapPoint{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestElementFor_UnknownAsset(t *testing.T) {
	c := newTestClient("http://unused", "")
	_, err := c.ElementFor(context.Background(), workflow.IdentifiedFeature{AssetID: "ghost"})
	require.Error(t, err)
}
