package traceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/roach88/gridtrace/internal/geometry"
	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

const identifyPath = "/identify"

// wireFeature is one candidate feature in an identify response. The service
// reports element classification alongside the geometry, so a later
// ElementFor needs no second round trip.
type wireFeature struct {
	AssetID   string              `json:"asset_id"`
	Layer     string              `json:"layer"`
	Kind      network.ElementKind `json:"kind"`
	Terminals []network.Terminal  `json:"terminals,omitempty"`
	Geometry  geometry.Polyline   `json:"geometry,omitempty"`
}

type identifyRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type identifyResponse struct {
	Features []wireFeature `json:"features"`
}

// featureCache remembers the classification of identified assets so
// ElementFor resolves locally.
type featureCache struct {
	mu      sync.Mutex
	byAsset map[string]wireFeature
}

func (c *featureCache) put(f wireFeature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byAsset == nil {
		c.byAsset = make(map[string]wireFeature)
	}
	c.byAsset[f.AssetID] = f
}

func (c *featureCache) get(assetID string) (wireFeature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byAsset[assetID]
	return f, ok
}

// Identify implements workflow.Identifier: resolves a map location to
// candidate features via the service's identify endpoint. Identify is a
// user-facing lookup, so it is not retried; a failed call surfaces as an
// ignored tap.
func (c *Client) Identify(ctx context.Context, pt network.MapPoint) ([]workflow.IdentifiedFeature, error) {
	body, err := json.Marshal(identifyRequest{X: pt.X, Y: pt.Y})
	if err != nil {
		return nil, fmt.Errorf("encode identify request: %w", err)
	}

	url := strings.TrimRight(c.session.ServiceURL, "/") + identifyPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build identify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.session.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identify: %s", resp.Status)
	}

	var decoded identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode identify response: %w", err)
	}

	features := make([]workflow.IdentifiedFeature, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		c.features.put(f)
		features = append(features, workflow.IdentifiedFeature{
			AssetID:  f.AssetID,
			Layer:    f.Layer,
			Geometry: f.Geometry,
		})
	}
	return features, nil
}

// ElementFor implements workflow.ElementFactory using the classification
// cached from the identify response.
func (c *Client) ElementFor(_ context.Context, f workflow.IdentifiedFeature) (network.NetworkElement, error) {
	cached, ok := c.features.get(f.AssetID)
	if !ok {
		return network.NetworkElement{}, fmt.Errorf("asset %q was not identified by this client", f.AssetID)
	}
	return network.NetworkElement{
		AssetID:   cached.AssetID,
		Layer:     cached.Layer,
		Kind:      cached.Kind,
		Terminals: cached.Terminals,
	}, nil
}

var (
	_ workflow.Identifier     = (*Client)(nil)
	_ workflow.ElementFactory = (*Client)(nil)
)
