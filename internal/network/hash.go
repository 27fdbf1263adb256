package network

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed history identity. The version
// suffix enables future algorithm migration.
const (
	DomainRun   = "gridtrace/run/v1"
	DomainPoint = "gridtrace/point/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RunID computes the content-addressed ID for a trace run. The ID is
// stable given the same session, trace type, points, and sequence number,
// so replaying history writes is idempotent.
//
// The session token is intentionally excluded: the ID is "what was traced",
// not "who was authorized to trace it".
func RunID(sessionID string, traceType TraceType, starts, barriers []TracePoint, seq int64) (string, error) {
	obj := map[string]any{
		"session_id": sessionID,
		"trace_type": string(traceType),
		"starts":     pointList(starts),
		"barriers":   pointList(barriers),
		"seq":        seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RunID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}

// PointID computes the content-addressed ID for a committed trace point.
func PointID(sessionID string, p TracePoint) (string, error) {
	obj := map[string]any{
		"session_id": sessionID,
		"point":      pointObject(p),
		"seq":        p.Seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("PointID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPoint, canonical), nil
}

func pointList(points []TracePoint) []any {
	list := make([]any, len(points))
	for i, p := range points {
		list[i] = pointObject(p)
	}
	return list
}

// pointObject builds the canonical-JSON-safe representation of a point.
// The edge fraction is encoded in parts-per-million (canonical JSON
// forbids floats).
func pointObject(p TracePoint) map[string]any {
	obj := map[string]any{
		"role":         string(p.Role),
		"asset_id":     p.Element.AssetID,
		"layer":        p.Element.Layer,
		"kind":         string(p.Element.Kind),
		"fraction_ppm": FractionPPM(p.Element.Fraction),
	}
	if p.Element.Terminal != nil {
		obj["terminal"] = p.Element.Terminal.ID
	}
	return obj
}
