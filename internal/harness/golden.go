package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gridtrace/internal/network"
)

// TraceSnapshot captures the complete event trace for a scenario
// execution. Serialized with canonical JSON so golden comparison is
// byte-stable.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	SessionToken string       `json:"session_token,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to a map[string]any because
// network.MarshalCanonical only handles maps, slices and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		if event.Op != "" {
			eventMap["op"] = event.Op
		}
		if event.Detail != "" {
			eventMap["detail"] = event.Detail
		}
		if event.From != "" {
			eventMap["from"] = event.From
		}
		if event.To != "" {
			eventMap["to"] = event.To
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.SessionToken != "" {
		result["session_token"] = s.SessionToken
	}
	return result
}

// RunWithGolden executes a scenario and compares its event trace against
// a golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		SessionToken: scenario.SessionToken,
		Trace:        result.Trace,
	}

	traceJSON, err := network.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
