package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gridtrace/internal/network"
)

// Scenario defines a conformance test scenario: a scripted operation
// sequence plus assertions over the final workflow state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// SessionToken is the fixed session identity for deterministic traces.
	// Defaults to "test-session" if empty.
	SessionToken string `yaml:"session_token,omitempty"`

	// Steps is the operation sequence to drive through the workflow.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted workflow operation.
type Step struct {
	// Op names the operation: begin, tap, select_terminal, cancel_pending,
	// next, select_type, run, reset.
	Op string `yaml:"op"`

	// Role is the point role for tap steps: start or barrier.
	Role string `yaml:"role,omitempty"`

	// At is the map location for tap steps.
	At *XY `yaml:"at,omitempty"`

	// Resolve scripts what the identify lookup returns for a tap step.
	Resolve *Resolve `yaml:"resolve,omitempty"`

	// Index selects the terminal for select_terminal steps.
	Index int `yaml:"index,omitempty"`

	// TraceType is the type for select_type steps.
	TraceType string `yaml:"trace_type,omitempty"`

	// Outcome scripts the trace execution for run steps.
	Outcome *Outcome `yaml:"outcome,omitempty"`

	// ExpectError asserts the operation surfaces this workflow error code.
	// An error with no ExpectError, or a mismatched code, fails the
	// scenario.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// XY is a map location.
type XY struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Resolve scripts one identify resolution.
type Resolve struct {
	// Kind of resolution: edge, junction, miss, error.
	Kind string `yaml:"kind"`

	AssetID string `yaml:"asset_id,omitempty"`
	Layer   string `yaml:"layer,omitempty"`

	// Geometry is the polyline vertices for edge features, as [x, y] pairs.
	Geometry [][]float64 `yaml:"geometry,omitempty"`

	// Terminals names the junction's terminals. Two or more pause the tap
	// for disambiguation.
	Terminals []string `yaml:"terminals,omitempty"`
}

// Outcome scripts one trace execution.
type Outcome struct {
	// Layers maps source layer to element count in the scripted result.
	Layers map[string]int `yaml:"layers,omitempty"`

	// Fail makes the submission fail with this message.
	Fail string `yaml:"fail,omitempty"`

	// Hang blocks the submission until the workflow cancels it. Used by
	// cancellation scenarios; a later reset step unblocks it.
	Hang bool `yaml:"hang,omitempty"`
}

// Assertion validates the final workflow state.
type Assertion struct {
	// Type: state_equals, point_counts, result_layers,
	// pending_terminal_count, error_code.
	Type string `yaml:"type"`

	// State is the expected final state (state_equals).
	State string `yaml:"state,omitempty"`

	// Starts/Barriers are expected point counts (point_counts).
	Starts   *int `yaml:"starts,omitempty"`
	Barriers *int `yaml:"barriers,omitempty"`

	// Layers are the expected sorted result layer keys (result_layers).
	Layers []string `yaml:"layers,omitempty"`

	// Count is the expected pending terminal count
	// (pending_terminal_count); 0 asserts nothing is pending.
	Count *int `yaml:"count,omitempty"`

	// Code is the expected last error code (error_code).
	Code string `yaml:"code,omitempty"`
}

// Step operation constants.
const (
	OpBegin          = "begin"
	OpTap            = "tap"
	OpSelectTerminal = "select_terminal"
	OpCancelPending  = "cancel_pending"
	OpNext           = "next"
	OpSelectType     = "select_type"
	OpRun            = "run"
	OpReset          = "reset"
)

// Resolution kind constants.
const (
	ResolveEdge     = "edge"
	ResolveJunction = "junction"
	ResolveMiss     = "miss"
	ResolveError    = "error"
)

// Assertion type constants.
const (
	AssertStateEquals          = "state_equals"
	AssertPointCounts          = "point_counts"
	AssertResultLayers         = "result_layers"
	AssertPendingTerminalCount = "pending_terminal_count"
	AssertErrorCode            = "error_code"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file doesn't exist, is malformed, contains unknown fields (typos),
// or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, step *Step) error {
	switch step.Op {
	case OpBegin, OpNext, OpReset, OpCancelPending, OpSelectTerminal:
		// No required fields beyond op (index defaults to 0).
	case OpTap:
		if step.At == nil {
			return fmt.Errorf("steps[%d]: at is required for tap", index)
		}
		if step.Resolve == nil {
			return fmt.Errorf("steps[%d]: resolve is required for tap", index)
		}
		if !network.PointRole(step.Role).Valid() {
			return fmt.Errorf("steps[%d]: role must be start or barrier, got %q", index, step.Role)
		}
		switch step.Resolve.Kind {
		case ResolveMiss, ResolveError:
		case ResolveEdge:
			if step.Resolve.AssetID == "" {
				return fmt.Errorf("steps[%d].resolve: asset_id is required for edge", index)
			}
			if len(step.Resolve.Geometry) < 2 {
				return fmt.Errorf("steps[%d].resolve: edge geometry needs at least two vertices", index)
			}
			for j, v := range step.Resolve.Geometry {
				if len(v) != 2 {
					return fmt.Errorf("steps[%d].resolve.geometry[%d]: vertex must be [x, y]", index, j)
				}
			}
		case ResolveJunction:
			if step.Resolve.AssetID == "" {
				return fmt.Errorf("steps[%d].resolve: asset_id is required for junction", index)
			}
		default:
			return fmt.Errorf("steps[%d].resolve: unknown kind %q", index, step.Resolve.Kind)
		}
	case OpSelectType:
		if _, err := network.ParseTraceType(step.TraceType); err != nil {
			return fmt.Errorf("steps[%d]: %v", index, err)
		}
	case OpRun:
		if step.Outcome == nil {
			return fmt.Errorf("steps[%d]: outcome is required for run", index)
		}
		set := 0
		if len(step.Outcome.Layers) > 0 {
			set++
		}
		if step.Outcome.Fail != "" {
			set++
		}
		if step.Outcome.Hang {
			set++
		}
		if set > 1 {
			return fmt.Errorf("steps[%d].outcome: layers, fail and hang are mutually exclusive", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertStateEquals:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for state_equals", index)
		}
	case AssertPointCounts:
		if a.Starts == nil && a.Barriers == nil {
			return fmt.Errorf("assertions[%d]: starts or barriers is required for point_counts", index)
		}
	case AssertResultLayers:
		// An empty layers list asserts the result has no element layers.
	case AssertPendingTerminalCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for pending_terminal_count", index)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
