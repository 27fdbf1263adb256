package config

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/gridtrace/internal/network"
)

// CompileConfigs parses a CUE value holding a `configs` struct into named
// trace configurations, sorted by name for deterministic iteration.
//
// The CUE value should be the root of the file, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`configs: "Upstream": { trace_type: "upstream" }`)
//	configs, err := CompileConfigs(v)
func CompileConfigs(v cue.Value) ([]network.TraceConfig, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	configsVal := v.LookupPath(cue.ParsePath("configs"))
	if !configsVal.Exists() {
		return nil, &CompileError{
			Field:   "configs",
			Message: "configs struct is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := configsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var configs []network.TraceConfig
	seen := make(map[string]bool)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		if seen[name] {
			return nil, &CompileError{
				Field:   "configs",
				Message: fmt.Sprintf("duplicate configuration name: %q", name),
				Pos:     iter.Value().Pos(),
			}
		}
		seen[name] = true

		cfg, err := compileConfig(name, iter.Value())
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	if len(configs) == 0 {
		return nil, &CompileError{
			Field:   "configs",
			Message: "at least one configuration is required",
			Pos:     configsVal.Pos(),
		}
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

// compileConfig parses a single named configuration struct.
func compileConfig(name string, v cue.Value) (network.TraceConfig, error) {
	cfg := network.TraceConfig{Name: name}

	// trace_type is required and must name a known type
	typeVal := v.LookupPath(cue.ParsePath("trace_type"))
	if !typeVal.Exists() {
		return cfg, &CompileError{
			Field:   fmt.Sprintf("configs.%q.trace_type", name),
			Message: "trace_type is required",
			Pos:     v.Pos(),
		}
	}
	rawType, err := typeVal.String()
	if err != nil {
		return cfg, formatCUEError(err)
	}
	traceType, err := network.ParseTraceType(rawType)
	if err != nil {
		return cfg, &CompileError{
			Field:   fmt.Sprintf("configs.%q.trace_type", name),
			Message: err.Error(),
			Pos:     typeVal.Pos(),
		}
	}
	cfg.Type = traceType

	cfg.Domain, err = optionalString(v, "domain")
	if err != nil {
		return cfg, err
	}
	cfg.Tier, err = optionalString(v, "tier")
	if err != nil {
		return cfg, err
	}
	cfg.IncludeBarriers, err = optionalBool(v, "include_barriers", true)
	if err != nil {
		return cfg, err
	}
	cfg.ValidateConsistency, err = optionalBool(v, "validate_consistency", true)
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", nil
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string, dflt bool) (bool, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return dflt, nil
	}
	b, err := fieldVal.Bool()
	if err != nil {
		return dflt, formatCUEError(err)
	}
	return b, nil
}

// LoadFile reads and compiles a CUE configuration file from disk.
func LoadFile(path string) ([]network.TraceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	return CompileConfigs(v)
}

// Lookup returns the configuration with the given name, or false if no
// configuration carries it.
func Lookup(configs []network.TraceConfig, name string) (network.TraceConfig, bool) {
	for _, cfg := range configs {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return network.TraceConfig{}, false
}
