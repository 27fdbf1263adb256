// Package config compiles CUE trace-configuration files into the named
// trace configurations the workflow offers when a run is prepared.
//
// A configuration file declares configs under a single top-level struct:
//
//	configs: "ACME Upstream": {
//		trace_type: "upstream"
//		domain:     "ElectricDistribution"
//		tier:       "Medium Voltage Radial"
//	}
//
// Compilation uses the CUE SDK's Go API directly (not a CLI subprocess)
// and reports errors with source positions where CUE provides them.
package config
