package testutil

import (
	"fmt"

	"github.com/roach88/gridtrace/internal/workflow"
)

// SequentialTokens creates a FixedGenerator yielding "prefix-0001",
// "prefix-0002", ... up to n tokens.
//
// This enables deterministic test execution and golden trace comparison:
// the same scenario always observes the same session and run tokens.
func SequentialTokens(prefix string, n int) *workflow.FixedGenerator {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("%s-%04d", prefix, i+1)
	}
	return workflow.NewFixedGenerator(tokens...)
}
