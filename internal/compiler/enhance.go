package compiler

import "context"

// Enhancer is the --llm-enhance hook: given a generated functions.py,
// it returns a rewritten version (e.g. with richer docstrings) to write
// instead. MFP ships no concrete implementation: wiring an actual LLM
// call is an operator-supplied concern, so the only implementations
// here are NopEnhancer and whatever a caller provides.
type Enhancer interface {
	Enhance(ctx context.Context, functionsPy []byte) ([]byte, error)
}

// NopEnhancer returns functionsPy unchanged. Useful as a default when
// --llm-enhance is requested but no Enhancer has been wired in.
type NopEnhancer struct{}

func (NopEnhancer) Enhance(_ context.Context, functionsPy []byte) ([]byte, error) {
	return functionsPy, nil
}
