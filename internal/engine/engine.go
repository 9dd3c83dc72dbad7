// Package engine defines the call contract to the external sampling and
// variational inference engine, and a process-backed implementation that
// executes compiled model binaries. The engine's numeric internals are
// opaque to this module.
package engine

import (
	"context"

	"fitgrid/internal/compiler"
	"fitgrid/internal/posterior"
)

// Control holds the per-chain sampler control parameters.
type Control struct {
	AdaptDelta   float64 `json:"adapt_delta"`
	MaxTreedepth int     `json:"max_treedepth"`
}

// SamplingConfig is the iteration schedule and control attached to sampling
// jobs. Iter counts total iterations including warmup.
type SamplingConfig struct {
	Iter    int     `json:"iter"`
	Warmup  int     `json:"warmup"`
	Thin    int     `json:"thin"`
	Control Control `json:"control"`
	Quiet   bool    `json:"quiet"`
}

// InitKind selects how a chain's initial values are produced.
type InitKind string

const (
	// InitRandom lets the engine draw initial values itself.
	InitRandom InitKind = "random"
	// InitValue initializes every parameter from a single radius value.
	InitValue InitKind = "value"
	// InitValues supplies explicit per-parameter initial values.
	InitValues InitKind = "values"
)

// InitSpec is one chain's initial-values specification.
type InitSpec struct {
	Kind   InitKind           `json:"kind"`
	Value  float64            `json:"value,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}

// BatchRequest asks the engine to run all chains in a single call; the
// engine owns intra-call parallelism up to the Cores hint.
type BatchRequest struct {
	Model  *compiler.CompiledModel
	Data   []byte
	Chains int
	Cores  int
	Seed   int64
	Init   InitSpec
	Config SamplingConfig
}

// ChainRequest asks the engine to run exactly one chain.
type ChainRequest struct {
	Model  *compiler.CompiledModel
	Data   []byte
	Chain  int
	Seed   int64
	Init   InitSpec
	Config SamplingConfig
}

// VariationalRequest asks the engine for a variational approximation.
// Chain partitioning does not apply; one call produces the whole result.
type VariationalRequest struct {
	Model     *compiler.CompiledModel
	Data      []byte
	Algorithm string // "meanfield" or "fullrank"
	Iter      int
	Seed      int64
	Quiet     bool
}

// Engine is the narrow contract the dispatcher invokes. Implementations
// must be safe for concurrent SampleChain calls.
type Engine interface {
	SampleBatch(ctx context.Context, req BatchRequest) ([]posterior.ChainResult, error)
	SampleChain(ctx context.Context, req ChainRequest) (posterior.ChainResult, error)
	Variational(ctx context.Context, req VariationalRequest) (posterior.ChainResult, error)
}
