// Package dispatch partitions a requested inference run into chain jobs and
// executes them under one of three strategies: a single engine-delegated
// batch call (native or forked), or module-owned task futures with one
// concurrent engine call per chain.
package dispatch

import (
	"fmt"

	"fitgrid/internal/engine"
)

// Algorithm selects the inference mode.
type Algorithm string

const (
	AlgSampling  Algorithm = "sampling"
	AlgMeanfield Algorithm = "meanfield"
	AlgFullrank  Algorithm = "fullrank"
)

// Variational reports whether the algorithm is a variational mode.
func (a Algorithm) Variational() bool {
	return a == AlgMeanfield || a == AlgFullrank
}

// Strategy selects how chain jobs are executed.
type Strategy string

const (
	// StrategyNative delegates the whole batch to the engine in one call.
	StrategyNative Strategy = "native"
	// StrategyForked is engine-delegated too, differing only in the
	// core-count hint passed through (defaulting to one core per chain).
	StrategyForked Strategy = "forked"
	// StrategyFutures fans out one concurrent engine call per chain and
	// collects results in chain-index order.
	StrategyFutures Strategy = "futures"
)

// RunConfig is the tagged run configuration validated at dispatch entry.
// Sampling fields (Warmup, Thin, Control, inits) only apply when Algorithm
// is AlgSampling.
type RunConfig struct {
	Algorithm Algorithm
	Strategy  Strategy
	Chains    int
	Iter      int
	Warmup    int
	Thin      int
	Cores     int
	Seed      int64
	Control   engine.Control
	Init      engine.InitSpec
	// ChainInits optionally overrides Init per chain, element i applying
	// to chain i+1. Only meaningful under the futures strategy.
	ChainInits []engine.InitSpec
	Quiet      bool
}

// Validate checks the configuration exhaustively before any job is issued.
// Invalid algorithm/strategy/parameter combinations are errors, never
// silently ignored.
func (c *RunConfig) Validate() error {
	switch c.Algorithm {
	case AlgSampling, AlgMeanfield, AlgFullrank:
	default:
		return fmt.Errorf("run config: unknown algorithm %q", c.Algorithm)
	}
	switch c.Strategy {
	case StrategyNative, StrategyForked, StrategyFutures:
	default:
		return fmt.Errorf("run config: unknown strategy %q", c.Strategy)
	}
	if c.Chains < 1 {
		return fmt.Errorf("run config: chain count %d must be at least 1", c.Chains)
	}
	if c.Iter < 1 {
		return fmt.Errorf("run config: iteration count %d must be at least 1", c.Iter)
	}

	if c.Algorithm.Variational() {
		if c.Strategy != StrategyNative {
			return fmt.Errorf("run config: strategy %q is not available for variational algorithm %q", c.Strategy, c.Algorithm)
		}
		if c.Warmup > 0 || c.Thin > 1 {
			return fmt.Errorf("run config: warmup and thinning apply only to sampling")
		}
		if len(c.ChainInits) > 0 {
			return fmt.Errorf("run config: per-chain initial values apply only to sampling")
		}
		return nil
	}

	if c.Warmup < 0 || c.Warmup >= c.Iter {
		return fmt.Errorf("run config: warmup %d must be in [0, iter)", c.Warmup)
	}
	if c.Thin < 1 {
		return fmt.Errorf("run config: thinning rate %d must be at least 1", c.Thin)
	}
	if len(c.ChainInits) > 0 {
		if len(c.ChainInits) != c.Chains {
			return fmt.Errorf("run config: got %d per-chain initial values for %d chains", len(c.ChainInits), c.Chains)
		}
		if c.Strategy != StrategyFutures {
			return fmt.Errorf("run config: per-chain initial values require the futures strategy")
		}
	}
	return nil
}

func (c *RunConfig) samplingConfig() engine.SamplingConfig {
	return engine.SamplingConfig{
		Iter:    c.Iter,
		Warmup:  c.Warmup,
		Thin:    c.Thin,
		Control: c.Control,
		Quiet:   c.Quiet,
	}
}
