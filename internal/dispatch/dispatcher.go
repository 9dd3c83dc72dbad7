package dispatch

import (
	"context"
	"fmt"

	"fitgrid/internal/compiler"
	"fitgrid/internal/ctxlog"
	"fitgrid/internal/engine"
	"fitgrid/internal/posterior"
)

// ChainError reports which chain's job failed.
type ChainError struct {
	Chain int
	Err   error
}

// Error implements the error interface for ChainError.
func (e *ChainError) Error() string {
	return fmt.Sprintf("chain %d failed: %v", e.Chain, e.Err)
}

// Unwrap exposes the underlying engine error.
func (e *ChainError) Unwrap() error {
	return e.Err
}

// Dispatcher executes a validated run configuration against an engine.
type Dispatcher struct {
	Engine engine.Engine
}

// New creates a dispatcher over the given engine.
func New(eng engine.Engine) *Dispatcher {
	return &Dispatcher{Engine: eng}
}

// Run validates the configuration, partitions the run, and executes it.
// It always returns exactly one ChainResult per issued job on success:
// Chains results for sampling, one for variational modes.
func (d *Dispatcher) Run(ctx context.Context, model *compiler.CompiledModel, data []byte, cfg *RunConfig) ([]posterior.ChainResult, error) {
	logger := ctxlog.FromContext(ctx)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Algorithm.Variational() {
		if cfg.Chains > 1 {
			logger.Warn("Variational algorithms run a single job; requested chain count is ignored.", "chains", cfg.Chains)
		}
		res, err := d.Engine.Variational(ctx, engine.VariationalRequest{
			Model:     model,
			Data:      data,
			Algorithm: string(cfg.Algorithm),
			Iter:      cfg.Iter,
			Seed:      cfg.Seed,
			Quiet:     cfg.Quiet,
		})
		if err != nil {
			return nil, &ChainError{Chain: 1, Err: err}
		}
		return []posterior.ChainResult{res}, nil
	}

	jobs := BuildJobs(cfg)
	switch cfg.Strategy {
	case StrategyNative, StrategyForked:
		return d.runBatch(ctx, model, data, cfg, jobs)
	case StrategyFutures:
		return d.runFutures(ctx, model, data, cfg, jobs)
	}
	return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
}

// runBatch hands the full chain count to the engine in a single blocking
// call. Native and forked differ only in the core-count hint: forked
// defaults to one core per chain.
func (d *Dispatcher) runBatch(ctx context.Context, model *compiler.CompiledModel, data []byte, cfg *RunConfig, jobs []ChainJob) ([]posterior.ChainResult, error) {
	logger := ctxlog.FromContext(ctx)

	cores := cfg.Cores
	if cores == 0 {
		cores = 1
		if cfg.Strategy == StrategyForked {
			cores = cfg.Chains
		}
	}

	logger.Info("Dispatching engine-delegated batch.", "strategy", string(cfg.Strategy), "chains", cfg.Chains, "cores", cores)
	results, err := d.Engine.SampleBatch(ctx, engine.BatchRequest{
		Model:  model,
		Data:   data,
		Chains: cfg.Chains,
		Cores:  cores,
		Seed:   jobs[0].Seed,
		Init:   cfg.Init,
		Config: jobs[0].Config,
	})
	if err != nil {
		return nil, fmt.Errorf("engine batch call failed: %w", err)
	}
	if len(results) != cfg.Chains {
		return nil, fmt.Errorf("engine batch call returned %d chain results, expected %d", len(results), cfg.Chains)
	}
	return results, nil
}

// future carries one chain's pending outcome from its worker goroutine to
// the collection loop.
type future struct {
	result posterior.ChainResult
	err    error
}

// runFutures fans out one independent engine call per chain before
// collecting any result, then collects strictly in chain-index order. A
// failed chain does not stop the others; its failure surfaces when its
// index is collected.
func (d *Dispatcher) runFutures(ctx context.Context, model *compiler.CompiledModel, data []byte, cfg *RunConfig, jobs []ChainJob) ([]posterior.ChainResult, error) {
	logger := ctxlog.FromContext(ctx)
	if cfg.Cores > 0 {
		logger.Warn("Core-count hint is ignored under the futures strategy; parallelism equals the number of issued tasks.", "cores", cfg.Cores)
	}

	logger.Info("Dispatching chain futures.", "chains", len(jobs))
	futures := make([]chan future, len(jobs))
	for i, job := range jobs {
		futures[i] = make(chan future, 1)
		go func(job ChainJob, out chan<- future) {
			res, err := d.Engine.SampleChain(ctx, engine.ChainRequest{
				Model:  model,
				Data:   data,
				Chain:  job.Chain,
				Seed:   job.Seed,
				Init:   job.Init,
				Config: job.Config,
			})
			out <- future{result: res, err: err}
		}(job, futures[i])
	}

	// Collection order is index order; completion order may differ.
	results := make([]posterior.ChainResult, len(jobs))
	for i := range futures {
		f := <-futures[i]
		if f.err != nil {
			return nil, &ChainError{Chain: i + 1, Err: f.err}
		}
		logger.Debug("Collected chain future.", "chain", i+1)
		results[i] = f.result
	}
	return results, nil
}
