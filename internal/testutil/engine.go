// Package testutil provides shared fakes and helpers for pipeline tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fitgrid/internal/engine"
	"fitgrid/internal/posterior"
)

// FakeEngine is a deterministic in-memory engine. It records every call so
// tests can assert on dispatch behavior, and supports per-chain delays and
// injected failures to exercise concurrency paths.
type FakeEngine struct {
	mu sync.Mutex

	// Params are the parameter names every produced chain reports.
	Params []string
	// DrawsPerChain is the number of post-warmup rows per chain.
	DrawsPerChain int
	// Delay maps a chain index to an artificial execution time.
	Delay map[int]time.Duration
	// FailChains maps chain indexes to errors returned from SampleChain.
	FailChains map[int]error
	// BatchErr, when set, fails every SampleBatch call.
	BatchErr error

	batchCalls       int
	chainCalls       int
	variationalCalls int
	completionOrder  []int
	lastBatch        engine.BatchRequest
	lastVariational  engine.VariationalRequest
	chainRequests    []engine.ChainRequest
}

// NewFakeEngine returns a FakeEngine with a small default draw shape.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Params:        []string{"b.1", "sigma"},
		DrawsPerChain: 5,
		Delay:         map[int]time.Duration{},
		FailChains:    map[int]error{},
	}
}

// SampleBatch implements engine.Engine.
func (f *FakeEngine) SampleBatch(ctx context.Context, req engine.BatchRequest) ([]posterior.ChainResult, error) {
	f.mu.Lock()
	f.batchCalls++
	f.lastBatch = req
	f.mu.Unlock()

	if f.BatchErr != nil {
		return nil, f.BatchErr
	}
	results := make([]posterior.ChainResult, 0, req.Chains)
	for chain := 1; chain <= req.Chains; chain++ {
		results = append(results, f.makeResult(chain, req.Seed))
	}
	return results, nil
}

// SampleChain implements engine.Engine.
func (f *FakeEngine) SampleChain(ctx context.Context, req engine.ChainRequest) (posterior.ChainResult, error) {
	f.mu.Lock()
	f.chainCalls++
	f.chainRequests = append(f.chainRequests, req)
	delay := f.Delay[req.Chain]
	failErr := f.FailChains[req.Chain]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return posterior.ChainResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.completionOrder = append(f.completionOrder, req.Chain)
	f.mu.Unlock()

	if failErr != nil {
		return posterior.ChainResult{}, failErr
	}
	return f.makeResult(req.Chain, req.Seed), nil
}

// Variational implements engine.Engine.
func (f *FakeEngine) Variational(ctx context.Context, req engine.VariationalRequest) (posterior.ChainResult, error) {
	f.mu.Lock()
	f.variationalCalls++
	f.lastVariational = req
	f.mu.Unlock()
	return f.makeResult(1, req.Seed), nil
}

// makeResult produces a deterministic draw block whose values encode the
// chain index and seed, so merged output can be traced back to its source.
func (f *FakeEngine) makeResult(chain int, seed int64) posterior.ChainResult {
	draws := make([][]float64, f.DrawsPerChain)
	for row := range draws {
		vals := make([]float64, len(f.Params))
		for col := range vals {
			vals[col] = float64(chain)*1000 + float64(seed%97) + float64(row)*float64(col+1)
		}
		draws[row] = vals
	}
	return posterior.ChainResult{
		Chain:  chain,
		Params: append([]string(nil), f.Params...),
		Draws:  draws,
	}
}

// BatchCalls reports how many SampleBatch invocations were made.
func (f *FakeEngine) BatchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

// ChainCalls reports how many SampleChain invocations were made.
func (f *FakeEngine) ChainCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainCalls
}

// VariationalCalls reports how many Variational invocations were made.
func (f *FakeEngine) VariationalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variationalCalls
}

// CompletionOrder returns chain indexes in the order their fake runs finished.
func (f *FakeEngine) CompletionOrder() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.completionOrder...)
}

// LastBatch returns the most recent batch request.
func (f *FakeEngine) LastBatch() engine.BatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBatch
}

// LastVariational returns the most recent variational request.
func (f *FakeEngine) LastVariational() engine.VariationalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastVariational
}

// ChainRequests returns a copy of every single-chain request received.
func (f *FakeEngine) ChainRequests() []engine.ChainRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.ChainRequest(nil), f.chainRequests...)
}

// SeedForChain is a convenience lookup over recorded chain requests.
func (f *FakeEngine) SeedForChain(chain int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.chainRequests {
		if req.Chain == chain {
			return req.Seed, nil
		}
	}
	return 0, fmt.Errorf("no recorded request for chain %d", chain)
}
