package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplingArgs(t *testing.T) {
	t.Parallel()

	cfg := SamplingConfig{
		Iter:    2000,
		Warmup:  1000,
		Thin:    2,
		Control: Control{AdaptDelta: 0.95, MaxTreedepth: 12},
	}

	args := samplingArgs(cfg, 42, 3)

	assert.Contains(t, args, "num_samples=1000")
	assert.Contains(t, args, "num_warmup=1000")
	assert.Contains(t, args, "thin=2")
	assert.Contains(t, args, "delta=0.95")
	assert.Contains(t, args, "max_depth=12")
	assert.Contains(t, args, "seed=42")
	assert.Contains(t, args, "id=3")
}

func TestSamplingArgs_BatchOmitsChainID(t *testing.T) {
	t.Parallel()

	args := samplingArgs(SamplingConfig{Iter: 100, Warmup: 50, Thin: 1}, 7, 0)

	for _, a := range args {
		assert.NotContains(t, a, "id=")
	}
}

func TestChainOutputPath(t *testing.T) {
	t.Parallel()

	// A single chain writes to the bare base path; multi-chain runs get a
	// numbered suffix per chain.
	assert.Equal(t, "/tmp/out.csv", chainOutputPath("/tmp/out.csv", 1, 1))
	assert.Equal(t, "/tmp/out_2.csv", chainOutputPath("/tmp/out.csv", 2, 4))
}
