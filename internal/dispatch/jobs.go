package dispatch

import (
	"math/rand"
	"time"

	"fitgrid/internal/engine"
)

// ChainJob is one immutable unit of the partitioned run: a contiguous chain
// index, a derived seed, the chain's initial-values spec, and the shared
// iteration schedule. Each job is consumed exactly once.
type ChainJob struct {
	Chain  int
	Seed   int64
	Init   engine.InitSpec
	Config engine.SamplingConfig
}

// BuildJobs partitions a validated sampling config into one job per chain.
// When no top-level seed is set, one is drawn here so that all chains of a
// run derive from a single origin; chain i samples with seed+i-1.
func BuildJobs(cfg *RunConfig) []ChainJob {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
	}

	jobs := make([]ChainJob, cfg.Chains)
	for i := range jobs {
		init := cfg.Init
		if len(cfg.ChainInits) > 0 {
			init = cfg.ChainInits[i]
		}
		jobs[i] = ChainJob{
			Chain:  i + 1,
			Seed:   seed + int64(i),
			Init:   init,
			Config: cfg.samplingConfig(),
		}
	}
	return jobs
}
