package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"fitgrid/internal/ctxlog"
	"fitgrid/internal/posterior"
)

// ProcessEngine runs compiled model binaries as child processes, one
// invocation per engine call, and parses their CSV draw output.
type ProcessEngine struct {
	// WorkDir is where per-run scratch directories are created. Empty
	// means the OS temp dir.
	WorkDir string
}

// NewProcessEngine creates a process-backed engine rooted at workDir.
func NewProcessEngine(workDir string) *ProcessEngine {
	return &ProcessEngine{WorkDir: workDir}
}

// SampleBatch runs all chains in one engine invocation. The binary manages
// its own parallelism up to the cores hint and writes one output file per
// chain.
func (e *ProcessEngine) SampleBatch(ctx context.Context, req BatchRequest) ([]posterior.ChainResult, error) {
	logger := ctxlog.FromContext(ctx)
	run, cleanup, err := e.newRunDir(req.Data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outBase := filepath.Join(run, "output.csv")
	args := samplingArgs(req.Config, req.Seed, 0)
	args = append(args, "num_chains="+strconv.Itoa(req.Chains))
	args = append(args, initArgs(run, 0, req.Init)...)
	args = append(args, "data", "file="+filepath.Join(run, "data.json"), "output", "file="+outBase)

	env := append(os.Environ(), "MODEL_NUM_THREADS="+strconv.Itoa(req.Cores))
	logger.Debug("Invoking engine batch call.", "chains", req.Chains, "cores", req.Cores)
	if err := e.invoke(ctx, req.Model.Path, args, env, req.Config.Quiet); err != nil {
		return nil, err
	}

	results := make([]posterior.ChainResult, 0, req.Chains)
	for chain := 1; chain <= req.Chains; chain++ {
		path := chainOutputPath(outBase, chain, req.Chains)
		res, err := readChainOutput(path, chain)
		if err != nil {
			return nil, fmt.Errorf("engine batch output for chain %d: %w", chain, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// SampleChain runs exactly one chain.
func (e *ProcessEngine) SampleChain(ctx context.Context, req ChainRequest) (posterior.ChainResult, error) {
	logger := ctxlog.FromContext(ctx)
	run, cleanup, err := e.newRunDir(req.Data)
	if err != nil {
		return posterior.ChainResult{}, err
	}
	defer cleanup()

	out := filepath.Join(run, fmt.Sprintf("output_%d.csv", req.Chain))
	args := samplingArgs(req.Config, req.Seed, req.Chain)
	args = append(args, initArgs(run, req.Chain, req.Init)...)
	args = append(args, "data", "file="+filepath.Join(run, "data.json"), "output", "file="+out)

	logger.Debug("Invoking engine single-chain call.", "chain", req.Chain, "seed", req.Seed)
	if err := e.invoke(ctx, req.Model.Path, args, os.Environ(), req.Config.Quiet); err != nil {
		return posterior.ChainResult{}, err
	}
	return readChainOutput(out, req.Chain)
}

// Variational runs the variational optimizer; the result is reported as a
// single chain with index 1.
func (e *ProcessEngine) Variational(ctx context.Context, req VariationalRequest) (posterior.ChainResult, error) {
	logger := ctxlog.FromContext(ctx)
	run, cleanup, err := e.newRunDir(req.Data)
	if err != nil {
		return posterior.ChainResult{}, err
	}
	defer cleanup()

	out := filepath.Join(run, "output.csv")
	args := []string{
		"variational",
		"algorithm=" + req.Algorithm,
		"iter=" + strconv.Itoa(req.Iter),
		"random", "seed=" + strconv.FormatInt(req.Seed, 10),
		"data", "file=" + filepath.Join(run, "data.json"),
		"output", "file=" + out,
	}
	logger.Debug("Invoking engine variational call.", "algorithm", req.Algorithm)
	if err := e.invoke(ctx, req.Model.Path, args, os.Environ(), req.Quiet); err != nil {
		return posterior.ChainResult{}, err
	}
	return readChainOutput(out, 1)
}

// newRunDir creates a scratch directory holding the build data payload and
// returns it with its cleanup function.
func (e *ProcessEngine) newRunDir(data []byte) (string, func(), error) {
	base := e.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	run := filepath.Join(base, "run-"+uuid.NewString())
	if err := os.MkdirAll(run, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(run, "data.json"), data, 0o644); err != nil {
		os.RemoveAll(run)
		return "", nil, fmt.Errorf("writing build data: %w", err)
	}
	return run, func() { os.RemoveAll(run) }, nil
}

func (e *ProcessEngine) invoke(ctx context.Context, bin string, args []string, env []string, quiet bool) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = env
	if quiet {
		cmd.Stdout = io.Discard
	} else {
		cmd.Stdout = os.Stderr
	}
	var stderr []byte
	pipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("engine stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting engine %q: %w", bin, err)
	}
	stderr, _ = io.ReadAll(pipe)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("engine %q failed: %w\n%s", bin, err, stderr)
	}
	return nil
}

// samplingArgs renders the sampling portion of the engine command line.
// chain 0 means a batch call with engine-assigned chain ids.
func samplingArgs(cfg SamplingConfig, seed int64, chain int) []string {
	args := []string{
		"sample",
		"num_samples=" + strconv.Itoa(cfg.Iter-cfg.Warmup),
		"num_warmup=" + strconv.Itoa(cfg.Warmup),
		"thin=" + strconv.Itoa(cfg.Thin),
		"adapt", "delta=" + strconv.FormatFloat(cfg.Control.AdaptDelta, 'g', -1, 64),
		"algorithm=hmc", "engine=nuts", "max_depth=" + strconv.Itoa(cfg.Control.MaxTreedepth),
		"random", "seed=" + strconv.FormatInt(seed, 10),
	}
	if chain > 0 {
		args = append(args, "id="+strconv.Itoa(chain))
	}
	return args
}

// initArgs renders the initial-values argument, writing an init file into
// the run dir when explicit values were supplied.
func initArgs(run string, chain int, init InitSpec) []string {
	switch init.Kind {
	case InitValue:
		return []string{"init=" + strconv.FormatFloat(init.Value, 'g', -1, 64)}
	case InitValues:
		name := "init.json"
		if chain > 0 {
			name = fmt.Sprintf("init_%d.json", chain)
		}
		path := filepath.Join(run, name)
		payload, err := json.Marshal(init.Values)
		if err == nil && os.WriteFile(path, payload, 0o644) == nil {
			return []string{"init=" + path}
		}
		return nil
	}
	return nil
}

// chainOutputPath resolves the per-chain file a batch call produced.
func chainOutputPath(base string, chain, chains int) string {
	if chains == 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", base[:len(base)-len(ext)], chain, ext)
}

func readChainOutput(path string, chain int) (posterior.ChainResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return posterior.ChainResult{}, fmt.Errorf("opening draw output: %w", err)
	}
	defer f.Close()
	params, draws, diags, err := parseDrawsCSV(f)
	if err != nil {
		return posterior.ChainResult{}, err
	}
	return posterior.ChainResult{Chain: chain, Params: params, Draws: draws, Diagnostics: diags}, nil
}
