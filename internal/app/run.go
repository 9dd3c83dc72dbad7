package app

import (
	"context"
	"fmt"
	"strconv"

	"fitgrid/internal/compiler"
	"fitgrid/internal/ctxlog"
	"fitgrid/internal/dispatch"
	"fitgrid/internal/engine"
	"fitgrid/internal/hclspec"
	"fitgrid/internal/initvals"
)

// Run loads the model file set, assembles the fit request, executes the
// pipeline, and prints the posterior summary.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run started.", "model_path", a.config.ModelPath)

	input, err := hclspec.Load(ctx, a.config.ModelPath)
	if err != nil {
		return fmt.Errorf("loading model files: %w", err)
	}
	a.logger.Info("Model loaded.", "model", input.Name, "rows", input.Raw.Data.Rows)

	req, err := a.buildRequest(input)
	if err != nil {
		return err
	}

	a.logger.Info("Starting fit.", "algorithm", string(req.Run.Algorithm), "strategy", string(req.Run.Strategy), "chains", req.Run.Chains)
	fit, err := a.Fit(ctx, req)
	if err != nil {
		return err
	}
	a.logger.Info("Fit finished.", "chains", fit.Draws.Chains, "draws", fit.Draws.Total())

	a.printSummary(fit)
	return nil
}

// buildRequest merges, in increasing precedence: built-in defaults, the
// ambient environment, the model file's run block, and CLI overrides.
func (a *App) buildRequest(input *hclspec.Input) (*FitRequest, error) {
	run := dispatch.RunConfig{
		Algorithm: dispatch.AlgSampling,
		Strategy:  dispatch.StrategyNative,
		Chains:    4,
		Iter:      2000,
		Warmup:    -1, // filled from iter below when unset
		Thin:      1,
		Control:   engine.Control{AdaptDelta: 0.8, MaxTreedepth: 10},
	}
	if a.ambient.Futures {
		run.Strategy = dispatch.StrategyFutures
	}

	applyRunOptions(&run, input.Run)
	applyCLIOverrides(&run, a.config)

	if run.Warmup < 0 {
		if run.Algorithm.Variational() {
			run.Warmup = 0
		} else {
			run.Warmup = run.Iter / 2
		}
	}
	// The ambient core count only backs engine-delegated strategies; under
	// futures an unset hint must stay unset so no spurious warning fires.
	if run.Cores == 0 && run.Strategy != dispatch.StrategyFutures {
		run.Cores = a.ambient.Cores
	}
	run.Quiet = run.Quiet || a.config.Quiet

	initName := a.config.Init
	if initName == "" {
		initName = input.Run.Init
	}
	if err := resolveInit(&run, initName); err != nil {
		return nil, err
	}

	file := a.config.File
	if file == "" {
		file = input.Run.File
	}
	saveModel := a.config.SaveModel
	if saveModel == "" {
		saveModel = input.Run.SaveModel
	}

	req := &FitRequest{Raw: input.Raw, Run: run, File: file, SaveModel: saveModel}
	if a.config.CompilerBin != "" || len(a.config.CompilerFlags) > 0 {
		// Customized builder options also surface compiler diagnostics.
		bin := a.config.CompilerBin
		if bin == "" {
			bin = a.ambient.CompilerBin
		}
		req.Compiler = &compiler.Options{
			Bin:      bin,
			Flags:    a.config.CompilerFlags,
			CacheDir: a.ambient.CacheDir,
			Verbose:  true,
		}
	}
	return req, nil
}

func applyRunOptions(run *dispatch.RunConfig, opts hclspec.RunOptions) {
	if opts.Chains > 0 {
		run.Chains = opts.Chains
	}
	if opts.Iter > 0 {
		run.Iter = opts.Iter
	}
	if opts.Warmup != nil {
		run.Warmup = *opts.Warmup
	}
	if opts.Thin > 0 {
		run.Thin = opts.Thin
	}
	if opts.Seed != 0 {
		run.Seed = opts.Seed
	}
	if opts.Cores > 0 {
		run.Cores = opts.Cores
	}
	if opts.Strategy != "" {
		run.Strategy = dispatch.Strategy(opts.Strategy)
	}
	if opts.Algorithm != "" {
		run.Algorithm = dispatch.Algorithm(opts.Algorithm)
	}
	if opts.AdaptDelta > 0 {
		run.Control.AdaptDelta = opts.AdaptDelta
	}
	if opts.MaxTreedepth > 0 {
		run.Control.MaxTreedepth = opts.MaxTreedepth
	}
	run.Quiet = run.Quiet || opts.Quiet
}

func applyCLIOverrides(run *dispatch.RunConfig, cfg *Config) {
	if cfg.Chains > 0 {
		run.Chains = cfg.Chains
	}
	if cfg.Iter > 0 {
		run.Iter = cfg.Iter
	}
	if cfg.Warmup != nil {
		run.Warmup = *cfg.Warmup
	}
	if cfg.Thin > 0 {
		run.Thin = cfg.Thin
	}
	if cfg.Seed != 0 {
		run.Seed = cfg.Seed
	}
	if cfg.Cores > 0 {
		run.Cores = cfg.Cores
	}
	if cfg.Strategy != "" {
		run.Strategy = dispatch.Strategy(cfg.Strategy)
	}
	if cfg.Algorithm != "" {
		run.Algorithm = dispatch.Algorithm(cfg.Algorithm)
	}
}

// resolveInit maps the init declaration onto the run config: "random" (or
// empty) for engine-drawn values, a number for a radius, or the name of a
// registered generator. Generator names are resolved here, at call entry,
// so an unknown name fails before any work is done.
func resolveInit(run *dispatch.RunConfig, name string) error {
	switch {
	case name == "" || name == "random":
		run.Init = engine.InitSpec{Kind: engine.InitRandom}
		return nil
	}
	if radius, err := strconv.ParseFloat(name, 64); err == nil {
		run.Init = engine.InitSpec{Kind: engine.InitValue, Value: radius}
		return nil
	}

	gen, err := initvals.Resolve(name)
	if err != nil {
		return err
	}
	if run.Strategy == dispatch.StrategyFutures && !run.Algorithm.Variational() {
		inits := make([]engine.InitSpec, run.Chains)
		for i := range inits {
			values := gen(i + 1)
			if len(values) == 0 {
				return fmt.Errorf("init generator %q produced no values for chain %d", name, i+1)
			}
			inits[i] = engine.InitSpec{Kind: engine.InitValues, Values: values}
		}
		run.ChainInits = inits
		return nil
	}
	values := gen(0)
	if len(values) == 0 {
		return fmt.Errorf("init generator %q produced no values", name)
	}
	run.Init = engine.InitSpec{Kind: engine.InitValues, Values: values}
	return nil
}
