// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fitgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("fitgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
fitgrid - compile declarative hierarchical models and orchestrate inference chains.

Usage:
  fitgrid [options] [MODEL_PATH]

Arguments:
  MODEL_PATH
    Path to a single .hcl model file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	modelFlag := flagSet.String("model", "", "Path to the model file or directory.")
	mFlag := flagSet.String("m", "", "Path to the model file or directory (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	chainsFlag := flagSet.Int("chains", 0, "Number of independent chains (overrides the run block).")
	iterFlag := flagSet.Int("iter", 0, "Total iterations per chain, including warmup.")
	warmupFlag := flagSet.Int("warmup", 0, "Warmup iterations per chain.")
	thinFlag := flagSet.Int("thin", 0, "Thinning rate.")
	seedFlag := flagSet.Int64("seed", 0, "Top-level random seed; per-chain seeds derive from it.")
	coresFlag := flagSet.Int("cores", 0, "Core-count hint for engine-delegated strategies.")
	strategyFlag := flagSet.String("strategy", "", "Execution strategy: 'native', 'forked' or 'futures'.")
	algorithmFlag := flagSet.String("algorithm", "", "Inference algorithm: 'sampling', 'meanfield' or 'fullrank'.")
	initFlag := flagSet.String("init", "", "Initial values: 'random', a radius number, or a registered generator name.")
	fileFlag := flagSet.String("file", "", "Durable fit-cache key; an existing entry short-circuits the run.")
	saveModelFlag := flagSet.String("save-model", "", "Write the generated program source to this path.")
	quietFlag := flagSet.Bool("quiet", false, "Suppress engine progress messages.")
	compilerFlag := flagSet.String("compiler", "", "Model compiler binary (also surfaces compiler diagnostics).")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory for compiled binaries and the fit cache.")

	// Deprecated options, kept as best-effort mappings.
	threadsFlag := flagSet.Int("threads", 0, "Deprecated: use -cores.")
	saveCompiledFlag := flagSet.Bool("save-compiled", false, "Deprecated: compiled binaries are always cached.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	// Warmup zero is a valid setting, so it only counts when the flag was
	// actually given.
	var warmup *int
	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == "warmup" {
			warmup = warmupFlag
		}
	})

	path := ""
	if *modelFlag != "" {
		path = *modelFlag
	} else if *mFlag != "" {
		path = *mFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cores := *coresFlag
	if *threadsFlag > 0 {
		slog.Warn("The -threads option is deprecated; mapping it to -cores.", "threads", *threadsFlag)
		if cores == 0 {
			cores = *threadsFlag
		}
	}
	if *saveCompiledFlag {
		slog.Warn("The -save-compiled option is deprecated; compiled binaries are always cached by content checksum.")
	}

	config, err := app.NewConfig(app.Config{
		ModelPath:   path,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		Chains:      *chainsFlag,
		Iter:        *iterFlag,
		Warmup:      warmup,
		Thin:        *thinFlag,
		Seed:        *seedFlag,
		Cores:       cores,
		Strategy:    *strategyFlag,
		Algorithm:   *algorithmFlag,
		Init:        *initFlag,
		File:        *fileFlag,
		SaveModel:   *saveModelFlag,
		Quiet:       *quietFlag,
		CompilerBin: *compilerFlag,
		CacheDir:    *cacheDirFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, false, nil
}
