package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fitgrid/internal/compiler"
	"fitgrid/internal/ctxlog"
	"fitgrid/internal/dispatch"
	"fitgrid/internal/fitcache"
	"fitgrid/internal/modelspec"
	"fitgrid/internal/posterior"
	"fitgrid/internal/program"
)

// FitRequest is the single build-and-run call of the pipeline.
type FitRequest struct {
	Raw modelspec.RawSpec
	Run dispatch.RunConfig

	// File keys the durable fit cache; empty disables caching.
	File string
	// SaveModel exports the generated program source to this path as a
	// side artifact, before compilation is attempted.
	SaveModel string
	// Prior switches the pipeline into reuse mode: the existing fit's
	// compiled model and build artifacts are used without regeneration.
	Prior *posterior.FitResult
	// Compiler overrides the builder options; nil selects ambient
	// defaults with diagnostics suppressed.
	Compiler *compiler.Options
}

// Fit executes the full pipeline for one request and returns the fit.
func (a *App) Fit(ctx context.Context, req *FitRequest) (*posterior.FitResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger

	// Cache-read failures of any kind count as misses: the run must not be
	// blocked by a bad database file or a broken query.
	var store *fitcache.Store
	if req.File != "" {
		s, err := fitcache.Open(filepath.Join(a.ambient.CacheDir, "fits.db"))
		if err != nil {
			logger.Warn("Fit cache is unreadable; treating as a miss and skipping persistence.", "key", req.File, "error", err)
		} else {
			store = s
			defer store.Close()

			fit, err := store.Load(ctx, req.File)
			if err != nil {
				logger.Warn("Fit cache lookup failed; treating as a miss.", "key", req.File, "error", err)
			} else if fit != nil {
				fit.File = req.File
				fit.CachePath = store.Path()
				logger.Info("Loaded fit from cache; skipping build and sampling.", "key", req.File)
				return fit, nil
			}
		}
	}

	spec, artifacts, model, err := a.resolveArtifacts(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.SaveModel != "" {
		if err := os.WriteFile(req.SaveModel, []byte(artifacts.Source), 0o644); err != nil {
			return nil, fmt.Errorf("exporting program source: %w", err)
		}
		logger.Info("Program source exported.", "path", req.SaveModel)
	}

	if model == nil {
		opts := compiler.Options{Bin: a.ambient.CompilerBin, CacheDir: a.ambient.CacheDir}
		if req.Compiler != nil {
			opts = *req.Compiler
		}
		model, err = compiler.Build(ctx, artifacts.Source, opts)
		if err != nil {
			return nil, err
		}
	}

	results, err := dispatch.New(a.engine).Run(ctx, model, artifacts.Data, &req.Run)
	if err != nil {
		return nil, err
	}

	effective := req.Run.Chains
	if req.Run.Algorithm.Variational() {
		effective = 1
	}
	draws, err := posterior.Merge(results, effective, artifacts.Excluded)
	if err != nil {
		return nil, err
	}
	draws.Rename(artifacts.RenameMap())

	fit := &posterior.FitResult{
		Draws:     draws,
		Model:     model,
		Spec:      spec,
		Artifacts: artifacts,
		Excluded:  artifacts.Excluded,
		File:      req.File,
	}

	if store != nil {
		fit.CachePath = store.Path()
		if err := store.Store(ctx, req.File, fit); err != nil {
			if errors.Is(err, fitcache.ErrExists) {
				// A concurrent run won the key; last writer would have
				// overwritten, so leaving the existing entry is fine.
				logger.Warn("Fit already persisted under this key by another run.", "key", req.File)
			} else {
				return nil, err
			}
		} else {
			logger.Info("Fit persisted.", "key", req.File, "path", store.Path())
		}
	}
	return fit, nil
}

// resolveArtifacts returns the spec, build artifacts, and (in reuse mode)
// the already-compiled model for a request. Building new runs the cheap
// normalization and generation steps; reuse extracts everything from the
// prior fit without recomputation.
func (a *App) resolveArtifacts(ctx context.Context, req *FitRequest) (*modelspec.ModelSpec, *program.Artifacts, *compiler.CompiledModel, error) {
	logger := a.logger

	if req.Prior != nil {
		if req.Prior.Artifacts == nil || req.Prior.Model == nil {
			return nil, nil, nil, fmt.Errorf("existing fit carries no build artifacts to reuse")
		}
		if err := checkReusable(&req.Raw, req.Prior.Spec); err != nil {
			return nil, nil, nil, err
		}
		logger.Debug("Reusing compiled model and build data from existing fit.", "checksum", req.Prior.Model.Checksum[:12])
		return req.Prior.Spec, req.Prior.Artifacts, req.Prior.Model, nil
	}

	spec, err := modelspec.Normalize(ctx, req.Raw)
	if err != nil {
		return nil, nil, nil, err
	}
	artifacts, err := program.Generate(ctx, spec)
	if err != nil {
		return nil, nil, nil, err
	}
	return spec, artifacts, nil, nil
}

// checkReusable rejects request fields that would have required
// regenerating the program the existing fit was built from. Zero values
// mean "keep the existing fit's value".
func checkReusable(raw *modelspec.RawSpec, spec *modelspec.ModelSpec) error {
	if raw.Formula != "" && raw.Formula != spec.Formula.Raw {
		return fmt.Errorf("reusing an existing fit cannot change the formula (had %q, got %q); build a new model instead",
			spec.Formula.Raw, raw.Formula)
	}
	if raw.Family != "" && !strings.EqualFold(strings.TrimSpace(raw.Family), spec.Family.Name) {
		return fmt.Errorf("reusing an existing fit cannot change the family (had %q, got %q); build a new model instead",
			spec.Family.Name, raw.Family)
	}
	if raw.Link != "" && !strings.EqualFold(strings.TrimSpace(raw.Link), spec.Family.Link) {
		return fmt.Errorf("reusing an existing fit cannot change the link (had %q, got %q); build a new model instead",
			spec.Family.Link, raw.Link)
	}
	if raw.Autocor != "" {
		ac, err := modelspec.ParseAutocor(raw.Autocor)
		if err != nil {
			return err
		}
		if ac != spec.Autocor {
			return fmt.Errorf("reusing an existing fit cannot change the autocorrelation structure (had %q, got %q); build a new model instead",
				spec.Autocor.String(), ac.String())
		}
	}
	if raw.SparseX && !spec.SparseX {
		return fmt.Errorf("reusing an existing fit cannot switch to a sparse design matrix; build a new model instead")
	}
	return nil
}
