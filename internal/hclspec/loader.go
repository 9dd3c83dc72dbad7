// Package hclspec is the declarative front end: it loads .hcl model files
// and translates them into the raw specification and run options the
// pipeline consumes.
package hclspec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"fitgrid/internal/ctxlog"
	"fitgrid/internal/modelspec"
)

// Input is everything a model file set declares: the raw model spec plus
// the run options attached to it.
type Input struct {
	Name string
	Raw  modelspec.RawSpec
	Run  RunOptions
}

// RunOptions mirrors the optional `run` block. Zero values mean "not set";
// the app applies defaults and CLI overrides on top. Warmup is a pointer
// because zero is a valid explicit setting, not an absence.
type RunOptions struct {
	Chains       int     `hcl:"chains,optional"`
	Iter         int     `hcl:"iter,optional"`
	Warmup       *int    `hcl:"warmup,optional"`
	Thin         int     `hcl:"thin,optional"`
	Seed         int64   `hcl:"seed,optional"`
	Cores        int     `hcl:"cores,optional"`
	Strategy     string  `hcl:"strategy,optional"`
	Algorithm    string  `hcl:"algorithm,optional"`
	Init         string  `hcl:"init,optional"`
	AdaptDelta   float64 `hcl:"adapt_delta,optional"`
	MaxTreedepth int     `hcl:"max_treedepth,optional"`
	File         string  `hcl:"file,optional"`
	SaveModel    string  `hcl:"save_model,optional"`
	Quiet        bool    `hcl:"quiet,optional"`
}

// fileRoot decodes all recognized top-level blocks from any model file.
type fileRoot struct {
	Models []*modelBlock `hcl:"model,block"`
	Priors []*priorBlock `hcl:"prior,block"`
	Data   []*dataBlock  `hcl:"data,block"`
	Run    []*RunOptions `hcl:"run,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type modelBlock struct {
	Name      string      `hcl:"name,label"`
	Formula   string      `hcl:"formula"`
	Family    string      `hcl:"family"`
	Link      string      `hcl:"link,optional"`
	Autocor   string      `hcl:"autocor,optional"`
	Sparse    bool        `hcl:"sparse,optional"`
	Knots     []float64   `hcl:"knots,optional"`
	Fragments []string    `hcl:"fragments,optional"`
	Cov       []*covBlock `hcl:"cov,block"`
}

type covBlock struct {
	Group  string      `hcl:"group,label"`
	Matrix [][]float64 `hcl:"matrix"`
}

type priorBlock struct {
	Class string `hcl:"class"`
	Coef  string `hcl:"coef,optional"`
	Group string `hcl:"group,optional"`
	Spec  string `hcl:"spec"`
}

type dataBlock struct {
	File    string        `hcl:"file,optional"`
	Factors []string      `hcl:"factors,optional"`
	Columns *columnsBlock `hcl:"columns,block"`
}

// columnsBlock captures inline data columns as raw attributes so their
// values can be translated from cty below.
type columnsBlock struct {
	Remain hcl.Body `hcl:",remain"`
}

// Load parses the model file (or every .hcl file under a directory) and
// translates the blocks into one Input. Exactly one model block and one
// data block must be present across the file set.
func Load(ctx context.Context, path string) (*Input, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findModelFiles(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered model files.", "count", len(files))

	parser := hclparse.NewParser()
	var roots []fileRoot
	var dirs []string
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", file, diags)
		}
		roots = append(roots, root)
		dirs = append(dirs, filepath.Dir(file))
	}

	return translate(ctx, roots, dirs)
}

func translate(ctx context.Context, roots []fileRoot, dirs []string) (*Input, error) {
	logger := ctxlog.FromContext(ctx)

	var input Input
	var model *modelBlock
	var data *dataBlock
	var dataDir string
	seenRun := false

	for i, root := range roots {
		for _, m := range root.Models {
			if model != nil {
				return nil, fmt.Errorf("multiple model blocks found (%q and %q); declare exactly one", model.Name, m.Name)
			}
			model = m
		}
		for _, d := range root.Data {
			if data != nil {
				return nil, fmt.Errorf("multiple data blocks found; declare exactly one")
			}
			data = d
			dataDir = dirs[i]
		}
		for _, r := range root.Run {
			if seenRun {
				return nil, fmt.Errorf("multiple run blocks found; declare at most one")
			}
			seenRun = true
			input.Run = *r
		}
		for _, p := range root.Priors {
			input.Raw.Priors = append(input.Raw.Priors, modelspec.Prior{
				Class: p.Class, Coef: p.Coef, Group: p.Group, Spec: p.Spec,
			})
		}
	}

	if model == nil {
		return nil, fmt.Errorf("no model block found")
	}
	if data == nil {
		return nil, fmt.Errorf("no data block found")
	}

	input.Name = model.Name
	input.Raw.Formula = model.Formula
	input.Raw.Family = model.Family
	input.Raw.Link = model.Link
	input.Raw.Autocor = model.Autocor
	input.Raw.SparseX = model.Sparse
	input.Raw.Knots = model.Knots
	input.Raw.Fragments = model.Fragments
	if len(model.Cov) > 0 {
		input.Raw.CovRanef = make(map[string][][]float64, len(model.Cov))
		for _, cov := range model.Cov {
			if _, dup := input.Raw.CovRanef[cov.Group]; dup {
				return nil, fmt.Errorf("duplicate cov block for group %q", cov.Group)
			}
			input.Raw.CovRanef[cov.Group] = cov.Matrix
		}
	}

	table, err := loadData(ctx, data, dataDir)
	if err != nil {
		return nil, err
	}
	input.Raw.Data = table

	logger.Debug("Model file translated.", "model", input.Name, "priors", len(input.Raw.Priors), "rows", table.Rows)
	return &input, nil
}

// findModelFiles resolves a path into the ordered list of .hcl files it
// denotes.
func findModelFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("accessing model path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl model files found under %s", path)
	}
	return files, nil
}
