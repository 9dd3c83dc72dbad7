package hclspec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"fitgrid/internal/ctxlog"
	"fitgrid/internal/modelspec"
)

// loadData builds the observation table from a data block: either a CSV
// file referenced relative to the declaring model file, or inline columns.
func loadData(ctx context.Context, block *dataBlock, dir string) (*modelspec.Table, error) {
	logger := ctxlog.FromContext(ctx)

	switch {
	case block.File != "" && block.Columns != nil:
		return nil, fmt.Errorf("data block declares both a file and inline columns; pick one")
	case block.File != "":
		path := block.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening data file: %w", err)
		}
		defer f.Close()
		logger.Debug("Loading observations from CSV.", "path", path)
		return modelspec.ReadCSV(f, block.Factors)
	case block.Columns != nil:
		return inlineColumns(block.Columns)
	}
	return nil, fmt.Errorf("data block declares neither a file nor inline columns")
}

// inlineColumns translates the raw attributes of a columns block into
// table columns. Number lists become numeric columns; string lists become
// factor columns with levels coded in order of first appearance.
func inlineColumns(block *columnsBlock) (*modelspec.Table, error) {
	attrs, diags := block.Remain.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("reading inline columns: %w", diags)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]modelspec.Column, 0, len(names))
	for _, name := range names {
		val, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluating column %q: %w", name, diags)
		}
		col, err := columnFromValue(name, val)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return modelspec.NewTable(cols...)
}

func columnFromValue(name string, val cty.Value) (modelspec.Column, error) {
	if numeric, err := convert.Convert(val, cty.List(cty.Number)); err == nil {
		var values []float64
		if err := gocty.FromCtyValue(numeric, &values); err != nil {
			return modelspec.Column{}, fmt.Errorf("column %q: %w", name, err)
		}
		return modelspec.Column{Name: name, Values: values}, nil
	}

	strVal, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return modelspec.Column{}, fmt.Errorf("column %q must be a list of numbers or strings", name)
	}
	var cells []string
	if err := gocty.FromCtyValue(strVal, &cells); err != nil {
		return modelspec.Column{}, fmt.Errorf("column %q: %w", name, err)
	}

	levels := []string{}
	codes := make(map[string]int)
	values := make([]float64, len(cells))
	for i, cell := range cells {
		code, ok := codes[cell]
		if !ok {
			levels = append(levels, cell)
			code = len(levels)
			codes[cell] = code
		}
		values[i] = float64(code)
	}
	return modelspec.Column{Name: name, Values: values, Levels: levels}, nil
}
