package modelspec

import (
	"context"
	"math"

	"fitgrid/internal/ctxlog"
)

// RawSpec is the caller-supplied model description before validation.
type RawSpec struct {
	Formula   string
	Family    string
	Link      string
	Autocor   string
	Priors    []Prior
	Data      *Table
	SparseX   bool
	Knots     []float64
	CovRanef  map[string][][]float64
	Fragments []string
}

// ModelSpec is the validated, canonical model description. It is immutable
// once built and fully determines program generation.
type ModelSpec struct {
	Formula   Formula                `json:"formula"`
	Family    Family                 `json:"family"`
	Autocor   Autocor                `json:"autocor"`
	Priors    []Prior                `json:"priors,omitempty"`
	Data      *Table                 `json:"data"`
	SparseX   bool                   `json:"sparse_x,omitempty"`
	Knots     []float64              `json:"knots,omitempty"`
	CovRanef  map[string][][]float64 `json:"cov_ranef,omitempty"`
	Fragments []string               `json:"fragments,omitempty"`
}

// Normalize validates and canonicalizes a raw specification. It fails fast
// with a SpecError before any program generation or compilation cost is paid.
func Normalize(ctx context.Context, raw RawSpec) (*ModelSpec, error) {
	logger := ctxlog.FromContext(ctx)

	formula, err := ParseFormula(raw.Formula)
	if err != nil {
		return nil, err
	}
	family, err := CanonicalFamily(raw.Family, raw.Link)
	if err != nil {
		return nil, err
	}
	autocor, err := ParseAutocor(raw.Autocor)
	if err != nil {
		return nil, err
	}
	logger.Debug("Formula and family canonicalized.", "response", formula.Response, "family", family.Name, "link", family.Link)

	if raw.Data == nil || raw.Data.Rows == 0 {
		return nil, specErrorf("data", "model has no observations")
	}
	data, err := cleanData(formula, family, raw.Data)
	if err != nil {
		return nil, err
	}
	logger.Debug("Data table trimmed to formula terms.", "columns", len(data.Columns), "rows", data.Rows)

	if err := validatePriors(formula, family, autocor, raw.Priors); err != nil {
		return nil, err
	}
	if err := validateCovRanef(formula, data, raw.CovRanef); err != nil {
		return nil, err
	}
	if err := validateKnots(raw.Knots); err != nil {
		return nil, err
	}

	return &ModelSpec{
		Formula:   formula,
		Family:    family,
		Autocor:   autocor,
		Priors:    raw.Priors,
		Data:      data,
		SparseX:   raw.SparseX,
		Knots:     raw.Knots,
		CovRanef:  raw.CovRanef,
		Fragments: raw.Fragments,
	}, nil
}

// cleanData trims the table to the columns the formula references, coerces
// grouping columns to factors, and validates column shapes against their
// roles in the term tree.
func cleanData(f Formula, fam Family, t *Table) (*Table, error) {
	trimmed, err := t.Select(f.Vars())
	if err != nil {
		return nil, err
	}

	grouping := make(map[string]bool, len(f.Groups))
	for _, gt := range f.Groups {
		grouping[gt.Group] = true
	}

	cols := make([]Column, len(trimmed.Columns))
	for i, c := range trimmed.Columns {
		if grouping[c.Name] {
			cols[i] = asFactor(c)
			continue
		}
		if c.IsFactor() {
			return nil, specErrorf("data", "column %q is categorical; covariates and responses must be numeric", c.Name)
		}
		for _, v := range c.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, specErrorf("data", "column %q contains non-finite values", c.Name)
			}
		}
		cols[i] = c
	}

	out, err := NewTable(cols...)
	if err != nil {
		return nil, err
	}
	if err := validateResponse(f, fam, out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateResponse(f Formula, fam Family, t *Table) error {
	resp, _ := t.Column(f.Response)
	if !fam.Discrete() {
		return nil
	}
	for _, v := range resp.Values {
		if v != math.Trunc(v) || v < 0 {
			return specErrorf("data", "response %q must hold non-negative integers for family %q", f.Response, fam.Name)
		}
		if fam.Name == "bernoulli" && v > 1 {
			return specErrorf("data", "response %q must be 0 or 1 for family bernoulli", f.Response)
		}
	}
	return nil
}

func validateCovRanef(f Formula, t *Table, cov map[string][][]float64) error {
	for group, matrix := range cov {
		var found *Column
		for _, gt := range f.Groups {
			if gt.Group == group {
				c, _ := t.Column(group)
				found = &c
				break
			}
		}
		if found == nil {
			return specErrorf("cov_ranef", "covariance supplied for %q, which is not a grouping factor", group)
		}
		n := len(found.Levels)
		if len(matrix) != n {
			return specErrorf("cov_ranef", "covariance for %q has %d rows, expected %d (one per level)", group, len(matrix), n)
		}
		for i, row := range matrix {
			if len(row) != n {
				return specErrorf("cov_ranef", "covariance for %q row %d has %d entries, expected %d", group, i+1, len(row), n)
			}
		}
	}
	return nil
}

func validateKnots(knots []float64) error {
	for i := 1; i < len(knots); i++ {
		if knots[i] <= knots[i-1] {
			return specErrorf("knots", "knot values must be strictly increasing")
		}
	}
	return nil
}
