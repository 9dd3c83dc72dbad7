package program

import (
	"encoding/json"
	"fmt"

	"fitgrid/internal/modelspec"
)

// Data serializes the spec's observations into the build-data payload the
// engine reads alongside the compiled program. The payload is canonical
// JSON: keys are emitted in sorted order, so identical specs always produce
// byte-identical payloads.
func Data(spec *modelspec.ModelSpec) ([]byte, error) {
	f := spec.Formula
	t := spec.Data

	if !f.Intercept && len(f.Fixed) == 0 && len(f.Groups) == 0 {
		return nil, fmt.Errorf("build data: model declares no effects to estimate")
	}

	resp, ok := t.Column(f.Response)
	if !ok {
		return nil, fmt.Errorf("build data: response column %q missing", f.Response)
	}

	payload := map[string]any{
		"N": t.Rows,
		"Y": resp.Values,
		"K": len(f.Fixed),
	}

	if len(f.Fixed) > 0 {
		if err := addDesignMatrix(payload, spec); err != nil {
			return nil, err
		}
	}

	for i, gt := range f.Groups {
		if err := addGroupData(payload, t, i+1, gt); err != nil {
			return nil, err
		}
	}

	if spec.Autocor.P > 0 {
		payload["Kar"] = spec.Autocor.P
	}
	if spec.Autocor.Q > 0 {
		payload["Kma"] = spec.Autocor.Q
	}
	if len(spec.Knots) > 0 {
		payload["Kn"] = len(spec.Knots)
		payload["knots"] = spec.Knots
	}
	for i, gt := range f.Groups {
		if cov, ok := spec.CovRanef[gt.Group]; ok {
			payload[fmt.Sprintf("cov_%d", i+1)] = cov
		}
	}

	return json.Marshal(payload)
}

// addDesignMatrix emits the population-level design matrix, dense by
// default or in compressed sparse row form when the sparse flag is set.
func addDesignMatrix(payload map[string]any, spec *modelspec.ModelSpec) error {
	f := spec.Formula
	t := spec.Data

	cols := make([]modelspec.Column, len(f.Fixed))
	for k, name := range f.Fixed {
		c, ok := t.Column(name)
		if !ok {
			return fmt.Errorf("build data: covariate column %q missing", name)
		}
		cols[k] = c
	}

	if !spec.SparseX {
		x := make([][]float64, t.Rows)
		for i := range x {
			row := make([]float64, len(cols))
			for k, c := range cols {
				row[k] = c.Values[i]
			}
			x[i] = row
		}
		payload["X"] = x
		return nil
	}

	// CSR triplet with 1-based column indices and row pointers.
	var vals []float64
	var colIdx []int
	rowPtr := make([]int, t.Rows+1)
	rowPtr[0] = 1
	for i := 0; i < t.Rows; i++ {
		for k, c := range cols {
			if v := c.Values[i]; v != 0 {
				vals = append(vals, v)
				colIdx = append(colIdx, k+1)
			}
		}
		rowPtr[i+1] = len(vals) + 1
	}
	payload["Xv"] = vals
	payload["Xi"] = colIdx
	payload["Xp"] = rowPtr
	payload["Xnz"] = len(vals)
	return nil
}

// addGroupData emits the membership vector and group-level design matrix
// for one grouping term.
func addGroupData(payload map[string]any, t *modelspec.Table, idx int, gt modelspec.GroupTerm) error {
	group, ok := t.Column(gt.Group)
	if !ok || !group.IsFactor() {
		return fmt.Errorf("build data: grouping column %q missing or not a factor", gt.Group)
	}
	if len(group.Levels) < 2 {
		return fmt.Errorf("build data: grouping factor %q has fewer than 2 levels", gt.Group)
	}

	j := make([]int, t.Rows)
	for i, v := range group.Values {
		j[i] = int(v)
	}

	ncoefs := len(gt.Coefs)
	if gt.Intercept {
		ncoefs++
	}
	z := make([][]float64, t.Rows)
	for i := range z {
		row := make([]float64, 0, ncoefs)
		if gt.Intercept {
			row = append(row, 1)
		}
		for _, name := range gt.Coefs {
			c, ok := t.Column(name)
			if !ok {
				return fmt.Errorf("build data: group-level covariate %q missing", name)
			}
			row = append(row, c.Values[i])
		}
		z[i] = row
	}

	payload[fmt.Sprintf("J_%d", idx)] = j
	payload[fmt.Sprintf("N_%d", idx)] = len(group.Levels)
	payload[fmt.Sprintf("M_%d", idx)] = ncoefs
	payload[fmt.Sprintf("Z_%d", idx)] = z
	return nil
}
