// Package program turns a normalized ModelSpec into program source text and
// the structured build-data payload consumed by the sampling engine. Both
// outputs are pure functions of the spec: generating twice from the same
// ModelSpec yields byte-identical results.
package program

import (
	"context"
	"fmt"

	"fitgrid/internal/ctxlog"
	"fitgrid/internal/modelspec"
)

// GroupMeta describes one group-level term of the generated program, keyed
// by its 1-based position in the formula.
type GroupMeta struct {
	Index  int      `json:"index"`
	Group  string   `json:"group"`
	Levels []string `json:"levels"`
	Coefs  []string `json:"coefs"`
}

// Artifacts bundles everything generation produces for one ModelSpec.
type Artifacts struct {
	Source   string      `json:"source"`
	Data     []byte      `json:"data"`
	Excluded []string    `json:"excluded,omitempty"`
	Groups   []GroupMeta `json:"groups,omitempty"`
	Fixed    []string    `json:"fixed,omitempty"`
}

// Generate produces the full artifact set. The data payload is generated
// before the source so that data-shape errors surface without paying any
// compilation cost downstream.
func Generate(ctx context.Context, spec *modelspec.ModelSpec) (*Artifacts, error) {
	logger := ctxlog.FromContext(ctx)

	data, err := Data(spec)
	if err != nil {
		return nil, err
	}
	logger.Debug("Build data generated.", "bytes", len(data))

	source, err := Source(spec)
	if err != nil {
		return nil, err
	}
	logger.Debug("Program source generated.", "bytes", len(source))

	groups := groupMeta(spec)
	return &Artifacts{
		Source:   source,
		Data:     data,
		Excluded: excludedParams(groups),
		Groups:   groups,
		Fixed:    spec.Formula.Fixed,
	}, nil
}

func groupMeta(spec *modelspec.ModelSpec) []GroupMeta {
	metas := make([]GroupMeta, 0, len(spec.Formula.Groups))
	for i, gt := range spec.Formula.Groups {
		col, _ := spec.Data.Column(gt.Group)
		coefs := make([]string, 0, len(gt.Coefs)+1)
		if gt.Intercept {
			coefs = append(coefs, "Intercept")
		}
		coefs = append(coefs, gt.Coefs...)
		metas = append(metas, GroupMeta{
			Index:  i + 1,
			Group:  gt.Group,
			Levels: col.Levels,
			Coefs:  coefs,
		})
	}
	return metas
}

// excludedParams lists the raw group-level parameters that never leave the
// pipeline: standardized offsets and Cholesky factors are implementation
// detail of the non-centered parameterization, not inferential output.
func excludedParams(groups []GroupMeta) []string {
	var excluded []string
	for _, g := range groups {
		excluded = append(excluded, fmt.Sprintf("z_%d", g.Index))
		if len(g.Coefs) > 1 {
			excluded = append(excluded, fmt.Sprintf("L_%d", g.Index))
		}
	}
	return excluded
}

// RenameMap maps the flattened parameter names the engine emits to the
// user-facing names carried by the final fit, e.g. "b.1" -> "b_x" and
// "r_1.2.1" -> "r_g[second,Intercept]".
func (a *Artifacts) RenameMap() map[string]string {
	m := make(map[string]string)
	m["Intercept"] = "b_Intercept"
	for k, coef := range a.Fixed {
		m[fmt.Sprintf("b.%d", k+1)] = "b_" + coef
	}
	for _, g := range a.Groups {
		for mi, coef := range g.Coefs {
			m[fmt.Sprintf("sd_%d.%d", g.Index, mi+1)] = fmt.Sprintf("sd_%s__%s", g.Group, coef)
			for j, level := range g.Levels {
				m[fmt.Sprintf("r_%d.%d.%d", g.Index, j+1, mi+1)] = fmt.Sprintf("r_%s[%s,%s]", g.Group, level, coef)
			}
		}
	}
	return m
}
