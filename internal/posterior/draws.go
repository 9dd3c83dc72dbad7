// Package posterior holds the typed results of inference runs: per-chain
// draw sequences, the merged multi-chain draw collection, and the final
// FitResult assembled at the end of the pipeline.
package posterior

import (
	"fmt"
	"sort"
	"strings"
)

// ChainResult is the output of exactly one chain. It is never mutated after
// the engine produces it.
type ChainResult struct {
	Chain       int                  `json:"chain"`
	Params      []string             `json:"params"`
	Draws       [][]float64          `json:"draws"` // iteration-major, one value per parameter
	Diagnostics map[string][]float64 `json:"diagnostics,omitempty"`
}

// Draws is the merged posterior draw collection across all chains, ordered
// by chain index. Per-chain provenance is retained.
type Draws struct {
	Params []string      `json:"params"`
	Chains int           `json:"chains"`
	Values [][][]float64 `json:"values"` // chain-major, then iteration, then parameter
}

// PerChain returns the number of retained draws in each chain.
func (d *Draws) PerChain() int {
	if len(d.Values) == 0 {
		return 0
	}
	return len(d.Values[0])
}

// Total returns the number of retained draws across all chains.
func (d *Draws) Total() int {
	n := 0
	for _, c := range d.Values {
		n += len(c)
	}
	return n
}

// Series returns every draw of one parameter, chains concatenated in chain
// order.
func (d *Draws) Series(param string) ([]float64, error) {
	idx := -1
	for i, p := range d.Params {
		if p == param {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("posterior: unknown parameter %q", param)
	}
	out := make([]float64, 0, d.Total())
	for _, chain := range d.Values {
		for _, draw := range chain {
			out = append(out, draw[idx])
		}
	}
	return out, nil
}

// Rename rewrites parameter names in place using the supplied mapping.
// Names without a mapping entry are kept as-is.
func (d *Draws) Rename(mapping map[string]string) {
	for i, p := range d.Params {
		if name, ok := mapping[p]; ok {
			d.Params[i] = name
		}
	}
}

// Merge combines per-chain results into one Draws collection with effective
// chain count chains. It fails if any chain index is missing, duplicated or
// out of range, or if the parameter set differs across chains. Parameters
// named in excluded (or flattened elements of them) are dropped.
func Merge(results []ChainResult, chains int, excluded []string) (*Draws, error) {
	if len(results) != chains {
		return nil, fmt.Errorf("merge: got %d chain results, expected %d", len(results), chains)
	}

	byIndex := make([]*ChainResult, chains)
	for i := range results {
		r := &results[i]
		if r.Chain < 1 || r.Chain > chains {
			return nil, fmt.Errorf("merge: chain index %d out of range 1..%d", r.Chain, chains)
		}
		if byIndex[r.Chain-1] != nil {
			return nil, fmt.Errorf("merge: duplicate result for chain %d", r.Chain)
		}
		byIndex[r.Chain-1] = r
	}

	keep := keepIndices(byIndex[0].Params, excluded)
	params := make([]string, len(keep))
	for i, k := range keep {
		params[i] = byIndex[0].Params[k]
	}

	values := make([][][]float64, chains)
	for ci, r := range byIndex {
		if !sameParams(r.Params, byIndex[0].Params) {
			return nil, fmt.Errorf("merge: chain %d has an inconsistent parameter set", r.Chain)
		}
		chain := make([][]float64, len(r.Draws))
		for di, draw := range r.Draws {
			if len(draw) != len(r.Params) {
				return nil, fmt.Errorf("merge: chain %d draw %d has %d values, expected %d", r.Chain, di+1, len(draw), len(r.Params))
			}
			row := make([]float64, len(keep))
			for i, k := range keep {
				row[i] = draw[k]
			}
			chain[di] = row
		}
		values[ci] = chain
	}

	return &Draws{Params: params, Chains: chains, Values: values}, nil
}

// keepIndices returns the parameter positions that survive exclusion. An
// excluded name matches exactly or as a flattening prefix ("z_1" matches
// "z_1.2.3").
func keepIndices(params, excluded []string) []int {
	drop := func(p string) bool {
		for _, e := range excluded {
			if p == e || strings.HasPrefix(p, e+".") {
				return true
			}
		}
		return false
	}
	var keep []int
	for i, p := range params {
		if !drop(p) {
			keep = append(keep, i)
		}
	}
	return keep
}

func sameParams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sortedParams returns a sorted copy of the parameter names. Used by
// summaries so output ordering is stable regardless of engine column order.
func sortedParams(params []string) []string {
	out := append([]string(nil), params...)
	sort.Strings(out)
	return out
}
