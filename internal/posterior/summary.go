package posterior

import (
	"math"
	"sort"
)

// ParamSummary is one row of a posterior summary.
type ParamSummary struct {
	Name string
	Mean float64
	SD   float64
	Q5   float64
	Q95  float64
}

// Summary computes per-parameter posterior summaries over all chains, in
// sorted parameter order.
func (d *Draws) Summary() []ParamSummary {
	out := make([]ParamSummary, 0, len(d.Params))
	for _, name := range sortedParams(d.Params) {
		series, err := d.Series(name)
		if err != nil || len(series) == 0 {
			continue
		}
		out = append(out, ParamSummary{
			Name: name,
			Mean: mean(series),
			SD:   stddev(series),
			Q5:   quantile(series, 0.05),
			Q95:  quantile(series, 0.95),
		})
	}
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// quantile computes the p-quantile with linear interpolation between order
// statistics.
func quantile(xs []float64, p float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
