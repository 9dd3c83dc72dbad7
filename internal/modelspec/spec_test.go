package modelspec

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTable builds a small mixed table shared across normalization tests.
func testTable(t *testing.T) *Table {
	t.Helper()

	tbl, err := NewTable(
		Column{Name: "y", Values: []float64{1.2, 0.4, 2.2, 1.8}},
		Column{Name: "x", Values: []float64{0, 1, 2, 3}},
		Column{Name: "g", Values: []float64{1, 1, 2, 2}, Levels: []string{"a", "b"}},
		Column{Name: "unused", Values: []float64{9, 9, 9, 9}},
	)
	require.NoError(t, err)
	return tbl
}

func TestNormalize_TrimsAndCoerces(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	raw := RawSpec{
		Formula: "y ~ x + (1 | g)",
		Family:  "gaussian",
		Data:    testTable(t),
	}

	// --- Act ---
	spec, err := Normalize(context.Background(), raw)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 3, len(spec.Data.Columns), "unreferenced columns should be dropped")
	_, ok := spec.Data.Column("unused")
	assert.False(t, ok)

	g, ok := spec.Data.Column("g")
	require.True(t, ok)
	assert.True(t, g.IsFactor(), "grouping columns must be factor coded")
	assert.Equal(t, []string{"a", "b"}, g.Levels)
}

func TestNormalize_CoercesNumericGroupingColumn(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable(
		Column{Name: "y", Values: []float64{1, 2, 3}},
		Column{Name: "site", Values: []float64{10, 20, 10}},
	)
	require.NoError(t, err)

	spec, err := Normalize(context.Background(), RawSpec{
		Formula: "y ~ (1 | site)",
		Family:  "gaussian",
		Data:    tbl,
	})

	require.NoError(t, err)
	site, _ := spec.Data.Column("site")
	assert.Equal(t, []string{"10", "20"}, site.Levels)
	assert.Equal(t, []float64{1, 2, 1}, site.Values)
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()

	base := func(t *testing.T) RawSpec {
		return RawSpec{Formula: "y ~ x + (1 | g)", Family: "gaussian", Data: testTable(t)}
	}

	testCases := []struct {
		name    string
		mutate  func(*testing.T, *RawSpec)
		field   string
		message string
	}{
		{
			name:   "nil data",
			mutate: func(t *testing.T, r *RawSpec) { r.Data = nil },
			field:  "data",
		},
		{
			name: "missing column",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Formula = "y ~ missing"
			},
			field:   "data",
			message: "not found",
		},
		{
			name: "categorical covariate",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Formula = "y ~ g"
			},
			field:   "data",
			message: "categorical",
		},
		{
			name: "non-finite covariate",
			mutate: func(t *testing.T, r *RawSpec) {
				tbl, err := NewTable(
					Column{Name: "y", Values: []float64{1, 2}},
					Column{Name: "x", Values: []float64{0, math.NaN()}},
				)
				require.NoError(t, err)
				r.Formula = "y ~ x"
				r.Data = tbl
			},
			field:   "data",
			message: "non-finite",
		},
		{
			name: "prior on absent coefficient",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Priors = []Prior{{Class: "b", Coef: "z", Spec: "normal(0, 1)"}}
			},
			field: "prior",
		},
		{
			name: "duplicate prior",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Priors = []Prior{
					{Class: "sigma", Spec: "cauchy(0, 2)"},
					{Class: "sigma", Spec: "normal(0, 5)"},
				}
			},
			field:   "prior",
			message: "duplicate",
		},
		{
			name: "sigma prior for discrete family",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Formula = "y ~ x"
				r.Family = "poisson"
				tbl, err := NewTable(
					Column{Name: "y", Values: []float64{0, 1, 2}},
					Column{Name: "x", Values: []float64{0, 1, 2}},
				)
				require.NoError(t, err)
				r.Data = tbl
				r.Priors = []Prior{{Class: "sigma", Spec: "cauchy(0, 2)"}}
			},
			field: "prior",
		},
		{
			name: "ar prior without autocorrelation",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Priors = []Prior{{Class: "ar", Spec: "normal(0, 0.5)"}}
			},
			field: "prior",
		},
		{
			name: "sd prior on unknown group",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Priors = []Prior{{Class: "sd", Group: "h", Spec: "cauchy(0, 1)"}}
			},
			field: "prior",
		},
		{
			name: "non-integer response for poisson",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Family = "poisson"
			},
			field:   "data",
			message: "non-negative integers",
		},
		{
			name: "cov_ranef for non-grouping factor",
			mutate: func(t *testing.T, r *RawSpec) {
				r.CovRanef = map[string][][]float64{"x": {{1}}}
			},
			field: "cov_ranef",
		},
		{
			name: "cov_ranef dimension mismatch",
			mutate: func(t *testing.T, r *RawSpec) {
				r.CovRanef = map[string][][]float64{"g": {{1, 0}}}
			},
			field: "cov_ranef",
		},
		{
			name: "non-increasing knots",
			mutate: func(t *testing.T, r *RawSpec) {
				r.Knots = []float64{0, 1, 1}
			},
			field: "knots",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw := base(t)
			tc.mutate(t, &raw)

			_, err := Normalize(context.Background(), raw)

			require.Error(t, err)
			var specErr *SpecError
			require.ErrorAs(t, err, &specErr)
			assert.Equal(t, tc.field, specErr.Field)
			if tc.message != "" {
				assert.Contains(t, specErr.Error(), tc.message)
			}
		})
	}
}

func TestNormalize_AcceptsValidPriors(t *testing.T) {
	t.Parallel()

	raw := RawSpec{
		Formula: "y ~ x + (1 + x | g)",
		Family:  "student",
		Autocor: "ar(1)",
		Data:    testTable(t),
		Priors: []Prior{
			{Class: "b", Coef: "x", Spec: "normal(0, 2)"},
			{Class: "Intercept", Spec: "student_t(3, 0, 10)"},
			{Class: "sd", Group: "g", Coef: "Intercept", Spec: "cauchy(0, 1)"},
			{Class: "sd", Group: "g", Coef: "x", Spec: "cauchy(0, 1)"},
			{Class: "sigma", Spec: "cauchy(0, 2)"},
			{Class: "nu", Spec: "gamma(2, 0.1)"},
			{Class: "ar", Spec: "normal(0, 0.5)"},
		},
	}

	spec, err := Normalize(context.Background(), raw)

	require.NoError(t, err)
	assert.Len(t, spec.Priors, 7)
	assert.Equal(t, Autocor{P: 1}, spec.Autocor)
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	t.Run("numeric inference and factor coding", func(t *testing.T) {
		t.Parallel()

		csv := "y,x,site\n1.5,0,north\n2.5,1,south\n3.5,2,north\n"

		tbl, err := ReadCSV(strings.NewReader(csv), nil)

		require.NoError(t, err)
		assert.Equal(t, 3, tbl.Rows)
		y, _ := tbl.Column("y")
		assert.False(t, y.IsFactor())
		site, _ := tbl.Column("site")
		require.True(t, site.IsFactor())
		assert.Equal(t, []string{"north", "south"}, site.Levels)
		assert.Equal(t, []float64{1, 2, 1}, site.Values)
	})

	t.Run("forced factor keeps numeric text as levels", func(t *testing.T) {
		t.Parallel()

		csv := "y,id\n1,101\n2,102\n3,101\n"

		tbl, err := ReadCSV(strings.NewReader(csv), []string{"id"})

		require.NoError(t, err)
		id, _ := tbl.Column("id")
		require.True(t, id.IsFactor())
		assert.Equal(t, []string{"101", "102"}, id.Levels)
	})

	t.Run("rejects header-only input", func(t *testing.T) {
		t.Parallel()

		_, err := ReadCSV(strings.NewReader("y,x\n"), nil)

		require.Error(t, err)
	})
}
