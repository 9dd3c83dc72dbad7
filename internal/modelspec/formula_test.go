package modelspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormula_FixedAndGroupTerms(t *testing.T) {
	t.Parallel()

	// --- Act ---
	f, err := ParseFormula("y ~ x1 + x2 + (1 + x1 | subject)")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "y", f.Response)
	assert.True(t, f.Intercept)
	assert.Equal(t, []string{"x1", "x2"}, f.Fixed)
	require.Len(t, f.Groups, 1)
	assert.True(t, f.Groups[0].Intercept)
	assert.Equal(t, []string{"x1"}, f.Groups[0].Coefs)
	assert.Equal(t, "subject", f.Groups[0].Group)
}

func TestParseFormula_InterceptSuppression(t *testing.T) {
	t.Parallel()

	f, err := ParseFormula("y ~ 0 + x")
	require.NoError(t, err)
	assert.False(t, f.Intercept)
	assert.Equal(t, []string{"x"}, f.Fixed)

	g, err := ParseFormula("y ~ (0 + x | g)")
	require.NoError(t, err)
	require.Len(t, g.Groups, 1)
	assert.False(t, g.Groups[0].Intercept)
}

func TestParseFormula_Vars(t *testing.T) {
	t.Parallel()

	f, err := ParseFormula("y ~ x1 + (1 + x1 | g)")
	require.NoError(t, err)

	// Deduplicated in first-reference order, grouping factor included.
	assert.Equal(t, []string{"y", "x1", "g"}, f.Vars())
}

func TestParseFormula_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		formula string
	}{
		{name: "missing tilde", formula: "y + x"},
		{name: "two tildes", formula: "y ~ x ~ z"},
		{name: "empty rhs", formula: "y ~ "},
		{name: "interaction term", formula: "y ~ x1:x2"},
		{name: "star interaction", formula: "y ~ x1*x2"},
		{name: "unbalanced parens", formula: "y ~ (1 | g"},
		{name: "group term without pipe", formula: "y ~ (x1 + x2)"},
		{name: "group term with no effects", formula: "y ~ (0 | g)"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseFormula(tc.formula)

			require.Error(t, err)
			var specErr *SpecError
			require.ErrorAs(t, err, &specErr)
			assert.Equal(t, "formula", specErr.Field)
		})
	}
}

func TestParseAutocor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		raw     string
		want    Autocor
		wantErr bool
	}{
		{name: "empty means none", raw: "", want: Autocor{}},
		{name: "ar order", raw: "ar(2)", want: Autocor{P: 2}},
		{name: "ma order", raw: "ma(1)", want: Autocor{Q: 1}},
		{name: "arma orders", raw: "arma(1,1)", want: Autocor{P: 1, Q: 1}},
		{name: "negative order", raw: "ar(-1)", wantErr: true},
		{name: "unknown structure", raw: "cosy(1)", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAutocor(tc.raw)

			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalFamily(t *testing.T) {
	t.Parallel()

	t.Run("default link", func(t *testing.T) {
		t.Parallel()

		fam, err := CanonicalFamily("poisson", "")

		require.NoError(t, err)
		assert.Equal(t, "poisson", fam.Name)
		assert.Equal(t, "log", fam.Link)
		assert.True(t, fam.Discrete())
		assert.False(t, fam.HasSigma())
	})

	t.Run("explicit non-default link", func(t *testing.T) {
		t.Parallel()

		fam, err := CanonicalFamily("gaussian", "log")

		require.NoError(t, err)
		assert.Equal(t, "log", fam.Link)
		assert.True(t, fam.HasSigma())
	})

	t.Run("rejects unsupported link", func(t *testing.T) {
		t.Parallel()

		_, err := CanonicalFamily("bernoulli", "identity")

		require.Error(t, err)
	})

	t.Run("rejects unknown family", func(t *testing.T) {
		t.Parallel()

		_, err := CanonicalFamily("tweedie", "")

		require.Error(t, err)
	})
}
