package hclspec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitgrid/internal/testutil"
)

const inlineModel = `
model "reaction" {
  formula = "y ~ x + (1 | subject)"
  family  = "gaussian"
}

prior {
  class = "b"
  coef  = "x"
  spec  = "normal(0, 2)"
}

data {
  columns {
    y       = [1.1, 2.3, 0.5, 1.9]
    x       = [0, 1, 2, 3]
    subject = ["s1", "s1", "s2", "s2"]
  }
}

run {
  chains   = 2
  iter     = 400
  strategy = "futures"
}
`

func TestLoad_SingleFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := testutil.WriteModelFiles(t, map[string]string{"reaction.hcl": inlineModel})

	// --- Act ---
	input, err := Load(context.Background(), filepath.Join(dir, "reaction.hcl"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "reaction", input.Name)
	assert.Equal(t, "y ~ x + (1 | subject)", input.Raw.Formula)
	assert.Equal(t, "gaussian", input.Raw.Family)
	require.Len(t, input.Raw.Priors, 1)
	assert.Equal(t, "x", input.Raw.Priors[0].Coef)

	require.NotNil(t, input.Raw.Data)
	assert.Equal(t, 4, input.Raw.Data.Rows)
	subject, ok := input.Raw.Data.Column("subject")
	require.True(t, ok)
	assert.Equal(t, []string{"s1", "s2"}, subject.Levels)

	assert.Equal(t, 2, input.Run.Chains)
	assert.Equal(t, 400, input.Run.Iter)
	assert.Equal(t, "futures", input.Run.Strategy)
}

func TestLoad_DirectoryMergesFiles(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteModelFiles(t, map[string]string{
		"model.hcl": `
model "split" {
  formula = "y ~ x"
  family  = "poisson"
}
`,
		"data.hcl": `
data {
  columns {
    y = [0, 1, 2]
    x = [1, 2, 3]
  }
}

prior {
  class = "b"
  spec  = "normal(0, 5)"
}
`,
	})

	input, err := Load(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, "split", input.Name)
	assert.Equal(t, "poisson", input.Raw.Family)
	assert.Len(t, input.Raw.Priors, 1)
	assert.Equal(t, 3, input.Raw.Data.Rows)
}

func TestLoad_CSVDataRelativeToModelFile(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteModelFiles(t, map[string]string{
		"model.hcl": `
model "csv" {
  formula = "y ~ x"
  family  = "gaussian"
}

data {
  file    = "obs.csv"
  factors = ["site"]
}
`,
		"obs.csv": "y,x,site\n1.5,0,12\n2.5,1,14\n",
	})

	input, err := Load(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, 2, input.Raw.Data.Rows)
	site, ok := input.Raw.Data.Column("site")
	require.True(t, ok)
	assert.True(t, site.IsFactor(), "forced factor column must keep its levels")
}

func TestLoad_CovBlocks(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteModelFiles(t, map[string]string{
		"model.hcl": `
model "phylo" {
  formula = "y ~ (1 | g)"
  family  = "gaussian"

  cov "g" {
    matrix = [[1.0, 0.5], [0.5, 1.0]]
  }
}

data {
  columns {
    y = [1, 2, 3, 4]
    g = ["a", "a", "b", "b"]
  }
}
`,
	})

	input, err := Load(context.Background(), dir)

	require.NoError(t, err)
	require.Contains(t, input.Raw.CovRanef, "g")
	assert.Equal(t, [][]float64{{1, 0.5}, {0.5, 1}}, input.Raw.CovRanef["g"])
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		files   map[string]string
		message string
	}{
		{
			name: "no model block",
			files: map[string]string{"main.hcl": `
data {
  columns {
    y = [1]
  }
}
`},
			message: "no model block",
		},
		{
			name: "no data block",
			files: map[string]string{"main.hcl": `
model "m" {
  formula = "y ~ x"
  family  = "gaussian"
}
`},
			message: "no data block",
		},
		{
			name: "two model blocks",
			files: map[string]string{"main.hcl": `
model "a" {
  formula = "y ~ x"
  family  = "gaussian"
}

model "b" {
  formula = "y ~ x"
  family  = "gaussian"
}

data {
  columns {
    y = [1]
  }
}
`},
			message: "multiple model blocks",
		},
		{
			name: "data with both file and columns",
			files: map[string]string{"main.hcl": `
model "m" {
  formula = "y ~ x"
  family  = "gaussian"
}

data {
  file = "obs.csv"

  columns {
    y = [1]
  }
}
`},
			message: "pick one",
		},
		{
			name: "column of unsupported type",
			files: map[string]string{"main.hcl": `
model "m" {
  formula = "y ~ x"
  family  = "gaussian"
}

data {
  columns {
    y = [[1, 2], [3, 4]]
  }
}
`},
			message: "list of numbers or strings",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := testutil.WriteModelFiles(t, tc.files)

			_, err := Load(context.Background(), dir)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}
