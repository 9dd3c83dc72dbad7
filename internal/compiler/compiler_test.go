package compiler_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitgrid/internal/compiler"
	"fitgrid/internal/testutil"
)

func TestBuild_CompilesAndCaches(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	bin := testutil.WriteFakeCompiler(t)
	cacheDir := t.TempDir()
	opts := compiler.Options{Bin: bin, CacheDir: cacheDir}
	source := "data { int<lower=1> N; }\n"

	// --- Act ---
	first, err := compiler.Build(context.Background(), source, opts)
	require.NoError(t, err)

	// The fake compiler copies its source input, so the cached binary must
	// carry the program text.
	got, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, source, string(got))

	// Make the second build detectable: if it re-invoked the compiler, the
	// tampered binary would be rewritten.
	require.NoError(t, os.WriteFile(first.Path, []byte("tampered"), 0755))

	second, err := compiler.Build(context.Background(), source, opts)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, first.Checksum, second.Checksum)
	reread, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "tampered", string(reread), "cached binary must be reused, not rebuilt")
}

func TestBuild_DifferentSourceDifferentArtifact(t *testing.T) {
	t.Parallel()

	bin := testutil.WriteFakeCompiler(t)
	cacheDir := t.TempDir()
	opts := compiler.Options{Bin: bin, CacheDir: cacheDir}

	a, err := compiler.Build(context.Background(), "program one\n", opts)
	require.NoError(t, err)
	b, err := compiler.Build(context.Background(), "program two\n", opts)
	require.NoError(t, err)

	assert.NotEqual(t, a.Checksum, b.Checksum)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestBuild_CompilerFailureIsFatal(t *testing.T) {
	t.Parallel()

	_, err := compiler.Build(context.Background(), "anything\n", compiler.Options{
		Bin:      "/nonexistent/modelc",
		CacheDir: t.TempDir(),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model compiler")
}

func TestChecksum_Stable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, compiler.Checksum("abc"), compiler.Checksum("abc"))
	assert.NotEqual(t, compiler.Checksum("abc"), compiler.Checksum("abd"))
	assert.Len(t, compiler.Checksum(""), 64)
}
