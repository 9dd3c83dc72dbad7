package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteModelFiles materializes a map of file names to contents into a fresh
// temporary directory and returns its path.
func WriteModelFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	return tmpDir
}

// WriteFakeCompiler writes an executable shell script that imitates a model
// compiler: it copies its source argument to the path after "-o". Tests use
// it to exercise the real compile-and-cache path without a toolchain.
func WriteFakeCompiler(t *testing.T) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake compiler script requires a POSIX shell")
	}
	script := `#!/bin/sh
src=""
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then
    out="$arg"
  fi
  prev="$arg"
done
for arg in "$@"; do
  case "$arg" in *.prog) src="$arg" ;; esac
done
cp "$src" "$out"
chmod +x "$out"
`
	path := filepath.Join(t.TempDir(), "fake-modelc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}
