// Package compiler obtains an executable model binary from generated
// program source by invoking the external model compiler. Binaries are
// cached by source checksum, so recompiling an identical model is a no-op.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"fitgrid/internal/ctxlog"
)

// CompiledModel is an opaque handle to an executable model artifact. The
// checksum is derived from the program source, so equal specs resolve to
// equal compiled models.
type CompiledModel struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// Options configures the external compiler invocation. Verbose is set when
// the caller explicitly customized the build; without it, non-essential
// compiler diagnostics are suppressed (errors always surface).
type Options struct {
	Bin      string
	Flags    []string
	CacheDir string
	Verbose  bool
}

const defaultBin = "modelc"

// Build compiles program source into an executable, reusing a previously
// cached binary when one exists for the same source checksum. Compiler
// failure is fatal; its diagnostic output is attached to the error.
func Build(ctx context.Context, source string, opts Options) (*CompiledModel, error) {
	logger := ctxlog.FromContext(ctx)

	bin := opts.Bin
	if bin == "" {
		bin = defaultBin
	}
	flags := opts.Flags
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = defaultCacheDir()
	}

	sum := Checksum(source)
	dir := filepath.Join(cacheDir, "model-"+sum[:12])
	exe := filepath.Join(dir, "model")
	if _, err := os.Stat(exe); err == nil {
		logger.Debug("Reusing cached model binary.", "checksum", sum[:12], "path", exe)
		return &CompiledModel{Path: exe, Checksum: sum}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating compile cache dir: %w", err)
	}
	srcPath := filepath.Join(dir, "model.prog")
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("writing program source: %w", err)
	}

	// Compile into a scratch name and rename, so a cached binary only ever
	// appears complete.
	tmpExe := filepath.Join(dir, "build-"+uuid.NewString())
	args := append(append([]string(nil), flags...), srcPath, "-o", tmpExe)

	logger.Info("Compiling model.", "compiler", bin, "checksum", sum[:12])
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		os.Remove(tmpExe)
		return nil, fmt.Errorf("model compiler %q failed: %w\n%s", bin, err, out)
	}
	if len(out) > 0 {
		if opts.Verbose {
			logger.Info("Compiler diagnostics.", "output", string(out))
		} else {
			logger.Debug("Compiler diagnostics suppressed.", "bytes", len(out))
		}
	}

	if err := os.Rename(tmpExe, exe); err != nil {
		return nil, fmt.Errorf("installing compiled model: %w", err)
	}
	logger.Debug("Model compiled and cached.", "path", exe)
	return &CompiledModel{Path: exe, Checksum: sum}, nil
}

// Checksum returns the hex content identity of program source.
func Checksum(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func defaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "fitgrid")
	}
	return filepath.Join(os.TempDir(), "fitgrid-cache")
}
