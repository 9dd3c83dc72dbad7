package fitcache

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitgrid/internal/compiler"
	"fitgrid/internal/ctxlog"
	"fitgrid/internal/modelspec"
	"fitgrid/internal/posterior"
	"fitgrid/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "fits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testFit() *posterior.FitResult {
	return &posterior.FitResult{
		Draws: &posterior.Draws{
			Params: []string{"b_x", "sigma"},
			Chains: 2,
			Values: [][][]float64{{{0.4, 1.1}}, {{0.5, 1.2}}},
		},
		Model: &compiler.CompiledModel{Path: "/cache/model", Checksum: "cafe01"},
		Spec:  &modelspec.ModelSpec{},
		File:  "fit-key",
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	store := openTestStore(t)
	ctx := context.Background()

	// --- Act ---
	require.NoError(t, store.Store(ctx, "fit-key", testFit()))
	loaded, err := store.Load(ctx, "fit-key")

	// --- Assert ---
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"b_x", "sigma"}, loaded.Draws.Params)
	assert.Equal(t, "cafe01", loaded.Model.Checksum)
}

func TestStore_MissingKeyIsNilNil(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	loaded, err := store.Load(context.Background(), "never-stored")

	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStore_NeverOverwrites(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "fit-key", testFit()))

	err := store.Store(ctx, "fit-key", testFit())

	require.ErrorIs(t, err, ErrExists)
}

func TestStore_DeleteAllowsRepopulation(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, "fit-key", testFit()))

	require.NoError(t, store.Delete(ctx, "fit-key"))

	assert.NoError(t, store.Store(ctx, "fit-key", testFit()))
}

func TestStore_CorruptEntryIsMissAndPurged(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	store := openTestStore(t)
	buf := &testutil.SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	// Plant a payload that is not a decodable fit.
	insertRaw(t, store, "broken", []byte("{negative serialization space}"))

	// --- Act ---
	loaded, err := store.Load(ctx, "broken")

	// --- Assert ---
	require.NoError(t, err, "a corrupt entry is a miss, not a failure")
	assert.Nil(t, loaded)
	assert.Contains(t, buf.String(), "unreadable")

	// The purge frees the key for a fresh Store.
	require.NoError(t, store.Store(ctx, "broken", testFit()))
	repopulated, err := store.Load(ctx, "broken")
	require.NoError(t, err)
	require.NotNil(t, repopulated)
}

func insertRaw(t *testing.T, store *Store, key string, payload []byte) {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+store.Path())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO fits(key, created_at, payload) VALUES (?,?,?)`,
		key, time.Now().UTC().Format(time.RFC3339), payload)
	require.NoError(t, err)
}
