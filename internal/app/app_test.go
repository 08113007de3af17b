package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/linknotes/internal/config"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/ratelimit"
)

func testConfig(t *testing.T, key string) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: time.Second,
		LogLevel:        "info",
		DatabasePath:    filepath.Join(t.TempDir(), "data", "linknotes.db"),
		DatabaseKey:     key,
		RateLimitConfig: ratelimit.DefaultConfig,
		NoS3:            true,
		AWSRegion:       "auto",
		ExportPrefix:    "exports",
	}
}

func TestOpen_PlaintextDatabaseWithMockS3(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "")

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Notes.Create(ctx, notes.CreateNoteParams{Title: "Alpha", Content: "hello"})
	require.NoError(t, err)
	_, err = a.Notes.Create(ctx, notes.CreateNoteParams{Title: "Beta", Content: "see Alpha"})
	require.NoError(t, err)

	res, err := a.Exporter.Export(ctx)
	require.NoError(t, err)
	require.False(t, res.Sealed)
	require.Equal(t, 2, res.NoteCount)
	require.True(t, strings.HasPrefix(res.Key, "exports/"))

	snap, err := a.Exporter.Load(ctx, res.Key)
	require.NoError(t, err)
	require.Len(t, snap.Notes, 2)
	require.True(t, snap.Notes[0].Backlinks.Has("Beta"))
}

func TestOpen_EncryptedDatabaseSealsExportsAndReopens(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("5a", 32)
	cfg := testConfig(t, key)

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	created, err := a.Notes.Create(ctx, notes.CreateNoteParams{Title: "Secret", Content: "plans"})
	require.NoError(t, err)

	res, err := a.Exporter.Export(ctx)
	require.NoError(t, err)
	require.True(t, res.Sealed)
	require.True(t, strings.HasSuffix(res.Key, ".json.sealed"))
	require.NoError(t, a.Close())

	reopened, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Notes.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "plans", got.Content)

	wrong := *cfg
	wrong.DatabaseKey = strings.Repeat("a5", 32)
	_, err = Open(ctx, &wrong)
	require.Error(t, err)
}

func TestOpen_InvalidKeyFails(t *testing.T) {
	cfg := testConfig(t, "not-hex")
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	a, err := Open(context.Background(), testConfig(t, ""))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NotPanics(t, func() { _ = a.Close() })
}

func TestOpenStore_SkipsExportStorage(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.NoS3 = false // no credentials; OpenStore must not need them

	a, err := OpenStore(cfg)
	require.NoError(t, err)
	defer a.Close()
	require.Nil(t, a.Exporter)
	require.Nil(t, a.Objects)
	require.NoError(t, a.DB.Ping(context.Background()))
}
