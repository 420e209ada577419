package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-assistant/internal/core/knowledge"
	"github.com/jinford/pdf-assistant/internal/platform/config"
)

const unreachableDB = "postgresql+psycopg://ai:ai@127.0.0.1:1/ai?connect_timeout=1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr), "expected cli.ExitCoder, got %T", err)
	assert.Equal(t, code, exitErr.ExitCode())
}

func TestSetupDatabase_ConnectionFailureExitsWithOne(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.URL = unreachableDB

	err := setupDatabase(context.Background(), cfg, discardLogger())
	requireExitCode(t, err, 1)
	assert.Contains(t, err.Error(), "Database setup failed")
}

func TestNewAppContext_UnreachableDatabaseExitsWithOne(t *testing.T) {
	t.Setenv("DB_URL", unreachableDB)
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "test.log"))
	t.Setenv("LOG_LEVEL", "error")

	_, err := NewAppContext(context.Background(), filepath.Join(t.TempDir(), "missing.env"))
	requireExitCode(t, err, 1)
}

func TestNewAppContext_InvalidConfigIsNotExitCoded(t *testing.T) {
	t.Setenv("TABLE_NAME", "bad name;")

	_, err := NewAppContext(context.Background(), "")
	require.Error(t, err)
	var exitErr cli.ExitCoder
	assert.False(t, errors.As(err, &exitErr))
}

type stubLoader struct {
	stats    *knowledge.LoadStats
	err      error
	recreate bool
}

func (s *stubLoader) Load(ctx context.Context, recreate bool) (*knowledge.LoadStats, error) {
	s.recreate = recreate
	return s.stats, s.err
}

func TestLoadKnowledgeBase(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		loader := &stubLoader{stats: &knowledge.LoadStats{Sources: 1, Inserted: 4}}
		stats, err := loadKnowledgeBase(context.Background(), loader, true, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Inserted)
		assert.True(t, loader.recreate)
	})

	t.Run("failure exits with one", func(t *testing.T) {
		loader := &stubLoader{err: errors.New("download failed")}
		_, err := loadKnowledgeBase(context.Background(), loader, false, discardLogger())
		requireExitCode(t, err, 1)
		assert.Contains(t, err.Error(), "download failed")
	})
}
