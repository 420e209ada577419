package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"DB_URL", "EMBEDDER_MODEL", "EMBEDDING_DIM", "EMBEDDER_BASE_URL", "EMBEDDER_API_KEY",
	"LLM_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "COLLECTION_NAME", "KNOWLEDGE_URLS",
	"KNOWLEDGE_NUM_DOCUMENTS", "CHAT_HISTORY_TURNS", "TABLE_NAME", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
}

// clearEnv はテスト中だけ設定関連の環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgresql+psycopg://ai:ai@localhost:5532/ai", cfg.Database.URL)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embedder.Model)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
	assert.Equal(t, "science_docs", cfg.Knowledge.CollectionName)
	assert.Equal(t, "science_assistant", cfg.Storage.TableName)
	assert.Equal(t, []string{DefaultKnowledgeURL}, cfg.Knowledge.URLs)
	assert.Equal(t, 2, cfg.Knowledge.NumDocuments)
	assert.Equal(t, "knowledge_assistant.log", cfg.Log.File)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
}

func TestLoad_FromEnvFile(t *testing.T) {
	clearEnv(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "DB_URL=postgres://u:p@db:5432/x\n" +
		"EMBEDDING_DIM=768\n" +
		"COLLECTION_NAME=papers\n" +
		"KNOWLEDGE_URLS=https://a.example/a.pdf, https://b.example/b.pdf\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	// godotenv は既存の環境変数を上書きしないため、空値を解除しておく
	for _, key := range []string{"DB_URL", "EMBEDDING_DIM", "COLLECTION_NAME", "KNOWLEDGE_URLS"} {
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, key := range []string{"DB_URL", "EMBEDDING_DIM", "COLLECTION_NAME", "KNOWLEDGE_URLS"} {
			_ = os.Unsetenv(key)
		}
	})

	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.URL)
	assert.Equal(t, 768, cfg.Embedder.Dimension)
	assert.Equal(t, "papers", cfg.Knowledge.CollectionName)
	assert.Equal(t, []string{"https://a.example/a.pdf", "https://b.example/b.pdf"}, cfg.Knowledge.URLs)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_DIM", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
}

func TestLoad_RejectsInvalidTableName(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLE_NAME", "drop table; --")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TABLE_NAME")
}

func TestValidate_RejectsNonPositiveDimension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedder.Dimension = 0
	require.Error(t, cfg.Validate())
}

func TestDatabaseConfig_ConnString(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"sqlalchemy driver suffix", "postgresql+psycopg://ai:ai@localhost:5532/ai", "postgresql://ai:ai@localhost:5532/ai"},
		{"plain url", "postgres://ai:ai@localhost:5432/ai", "postgres://ai:ai@localhost:5432/ai"},
		{"keyword form", "host=localhost user=ai", "host=localhost user=ai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DatabaseConfig{URL: tt.url}.ConnString())
		})
	}
}
