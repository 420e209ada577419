package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultKnowledgeURL は質問応答の対象となる PDF
const DefaultKnowledgeURL = "https://www.nobelprize.org/uploads/2024/10/advanced-chemistryprize2024.pdf"

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// ローカル埋め込みモデル設定
	Embedder EmbedderConfig

	// 対話用LLM設定
	LLM LLMConfig

	// ナレッジベース設定
	Knowledge KnowledgeConfig

	// アシスタントのセッション保存設定
	Storage StorageConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	URL string
}

// EmbedderConfig は OpenAI 互換エンドポイントで提供されるローカル埋め込みモデルの設定
type EmbedderConfig struct {
	Model     string
	Dimension int
	BaseURL   string
	APIKey    string
}

// LLMConfig は対話用 LLM の設定
type LLMConfig struct {
	Model   string
	APIKey  string
	BaseURL string // 空の場合は OpenAI のデフォルト
}

// KnowledgeConfig はナレッジベース設定
type KnowledgeConfig struct {
	CollectionName   string
	URLs             []string
	NumDocuments     int
	ChatHistoryTurns int
}

// StorageConfig はセッション保存テーブルの設定
type StorageConfig struct {
	TableName string
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
	File   string // 空の場合はファイル出力なし
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// DefaultConfig はデフォルト設定を返します
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "postgresql+psycopg://ai:ai@localhost:5532/ai",
		},
		Embedder: EmbedderConfig{
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
			BaseURL:   "http://localhost:8080/v1",
			APIKey:    "local",
		},
		LLM: LLMConfig{
			Model: "gpt-4o",
		},
		Knowledge: KnowledgeConfig{
			CollectionName:   "science_docs",
			URLs:             []string{DefaultKnowledgeURL},
			NumDocuments:     2,
			ChatHistoryTurns: 3,
		},
		Storage: StorageConfig{
			TableName: "science_assistant",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "knowledge_assistant.log",
		},
	}
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	def := DefaultConfig()
	cfg := &Config{
		Database: DatabaseConfig{
			URL: getEnv("DB_URL", def.Database.URL),
		},
		Embedder: EmbedderConfig{
			Model:     getEnv("EMBEDDER_MODEL", def.Embedder.Model),
			Dimension: getEnvAsInt("EMBEDDING_DIM", def.Embedder.Dimension),
			BaseURL:   getEnv("EMBEDDER_BASE_URL", def.Embedder.BaseURL),
			APIKey:    getEnv("EMBEDDER_API_KEY", def.Embedder.APIKey),
		},
		LLM: LLMConfig{
			Model:   getEnv("LLM_MODEL", def.LLM.Model),
			APIKey:  getEnv("OPENAI_API_KEY", def.LLM.APIKey),
			BaseURL: getEnv("OPENAI_BASE_URL", def.LLM.BaseURL),
		},
		Knowledge: KnowledgeConfig{
			CollectionName:   getEnv("COLLECTION_NAME", def.Knowledge.CollectionName),
			URLs:             getEnvAsList("KNOWLEDGE_URLS", def.Knowledge.URLs),
			NumDocuments:     getEnvAsInt("KNOWLEDGE_NUM_DOCUMENTS", def.Knowledge.NumDocuments),
			ChatHistoryTurns: getEnvAsInt("CHAT_HISTORY_TURNS", def.Knowledge.ChatHistoryTurns),
		},
		Storage: StorageConfig{
			TableName: getEnv("TABLE_NAME", def.Storage.TableName),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", def.Log.Level),
			Format: getEnv("LOG_FORMAT", def.Log.Format),
			File:   getEnv("LOG_FILE", def.Log.File),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive: %d", c.Embedder.Dimension)
	}
	if c.Embedder.Model == "" {
		return fmt.Errorf("EMBEDDER_MODEL is required")
	}
	if !identifierPattern.MatchString(c.Knowledge.CollectionName) {
		return fmt.Errorf("invalid COLLECTION_NAME: %q", c.Knowledge.CollectionName)
	}
	if !identifierPattern.MatchString(c.Storage.TableName) {
		return fmt.Errorf("invalid TABLE_NAME: %q", c.Storage.TableName)
	}
	if len(c.Knowledge.URLs) == 0 {
		return fmt.Errorf("KNOWLEDGE_URLS must contain at least one URL")
	}
	return nil
}

// ConnString は pgx が解釈できる接続文字列を返します。
// SQLAlchemy 形式のドライバ指定 (postgresql+psycopg://) はスキームから取り除きます。
func (d DatabaseConfig) ConnString() string {
	scheme, rest, ok := strings.Cut(d.URL, "://")
	if !ok {
		return d.URL
	}
	if base, _, hasDriver := strings.Cut(scheme, "+"); hasDriver {
		scheme = base
	}
	return scheme + "://" + rest
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数をリストとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
