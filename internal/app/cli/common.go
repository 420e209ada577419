package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-assistant/internal/core/knowledge"
	"github.com/jinford/pdf-assistant/internal/platform/config"
	"github.com/jinford/pdf-assistant/internal/platform/container"
	"github.com/jinford/pdf-assistant/internal/platform/database"
	"github.com/jinford/pdf-assistant/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Container *container.ServiceContainer
}

// NewAppContext は設定を読み込み、vector 拡張を用意してから DB に接続し AppContext を作成する。
// データベースの準備に失敗した場合は終了コード 1 のエラーを返す
func NewAppContext(ctx context.Context, envFile string, opts ...container.ContainerOption) (*AppContext, error) {
	// 設定の読み込み
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化
	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})

	if err := setupDatabase(ctx, cfg, appLogger); err != nil {
		return nil, err
	}

	// コンテナの初期化
	opts = append([]container.ContainerOption{container.WithContainerLogger(appLogger)}, opts...)
	cont, err := container.NewContainer(ctx, cfg, opts...)
	if err != nil {
		appLogger.ErrorContext(ctx, "Database setup failed", "error", err)
		return nil, cli.Exit(fmt.Sprintf("Database setup failed: %v", err), 1)
	}

	return &AppContext{
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac != nil && ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac != nil && ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// setupDatabase は vector 拡張を作成する。失敗は終了コード 1 として扱う
func setupDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := database.SetupExtension(ctx, cfg.Database.ConnString()); err != nil {
		logger.ErrorContext(ctx, "Database setup failed", "error", err)
		return cli.Exit(fmt.Sprintf("Database setup failed: %v", err), 1)
	}
	return nil
}

// knowledgeLoader はナレッジベースの読み込み
type knowledgeLoader interface {
	Load(ctx context.Context, recreate bool) (*knowledge.LoadStats, error)
}

// loadKnowledgeBase はナレッジベースを読み込む。失敗は終了コード 1 として扱う
func loadKnowledgeBase(ctx context.Context, kb knowledgeLoader, recreate bool, logger *slog.Logger) (*knowledge.LoadStats, error) {
	logger.InfoContext(ctx, "Loading documents into vector database", "recreate", recreate)
	stats, err := kb.Load(ctx, recreate)
	if err != nil {
		logger.ErrorContext(ctx, "Knowledge base creation failed", "error", err)
		return nil, cli.Exit(fmt.Sprintf("Knowledge base creation failed: %v", err), 1)
	}
	return stats, nil
}

// prepareAssistantApp は対話に必要な準備（DB・ナレッジベース・セッション保存先）をすべて行う
func prepareAssistantApp(ctx context.Context, envFile string) (*AppContext, error) {
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return nil, err
	}

	logger := appCtx.Logger()
	logger.InfoContext(ctx, "Creating knowledge base")
	if _, err := loadKnowledgeBase(ctx, appCtx.Container.KnowledgeBase, false, logger); err != nil {
		appCtx.Close()
		return nil, err
	}

	if err := appCtx.Container.Storage.Create(ctx); err != nil {
		appCtx.Close()
		return nil, fmt.Errorf("セッション保存テーブルの作成に失敗: %w", err)
	}

	return appCtx, nil
}
