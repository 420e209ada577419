package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
	"github.com/jinford/pdf-assistant/internal/core/embedding"
	"github.com/jinford/pdf-assistant/internal/core/knowledge"
	"github.com/jinford/pdf-assistant/internal/infra/openai"
	"github.com/jinford/pdf-assistant/internal/infra/pdf"
	"github.com/jinford/pdf-assistant/internal/infra/postgres"
	"github.com/jinford/pdf-assistant/internal/platform/config"
	"github.com/jinford/pdf-assistant/internal/platform/database"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	Config        *config.Config
	Embedder      *embedding.SentenceEmbedder
	VectorStore   *postgres.VectorStore
	KnowledgeBase *knowledge.KnowledgeBase
	Storage       *postgres.AssistantStorage

	llm      assistant.LLM
	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger       *slog.Logger
	modelLoader  embedding.ModelLoader
	reader       knowledge.Reader
	tokenCounter knowledge.TokenCounter
	llm          assistant.LLM
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerModelLoader は埋め込みモデルの読み込み方法を差し替える
func WithContainerModelLoader(loader embedding.ModelLoader) ContainerOption {
	return func(opts *containerOptions) {
		opts.modelLoader = loader
	}
}

// WithContainerReader は PDF の読み込み方法を差し替える
func WithContainerReader(reader knowledge.Reader) ContainerOption {
	return func(opts *containerOptions) {
		opts.reader = reader
	}
}

// WithContainerTokenCounter はチャンク分割に使うトークンカウンターを差し替える
func WithContainerTokenCounter(counter knowledge.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// WithContainerLLM は対話 LLM を差し替える
func WithContainerLLM(llm assistant.LLM) ContainerOption {
	return func(opts *containerOptions) {
		opts.llm = llm
	}
}

// NewContainer は設定からデータベースに接続してコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, cfg.Database.ConnString())
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する
func NewContainerWithDB(cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	if options.modelLoader == nil {
		options.modelLoader = openai.NewModelLoader(cfg.Embedder.BaseURL, cfg.Embedder.APIKey)
	}
	if options.reader == nil {
		options.reader = pdf.NewURLReader(pdf.WithReaderLogger(logger))
	}
	if options.tokenCounter == nil {
		counter, err := knowledge.NewTiktokenCounter()
		if err != nil {
			return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
		}
		options.tokenCounter = counter
	}

	// Embedder（ローカルモデル、初回利用時に読み込む）
	embedder := embedding.NewSentenceEmbedder(
		cfg.Embedder.Model,
		cfg.Embedder.Dimension,
		options.modelLoader,
		embedding.WithEmbedderLogger(logger),
	)

	// Repository (PostgreSQL)
	var pool postgres.DBTX
	if db != nil {
		pool = db.Pool
	}
	vectorStore := postgres.NewVectorStore(pool, cfg.Knowledge.CollectionName, cfg.Embedder.Dimension)
	storage := postgres.NewAssistantStorage(pool, cfg.Storage.TableName)

	// KnowledgeBase
	knowledgeBase := knowledge.NewKnowledgeBase(
		cfg.Knowledge.URLs,
		options.reader,
		knowledge.NewChunker(options.tokenCounter),
		embedder,
		vectorStore,
		knowledge.WithKnowledgeLogger(logger),
		knowledge.WithNumDocuments(cfg.Knowledge.NumDocuments),
	)

	return &ServiceContainer{
		Config:        cfg,
		Embedder:      embedder,
		VectorStore:   vectorStore,
		KnowledgeBase: knowledgeBase,
		Storage:       storage,
		llm:           options.llm,
		logger:        logger,
		database:      db,
	}, nil
}

// LLM は対話 LLM を返す。API キーが必要になるのはここで初めて
func (c *ServiceContainer) LLM() (assistant.LLM, error) {
	if c.llm != nil {
		return c.llm, nil
	}

	client, err := openai.NewClient(
		c.Config.LLM.APIKey,
		c.Config.LLM.BaseURL,
		c.Config.LLM.Model,
		openai.WithClientLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}
	c.llm = client
	return client, nil
}

// NewAssistant は設定済みの依存関係でアシスタントを生成する
func (c *ServiceContainer) NewAssistant(opts assistant.Options) (*assistant.Assistant, error) {
	llm, err := c.LLM()
	if err != nil {
		return nil, fmt.Errorf("LLM 初期化に失敗しました: %w", err)
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = c.Config.Knowledge.ChatHistoryTurns
	}
	return assistant.New(llm, c.KnowledgeBase, c.Storage, opts, assistant.WithAssistantLogger(c.logger)), nil
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す
func (c *ServiceContainer) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}
