package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDimensionMismatch は埋め込みベクトルの次元数が設定と一致しない場合のエラー
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Model は外部の文埋め込みモデルへのハンドル
type Model interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelLoader はモデルを読み込む関数。初回の Embed 呼び出しまで実行されない
type ModelLoader func(ctx context.Context, modelName string) (Model, error)

// Usage は埋め込み生成の利用情報
type Usage struct {
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
}

// SentenceEmbedder はローカルの文埋め込みモデルを遅延ロードして利用する Embedder
type SentenceEmbedder struct {
	modelName string
	dimension int
	loader    ModelLoader
	logger    *slog.Logger

	mu    sync.Mutex
	model Model
}

type SentenceEmbedderOption func(*SentenceEmbedder)

// WithEmbedderLogger は SentenceEmbedder にロガーを設定する
func WithEmbedderLogger(logger *slog.Logger) SentenceEmbedderOption {
	return func(e *SentenceEmbedder) {
		e.logger = logger
	}
}

// NewSentenceEmbedder は新しい SentenceEmbedder を作成する（モデルはまだ読み込まない）
func NewSentenceEmbedder(modelName string, dimension int, loader ModelLoader, opts ...SentenceEmbedderOption) *SentenceEmbedder {
	e := &SentenceEmbedder{
		modelName: modelName,
		dimension: dimension,
		loader:    loader,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// ModelName はモデル名を返す
func (e *SentenceEmbedder) ModelName() string {
	return e.modelName
}

// Dimension はベクトル次元数を返す
func (e *SentenceEmbedder) Dimension() int {
	return e.dimension
}

// Loaded はモデルが読み込み済みかを返す
func (e *SentenceEmbedder) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model != nil
}

// loadModel はモデルを初回のみ読み込む。失敗した場合は保持せず、次回呼び出しで再試行する
func (e *SentenceEmbedder) loadModel(ctx context.Context) (Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model != nil {
		return e.model, nil
	}

	e.logger.InfoContext(ctx, "Loading embedding model", "model", e.modelName)
	model, err := e.loader(ctx, e.modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model %s: %w", e.modelName, err)
	}
	e.model = model
	return model, nil
}

// Embed は単一テキストの埋め込みベクトルを生成する
func (e *SentenceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, _, err := e.EmbedWithUsage(ctx, text)
	return vector, err
}

// EmbedWithUsage は埋め込みベクトルと利用情報を返す。ローカルモデルのためトークン数は常に 0
func (e *SentenceEmbedder) EmbedWithUsage(ctx context.Context, text string) ([]float32, Usage, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, Usage{}, err
	}
	return vectors[0], Usage{Model: e.modelName, TotalTokens: 0}, nil
}

// BatchEmbed は複数テキストの埋め込みベクトルを生成する
func (e *SentenceEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	vectors, err := e.encode(ctx, texts)
	if err != nil {
		e.logger.ErrorContext(ctx, "Embedding generation failed", "error", err)
		return nil, err
	}
	return vectors, nil
}

func (e *SentenceEmbedder) encode(ctx context.Context, texts []string) ([][]float32, error) {
	model, err := e.loadModel(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := model.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode texts: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("model returned %d vectors for %d texts", len(vectors), len(texts))
	}

	for _, v := range vectors {
		if len(v) != e.dimension {
			e.logger.ErrorContext(ctx, "embedding dimension mismatch",
				"expected", e.dimension,
				"actual", len(v),
			)
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, e.dimension, len(v))
		}
	}

	return vectors, nil
}
