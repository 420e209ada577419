package knowledge

import "context"

// Reader は URL から文書を読み込む
type Reader interface {
	Read(ctx context.Context, url string) ([]Document, error)
}

// Embedder はテキストを埋め込みベクトルに変換する
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// VectorStore はベクトルコレクションの永続化を担う
type VectorStore interface {
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context) error
	Drop(ctx context.Context) error
	DocExists(ctx context.Context, contentHash string) (bool, error)
	Insert(ctx context.Context, docs []Document) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]*SearchResult, error)
	Count(ctx context.Context) (int, error)
}
