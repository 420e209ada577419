package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/pdf-assistant/internal/core/embedding"
)

const (
	// DefaultNumDocuments は検索で返す文書数のデフォルト
	DefaultNumDocuments = 2
	// embedBatchSize は1回の埋め込み生成でまとめるチャンク数
	embedBatchSize = 32
)

// KnowledgeBase は PDF を読み込んでベクトルコレクションに格納し、検索を提供する
type KnowledgeBase struct {
	urls         []string
	reader       Reader
	chunker      *Chunker
	embedder     Embedder
	store        VectorStore
	numDocuments int
	logger       *slog.Logger
}

type KnowledgeBaseOption func(*KnowledgeBase)

// WithKnowledgeLogger は KnowledgeBase にロガーを設定する
func WithKnowledgeLogger(logger *slog.Logger) KnowledgeBaseOption {
	return func(kb *KnowledgeBase) {
		kb.logger = logger
	}
}

// WithNumDocuments は検索で返す文書数を設定する
func WithNumDocuments(n int) KnowledgeBaseOption {
	return func(kb *KnowledgeBase) {
		kb.numDocuments = n
	}
}

// NewKnowledgeBase は新しい KnowledgeBase を作成する
func NewKnowledgeBase(
	urls []string,
	reader Reader,
	chunker *Chunker,
	embedder Embedder,
	store VectorStore,
	opts ...KnowledgeBaseOption,
) *KnowledgeBase {
	kb := &KnowledgeBase{
		urls:         urls,
		reader:       reader,
		chunker:      chunker,
		embedder:     embedder,
		store:        store,
		numDocuments: DefaultNumDocuments,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(kb)
	}
	if kb.logger == nil {
		kb.logger = slog.Default()
	}
	if kb.numDocuments <= 0 {
		kb.numDocuments = DefaultNumDocuments
	}
	return kb
}

// URLs は読み込み対象のURLを返す
func (kb *KnowledgeBase) URLs() []string {
	return kb.urls
}

// Load は全URLの文書を読み込み、未格納のチャンクだけを埋め込んで格納する。
// recreate が true の場合はコレクションを作り直す。
func (kb *KnowledgeBase) Load(ctx context.Context, recreate bool) (*LoadStats, error) {
	if recreate {
		kb.logger.InfoContext(ctx, "Dropping collection")
		if err := kb.store.Drop(ctx); err != nil {
			return nil, fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	exists, err := kb.store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		kb.logger.InfoContext(ctx, "Creating collection")
		if err := kb.store.Create(ctx); err != nil {
			return nil, fmt.Errorf("failed to create collection: %w", err)
		}
	}

	stats := &LoadStats{}
	for _, url := range kb.urls {
		if err := kb.loadURL(ctx, url, stats); err != nil {
			return stats, err
		}
		stats.Sources++
	}

	kb.logger.InfoContext(ctx, "Knowledge base loaded",
		"sources", stats.Sources,
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
		"inserted", stats.Inserted,
	)
	return stats, nil
}

func (kb *KnowledgeBase) loadURL(ctx context.Context, url string, stats *LoadStats) error {
	kb.logger.InfoContext(ctx, "Reading document", "url", url)
	pages, err := kb.reader.Read(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", url, err)
	}
	stats.Pages += len(pages)

	var pending []Document
	seen := make(map[string]struct{})
	for _, page := range pages {
		for _, chunk := range kb.chunker.ChunkDocument(page) {
			stats.Chunks++

			hash := chunk.ContentHash()
			if _, dup := seen[hash]; dup {
				stats.Skipped++
				continue
			}
			seen[hash] = struct{}{}

			exists, err := kb.store.DocExists(ctx, hash)
			if err != nil {
				return fmt.Errorf("failed to check document %s: %w", chunk.ID, err)
			}
			if exists {
				stats.Skipped++
				continue
			}
			pending = append(pending, chunk)
		}
	}

	for start := 0; start < len(pending); start += embedBatchSize {
		end := min(start+embedBatchSize, len(pending))
		batch := pending[start:end]

		if err := kb.embedDocuments(ctx, batch); err != nil {
			return err
		}
		if err := kb.store.Insert(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert documents: %w", err)
		}
		stats.Inserted += len(batch)

		kb.logger.DebugContext(ctx, "Inserted documents", "url", url, "count", len(batch))
	}

	return nil
}

func (kb *KnowledgeBase) embedDocuments(ctx context.Context, docs []Document) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = CleanContent(doc.Content)
	}

	vectors, err := kb.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	for i := range docs {
		docs[i].Embedding = vectors[i]
		docs[i].Usage = &embedding.Usage{Model: kb.embedder.ModelName()}
	}
	return nil
}

// Search はクエリに近い文書を返す。limit が 0 以下の場合はデフォルト件数を使用する
func (kb *KnowledgeBase) Search(ctx context.Context, query string, limit int) ([]*SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = kb.numDocuments
	}

	vector, err := kb.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := kb.store.Search(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	kb.logger.DebugContext(ctx, "knowledge search completed", "query", query, "results", len(results))
	return results, nil
}
