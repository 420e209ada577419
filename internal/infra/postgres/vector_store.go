package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/pdf-assistant/internal/core/knowledge"
	"github.com/jinford/pdf-assistant/internal/platform/database"
)

// VectorStore は pgvector を利用した knowledge.VectorStore の実装。
// 1コレクションを1テーブル（<schema>.<collection>）として扱う。
type VectorStore struct {
	db         DBTX
	schema     string
	collection string
	dimension  int
}

// NewVectorStore は新しい VectorStore を返す。
func NewVectorStore(db DBTX, collection string, dimension int) *VectorStore {
	return &VectorStore{
		db:         db,
		schema:     DefaultSchema,
		collection: collection,
		dimension:  dimension,
	}
}

var _ knowledge.VectorStore = (*VectorStore)(nil)

func (s *VectorStore) table() string {
	return qualifiedName(s.schema, s.collection)
}

// Collection はコレクション名を返す
func (s *VectorStore) Collection() string {
	return s.collection
}

func (s *VectorStore) Exists(ctx context.Context) (bool, error) {
	return tableExists(ctx, s.db, s.schema, s.collection)
}

func (s *VectorStore) Create(ctx context.Context) error {
	index := pgx.Identifier{s.collection + "_content_hash_idx"}.Sanitize()
	return execAll(ctx, s.db,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{s.schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT,
			meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			content TEXT NOT NULL,
			embedding vector(%d),
			usage JSONB,
			content_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ
		)`, s.table(), s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (content_hash)`, index, s.table()),
	)
}

func (s *VectorStore) Drop(ctx context.Context) error {
	return execAll(ctx, s.db, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table()))
}

func (s *VectorStore) DocExists(ctx context.Context, contentHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE content_hash = $1)`, s.table()),
		contentHash,
	).Scan(&exists)
	if err != nil {
		if isUndefinedTable(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return exists, nil
}

// Insert は文書を1トランザクションで格納する。行IDは本文ハッシュとし、既存の行は変更しない
func (s *VectorStore) Insert(ctx context.Context, docs []knowledge.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, name, meta_data, content, embedding, usage, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`, s.table())

	_, err := database.Transact(ctx, s.db, func(tx pgx.Tx) (struct{}, error) {
		for _, doc := range docs {
			if len(doc.Embedding) != s.dimension {
				return struct{}{}, fmt.Errorf("document %s has embedding dimension %d, expected %d", doc.ID, len(doc.Embedding), s.dimension)
			}

			meta, err := json.Marshal(nonNilMap(doc.Meta))
			if err != nil {
				return struct{}{}, fmt.Errorf("failed to marshal meta_data: %w", err)
			}
			var usage []byte
			if doc.Usage != nil {
				if usage, err = json.Marshal(doc.Usage); err != nil {
					return struct{}{}, fmt.Errorf("failed to marshal usage: %w", err)
				}
			}

			hash := doc.ContentHash()
			if _, err := tx.Exec(ctx, query,
				hash,
				StringToNullableText(doc.Name),
				meta,
				knowledge.CleanContent(doc.Content),
				pgvector.NewVector(doc.Embedding),
				usage,
				hash,
			); err != nil {
				return struct{}{}, fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Search はコサイン距離が近い順に文書を返す
func (s *VectorStore) Search(ctx context.Context, queryVector []float32, limit int) ([]*knowledge.SearchResult, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, name, meta_data, content, 1 - (embedding <=> $1) AS score
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2`, s.table()),
		pgvector.NewVector(queryVector), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var results []*knowledge.SearchResult
	for rows.Next() {
		var (
			result knowledge.SearchResult
			meta   []byte
			name   pgtype.Text
		)
		if err := rows.Scan(&result.ID, &name, &meta, &result.Content, &result.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		result.Name = PgtextToString(name)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &result.Meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal meta_data: %w", err)
			}
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return results, nil
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table())).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(count), nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
