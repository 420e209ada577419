package knowledge

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/jinford/pdf-assistant/internal/core/embedding"
)

// Document はナレッジベースに格納する文書（ページまたはチャンク）を表す
type Document struct {
	ID        string           // 文書ID（例: advanced-chemistryprize2024_3_1）
	Name      string           // 文書名（URL末尾のファイル名から拡張子を除いたもの）
	Content   string           // 本文
	Meta      map[string]any   // ページ番号・チャンク番号などのメタデータ
	Embedding []float32        // 埋め込みベクトル（未生成の場合は nil）
	Usage     *embedding.Usage // 埋め込み生成の利用情報
}

// SearchResult はベクトル検索の結果を表す
type SearchResult struct {
	Document
	Score float64 // コサイン類似度（1 - コサイン距離）
}

// LoadStats はナレッジベース読み込みの集計結果
type LoadStats struct {
	Sources  int // 読み込んだURL数
	Pages    int // 抽出したページ数
	Chunks   int // 生成したチャンク数
	Skipped  int // 既に格納済みでスキップしたチャンク数
	Inserted int // 新たに格納したチャンク数
}

// CleanContent は格納前の本文から NUL 文字を置換する（PostgreSQL の text 型は NUL を扱えない）
func CleanContent(content string) string {
	return strings.ReplaceAll(content, "\x00", "\uFFFD")
}

// ContentHash は本文のハッシュを返す。重複判定と行IDに使用する
func ContentHash(content string) string {
	sum := md5.Sum([]byte(CleanContent(content)))
	return hex.EncodeToString(sum[:])
}

// ContentHash はこの文書の本文ハッシュを返す
func (d *Document) ContentHash() string {
	return ContentHash(d.Content)
}
