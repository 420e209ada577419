package knowledge

import (
	"fmt"
	"maps"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter はテキストのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// tiktokenCounter は tiktoken を利用した TokenCounter 実装
type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter は cl100k_base エンコーダによる TokenCounter を作成します
func NewTiktokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &tiktokenCounter{encoding: enc}, nil
}

func (t *tiktokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Chunker はページ単位の文書をトークン数に基づいて分割します
type Chunker struct {
	counter TokenCounter

	// チャンクサイズ設定
	targetTokens int // 目標トークン数（デフォルト: 500）
	minTokens    int // 最小トークン数（デフォルト: 20）
	overlap      int // オーバーラップトークン数（デフォルト: 50）
}

type ChunkerOption func(*Chunker)

// WithChunkSize はチャンクサイズ設定を上書きする
func WithChunkSize(targetTokens, minTokens, overlap int) ChunkerOption {
	return func(c *Chunker) {
		c.targetTokens = targetTokens
		c.minTokens = minTokens
		c.overlap = overlap
	}
}

// NewChunker は新しい Chunker を作成します
func NewChunker(counter TokenCounter, opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		counter:      counter,
		targetTokens: 500,
		minTokens:    20,
		overlap:      50,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkDocument は文書をチャンクに分割します。
// チャンクの ID は "<元ID>_<連番>" とし、メタデータに chunk と chunk_size を追加します。
func (c *Chunker) ChunkDocument(doc Document) []Document {
	texts := c.chunkText(doc.Content)

	chunks := make([]Document, 0, len(texts))
	for i, text := range texts {
		meta := make(map[string]any, len(doc.Meta)+2)
		maps.Copy(meta, doc.Meta)
		meta["chunk"] = i + 1
		meta["chunk_size"] = c.counter.CountTokens(text)

		id := fmt.Sprintf("%s_%d", doc.Name, i+1)
		if doc.ID != "" {
			id = fmt.Sprintf("%s_%d", doc.ID, i+1)
		}

		chunks = append(chunks, Document{
			ID:      id,
			Name:    doc.Name,
			Content: text,
			Meta:    meta,
		})
	}
	return chunks
}

// chunkText はテキストを行単位で目標トークン数ごとにまとめます
func (c *Chunker) chunkText(content string) []string {
	lines := c.splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	carried := 0 // 直前のチャンクから引き継いだオーバーラップ行数

	for _, line := range lines {
		current = append(current, line)

		// 目標トークン数を超えた場合、チャンクを保存
		if c.counter.CountTokens(strings.Join(current, "\n")) >= c.targetTokens {
			chunks = append(chunks, strings.Join(current, "\n"))

			// オーバーラップ分を次のチャンクの開始に
			overlapLines := c.calculateOverlapLines(current)
			if overlapLines > 0 && overlapLines < len(current) {
				current = append([]string(nil), current[len(current)-overlapLines:]...)
				carried = overlapLines
			} else {
				current = nil
				carried = 0
			}
		}
	}

	// 最後のチャンクを保存（オーバーラップ行のみの場合は不要）
	if len(current) > carried {
		tail := strings.Join(current, "\n")
		switch {
		case len(chunks) == 0:
			chunks = append(chunks, tail)
		case c.counter.CountTokens(tail) < c.minTokens:
			// 最小トークン数未満の末尾は直前のチャンクに統合する
			chunks[len(chunks)-1] = mergeOverlapping(chunks[len(chunks)-1], current)
		default:
			chunks = append(chunks, tail)
		}
	}

	return chunks
}

// splitLines は空行を除いた行に分割し、目標トークン数を超える行は単語単位で分割します
func (c *Chunker) splitLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if c.counter.CountTokens(line) <= c.targetTokens {
			lines = append(lines, line)
			continue
		}
		lines = append(lines, c.splitWords(line)...)
	}
	return lines
}

func (c *Chunker) splitWords(line string) []string {
	var parts []string
	var current []string
	for _, word := range strings.Fields(line) {
		current = append(current, word)
		if c.counter.CountTokens(strings.Join(current, " ")) >= c.targetTokens {
			parts = append(parts, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, " "))
	}
	return parts
}

// calculateOverlapLines はオーバーラップする行数を計算します
func (c *Chunker) calculateOverlapLines(lines []string) int {
	if c.overlap <= 0 {
		return 0
	}
	// 後ろから順にトークン数をカウントし、オーバーラップトークン数に達するまでの行数を返す
	var totalTokens int
	for i := len(lines) - 1; i >= 0; i-- {
		totalTokens += c.counter.CountTokens(lines[i])
		if totalTokens >= c.overlap {
			return len(lines) - i
		}
	}
	return len(lines)
}

// mergeOverlapping は末尾の行のうち、直前のチャンクと重複しない行だけを追記します
func mergeOverlapping(prev string, tail []string) string {
	prevLines := strings.Split(prev, "\n")
	skip := 0
	for n := min(len(tail), len(prevLines)); n > 0; n-- {
		if hasSuffixLines(prevLines, tail[:n]) {
			skip = n
			break
		}
	}
	if skip >= len(tail) {
		return prev
	}
	return prev + "\n" + strings.Join(tail[skip:], "\n")
}

func hasSuffixLines(lines, suffix []string) bool {
	if len(suffix) > len(lines) {
		return false
	}
	offset := len(lines) - len(suffix)
	for i, s := range suffix {
		if lines[offset+i] != s {
			return false
		}
	}
	return true
}
