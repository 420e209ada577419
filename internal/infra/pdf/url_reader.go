package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/jinford/pdf-assistant/internal/core/knowledge"
)

const (
	// DefaultTimeout はダウンロードのタイムアウト
	DefaultTimeout = 60 * time.Second

	// maxDocumentSize はダウンロードする PDF の上限サイズ
	maxDocumentSize = 100 << 20
)

// URLReader は URL から PDF をダウンロードし、ページ単位の文書に変換する
type URLReader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

type URLReaderOption func(*URLReader)

// WithHTTPClient は使用する HTTP クライアントを差し替える
func WithHTTPClient(client *http.Client) URLReaderOption {
	return func(r *URLReader) {
		r.httpClient = client
	}
}

// WithReaderLogger は URLReader にロガーを設定する
func WithReaderLogger(logger *slog.Logger) URLReaderOption {
	return func(r *URLReader) {
		r.logger = logger
	}
}

// NewURLReader は新しい URLReader を作成する
func NewURLReader(opts ...URLReaderOption) *URLReader {
	r := &URLReader{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Read は PDF を取得してページごとの文書を返す。本文のないページは含めない
func (r *URLReader) Read(ctx context.Context, rawURL string) ([]knowledge.Document, error) {
	name, err := DocumentName(rawURL)
	if err != nil {
		return nil, err
	}

	data, err := r.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	pages, err := extractPages(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF %s: %w", rawURL, err)
	}

	docs := make([]knowledge.Document, 0, len(pages))
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		page := i + 1
		docs = append(docs, knowledge.Document{
			ID:      fmt.Sprintf("%s_%d", name, page),
			Name:    name,
			Content: text,
			Meta:    map[string]any{"page": page},
		})
	}

	r.logger.InfoContext(ctx, "PDF read",
		"url", rawURL,
		"pages", len(pages),
		"documents", len(docs),
	)

	return docs, nil
}

func (r *URLReader) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}

	r.logger.DebugContext(ctx, "downloading PDF", "url", rawURL)
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download %s: unexpected status %s", rawURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("PDF %s exceeds %d bytes", rawURL, maxDocumentSize)
	}
	return data, nil
}

// extractPages はページごとのプレーンテキストを返す（添字0が1ページ目）
func extractPages(data []byte) (pages []string, err error) {
	// 壊れた PDF でパーサーが panic することがある
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("malformed PDF: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages[i-1] = text
	}
	return pages, nil
}

// DocumentName は URL 末尾のファイル名から .pdf を除いた文書名を返す
func DocumentName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("URL %q has no file name", rawURL)
	}
	return strings.TrimSuffix(base, ".pdf"), nil
}

// インターフェース実装の確認
var _ knowledge.Reader = (*URLReader)(nil)
