package cli

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWrapWidth = 100

// Renderer はアシスタントの応答を表示用に整形する
type Renderer interface {
	Render(text string) (string, error)
}

type plainRenderer struct{}

func (plainRenderer) Render(text string) (string, error) {
	return text, nil
}

type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func (m *markdownRenderer) Render(text string) (string, error) {
	return m.renderer.Render(text)
}

// NewRenderer は出力先が端末で markdown が有効な場合に Markdown を描画する Renderer を返す。
// それ以外はそのままのテキストを返す
func NewRenderer(out *os.File, markdown bool) Renderer {
	if !markdown || out == nil {
		return plainRenderer{}
	}
	fd := int(out.Fd())
	if !term.IsTerminal(fd) {
		return plainRenderer{}
	}

	width := defaultWrapWidth
	if w, _, err := term.GetSize(fd); err == nil && w > 0 && w < width {
		width = w
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plainRenderer{}
	}
	return &markdownRenderer{renderer: r}
}
