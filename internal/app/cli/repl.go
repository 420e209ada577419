package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
)

// exitWords は対話ループを終了する入力
var exitWords = []string{"exit", "quit", "bye"}

var (
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorLabelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	hintStyle           = lipgloss.NewStyle().Faint(true)
)

// LineReader は1行ずつ入力を受け付ける。入力の終わりは io.EOF で表す
type LineReader interface {
	ReadLine() (string, error)
}

// Responder はユーザーのメッセージに応答する
type Responder interface {
	Chat(ctx context.Context, message string) (string, error)
}

// promptReader は promptui による LineReader 実装
type promptReader struct {
	label string
}

// NewPromptReader はユーザー名をラベルにした入力プロンプトを作成する
func NewPromptReader(userID string) LineReader {
	return &promptReader{label: userID}
}

func (p *promptReader) ReadLine() (string, error) {
	prompt := promptui.Prompt{
		Label: p.label,
	}
	line, err := prompt.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return "", io.EOF
	}
	return line, err
}

// REPL はアシスタントとの対話ループ
type REPL struct {
	responder Responder
	reader    LineReader
	out       io.Writer
	renderer  Renderer
	logger    *slog.Logger
}

// NewREPL は新しい REPL を作成する
func NewREPL(responder Responder, reader LineReader, out io.Writer, renderer Renderer, logger *slog.Logger) *REPL {
	if renderer == nil {
		renderer = plainRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		responder: responder,
		reader:    reader,
		out:       out,
		renderer:  renderer,
		logger:    logger,
	}
}

// Run は終了語・EOF・割り込みまで入力を読み、応答を表示し続ける
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, hintStyle.Render(fmt.Sprintf("Type %s to leave.", strings.Join(exitWords, ", "))))

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.reader.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("入力の読み込みに失敗: %w", err)
		}

		message := strings.TrimSpace(line)
		if message == "" {
			continue
		}
		if isExitWord(message) {
			return nil
		}

		response, err := r.responder.Chat(ctx, message)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.ErrorContext(ctx, "chat failed", "error", err)
			fmt.Fprintf(r.out, "%s %v\n", errorLabelStyle.Render("Error:"), err)
			continue
		}

		if err := r.print(response); err != nil {
			return err
		}
	}
}

func (r *REPL) print(response string) error {
	rendered, err := r.renderer.Render(response)
	if err != nil {
		r.logger.Warn("markdown rendering failed", "error", err)
		rendered = response
	}
	_, err = fmt.Fprintf(r.out, "%s\n%s\n", assistantLabelStyle.Render("Assistant"), strings.TrimRight(rendered, "\n"))
	return err
}

func isExitWord(message string) bool {
	for _, w := range exitWords {
		if strings.EqualFold(message, w) {
			return true
		}
	}
	return false
}
