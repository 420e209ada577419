package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Options はアシスタントの動作設定
type Options struct {
	RunID           mo.Option[string] // 再開する run ID（None の場合は新規作成）
	UserID          string
	ShowToolCalls   bool // 応答の先頭にツール呼び出しを表示する
	ReadChatHistory bool // 会話履歴参照ツールを公開する
	Markdown        bool // Markdown での回答を指示する
	HistoryTurns    int  // LLM に渡す直近の会話往復数
}

// DefaultOptions はデフォルトのアシスタント設定を返す
func DefaultOptions() Options {
	return Options{
		RunID:           mo.None[string](),
		UserID:          "default_user",
		ShowToolCalls:   true,
		ReadChatHistory: true,
		Markdown:        true,
		HistoryTurns:    3,
	}
}

// Assistant はナレッジベース検索ツールを持つ会話アシスタント
type Assistant struct {
	opts      Options
	llm       LLM
	knowledge KnowledgeSearcher
	storage   Storage
	logger    *slog.Logger
	now       func() time.Time

	run *Run
}

type AssistantOption func(*Assistant)

// WithAssistantLogger は Assistant にロガーを設定する
func WithAssistantLogger(logger *slog.Logger) AssistantOption {
	return func(a *Assistant) {
		a.logger = logger
	}
}

// WithClock は時刻の取得方法を差し替える
func WithClock(now func() time.Time) AssistantOption {
	return func(a *Assistant) {
		a.now = now
	}
}

// New は新しい Assistant を作成する
func New(llm LLM, knowledge KnowledgeSearcher, storage Storage, opts Options, options ...AssistantOption) *Assistant {
	a := &Assistant{
		opts:      opts,
		llm:       llm,
		knowledge: knowledge,
		storage:   storage,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// RunID は現在の run ID を返す（Start 前は空文字）
func (a *Assistant) RunID() string {
	if a.run == nil {
		return ""
	}
	return a.run.RunID
}

// CurrentRun は現在の run を返す
func (a *Assistant) CurrentRun() *Run {
	return a.run
}

// Start は run を読み込むか新規作成し、保存する
func (a *Assistant) Start(ctx context.Context) (string, error) {
	if a.run != nil {
		return a.run.RunID, nil
	}

	runID, resume := a.opts.RunID.Get()
	if resume {
		stored, err := a.storage.Read(ctx, runID)
		if err != nil {
			return "", fmt.Errorf("failed to read run %s: %w", runID, err)
		}
		if run, ok := stored.Get(); ok {
			a.run = run
			a.logger.InfoContext(ctx, "loaded run from storage",
				"runID", run.RunID,
				"turns", run.Turns(),
			)
			return run.RunID, nil
		}
	} else {
		runID = uuid.NewString()
	}

	now := a.now()
	a.run = &Run{
		RunID:  runID,
		UserID: a.opts.UserID,
		LLM: map[string]any{
			"model": a.llm.ModelName(),
		},
		AssistantData: map[string]any{
			"show_tool_calls":   a.opts.ShowToolCalls,
			"read_chat_history": a.opts.ReadChatHistory,
			"markdown":          a.opts.Markdown,
		},
		RunData:   map[string]any{},
		UserData:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.storage.Upsert(ctx, a.run); err != nil {
		return "", fmt.Errorf("failed to save run %s: %w", runID, err)
	}
	a.logger.InfoContext(ctx, "created new run", "runID", runID, "userID", a.opts.UserID)

	return runID, nil
}

// Tools はアシスタントが LLM に公開するツールを返す
func (a *Assistant) Tools() []Tool {
	tools := []Tool{newSearchKnowledgeTool(a.knowledge)}
	if a.opts.ReadChatHistory {
		tools = append(tools, newChatHistoryTool(func() []Message {
			if a.run == nil {
				return nil
			}
			return a.run.Memory.ChatHistory
		}))
	}
	return tools
}

// Chat はユーザーのメッセージに応答し、会話履歴を保存する
func (a *Assistant) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("message is required")
	}
	if _, err := a.Start(ctx); err != nil {
		return "", err
	}

	userMessage := Message{Role: RoleUser, Content: message, CreatedAt: a.now()}

	messages := []Message{{Role: RoleSystem, Content: BuildSystemPrompt(a.opts)}}
	messages = append(messages, lastConversation(a.run.Memory.ChatHistory, a.opts.HistoryTurns)...)
	messages = append(messages, userMessage)

	a.logger.DebugContext(ctx, "sending messages to LLM", "runID", a.run.RunID, "messages", len(messages))
	resp, err := a.llm.Respond(ctx, messages, a.Tools())
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	for _, call := range resp.ToolCalls {
		a.logger.InfoContext(ctx, "tool call", "tool", call.Name, "arguments", call.Arguments)
	}

	prevHistory, prevUpdatedAt := a.run.Memory.ChatHistory, a.run.UpdatedAt
	a.run.Memory.ChatHistory = append(slices.Clip(prevHistory),
		userMessage,
		Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls, CreatedAt: a.now()},
	)
	a.run.UpdatedAt = a.now()

	// 保存できなかった往復は履歴に残さない
	if err := a.storage.Upsert(ctx, a.run); err != nil {
		a.run.Memory.ChatHistory = prevHistory
		a.run.UpdatedAt = prevUpdatedAt
		return "", fmt.Errorf("failed to save run %s: %w", a.run.RunID, err)
	}

	return a.formatResponse(resp), nil
}

func (a *Assistant) formatResponse(resp Response) string {
	if !a.opts.ShowToolCalls || len(resp.ToolCalls) == 0 {
		return resp.Content
	}

	var sb strings.Builder
	for _, call := range resp.ToolCalls {
		sb.WriteString(" - Running: ")
		sb.WriteString(FormatToolCall(call))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(resp.Content)
	return sb.String()
}
