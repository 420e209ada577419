package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o"

	// DefaultTimeout は1回の Respond 全体のタイムアウト
	DefaultTimeout = 120 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second

	// MaxToolRounds はツール呼び出しを解決する最大往復数
	MaxToolRounds = 5
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Client は OpenAI Chat Completions API を使用した対話 LLM
type Client struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	baseBackoff time.Duration
	logger      *slog.Logger
}

type ClientOption func(*Client)

// WithClientLogger は Client にロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout は Respond のタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient は新しい Client を作成する。baseURL が空の場合は OpenAI のエンドポイントを使う
func NewClient(apiKey, baseURL, model string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}

	// 429 のリトライはこちらで制御するため SDK 側のリトライは無効にする
	requestOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(baseURL))
	}

	c := &Client{
		client:      openai.NewClient(requestOpts...),
		model:       model,
		timeout:     DefaultTimeout,
		baseBackoff: BaseBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Respond はメッセージ列に応答する。モデルが要求したツールはその場で実行し、結果を返して続きを生成させる
func (c *Client) Respond(ctx context.Context, messages []assistant.Message, tools []assistant.Tool) (assistant.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toMessageParams(messages),
	}

	toolsByName := make(map[string]assistant.Tool, len(tools))
	toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		toolsByName[tool.Name] = tool
		toolParams = append(toolParams, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  openai.FunctionParameters(tool.Parameters),
		}))
	}

	var resp assistant.Response
	for round := 0; ; round++ {
		// 上限に達したらツールを外して最終回答を強制する
		if round < MaxToolRounds && len(toolParams) > 0 {
			params.Tools = toolParams
		} else {
			params.Tools = nil
		}

		completion, err := c.completeWithRetry(ctx, params)
		if err != nil {
			return assistant.Response{}, err
		}
		resp.Model = completion.Model
		resp.TokensUsed += int(completion.Usage.TotalTokens)

		message := completion.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			resp.Content = message.Content
			return resp, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		for _, toolCall := range message.ToolCalls {
			call := assistant.ToolCall{
				Name:      toolCall.Function.Name,
				Arguments: toolCall.Function.Arguments,
			}
			call.Result = c.executeTool(ctx, toolsByName, call)
			resp.ToolCalls = append(resp.ToolCalls, call)
			params.Messages = append(params.Messages, openai.ToolMessage(call.Result, toolCall.ID))
		}
	}
}

// executeTool はツールを実行する。失敗はモデルに結果として返す
func (c *Client) executeTool(ctx context.Context, tools map[string]assistant.Tool, call assistant.ToolCall) string {
	tool, ok := tools[call.Name]
	if !ok {
		c.logger.WarnContext(ctx, "unknown tool requested", "tool", call.Name)
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}

	c.logger.DebugContext(ctx, "running tool", "tool", call.Name, "arguments", call.Arguments)
	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		c.logger.WarnContext(ctx, "tool execution failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

func (c *Client) completeWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				c.logger.WarnContext(ctx, "rate limited, retrying", "attempt", attempt+1)
				continue
			}

			return nil, fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("no completion choices returned")
		}

		return completion, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// toMessageParams は会話履歴を API のメッセージに変換する。過去のツール結果は本文に含まれるため送らない
func toMessageParams(messages []assistant.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case assistant.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case assistant.RoleUser:
			params = append(params, openai.UserMessage(m.Content))
		case assistant.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		}
	}
	return params
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ assistant.LLM = (*Client)(nil)
