package assistant

import "context"

// Tool は LLM に公開する関数ツール
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	Execute     func(ctx context.Context, arguments string) (string, error)
}

// Response は LLM の応答
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	TokensUsed int
}

// LLM は会話を生成する外部モデル
type LLM interface {
	// Respond はメッセージ列に対する応答を返す。ツール呼び出しは実装側で解決する
	Respond(ctx context.Context, messages []Message, tools []Tool) (Response, error)
	ModelName() string
}
