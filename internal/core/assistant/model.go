package assistant

import "time"

// Role はメッセージの発言者
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message は会話中の1メッセージを表す
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToolCall は LLM が実行したツール呼び出しの記録
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
}

// Memory はセッションの会話履歴
type Memory struct {
	ChatHistory []Message `json:"chat_history"`
}

// Run は永続化されるアシスタントのセッション（run）を表す
type Run struct {
	RunID         string
	Name          string
	RunName       string
	UserID        string
	LLM           map[string]any
	Memory        Memory
	AssistantData map[string]any
	RunData       map[string]any
	UserData      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Turns はユーザー発言の数（会話の往復数）を返す
func (r *Run) Turns() int {
	n := 0
	for _, m := range r.Memory.ChatHistory {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
