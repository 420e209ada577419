package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jinford/pdf-assistant/internal/core/knowledge"
)

const (
	searchKnowledgeToolName = "search_knowledge_base"
	chatHistoryToolName     = "get_chat_history"

	defaultHistoryChats = 3
)

// KnowledgeSearcher はナレッジベース検索のインターフェース
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*knowledge.SearchResult, error)
}

type searchedDocument struct {
	Name    string         `json:"name"`
	Meta    map[string]any `json:"meta_data,omitempty"`
	Content string         `json:"content"`
	Score   float64        `json:"score"`
}

// newSearchKnowledgeTool はナレッジベース検索ツールを作成する
func newSearchKnowledgeTool(searcher KnowledgeSearcher) Tool {
	return Tool{
		Name:        searchKnowledgeToolName,
		Description: "Use this function to search the knowledge base for information about a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The query to search for.",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments for %s: %w", searchKnowledgeToolName, err)
			}
			if strings.TrimSpace(args.Query) == "" {
				return "", fmt.Errorf("query is required")
			}

			results, err := searcher.Search(ctx, args.Query, 0)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "No documents found", nil
			}

			docs := make([]searchedDocument, 0, len(results))
			for _, r := range results {
				docs = append(docs, searchedDocument{
					Name:    r.Name,
					Meta:    r.Meta,
					Content: r.Content,
					Score:   r.Score,
				})
			}
			out, err := json.Marshal(docs)
			if err != nil {
				return "", fmt.Errorf("failed to marshal search results: %w", err)
			}
			return string(out), nil
		},
	}
}

type historyEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// newChatHistoryTool は会話履歴の参照ツールを作成する
func newChatHistoryTool(history func() []Message) Tool {
	return Tool{
		Name:        chatHistoryToolName,
		Description: "Use this function to get the chat history between the user and assistant.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"num_chats": map[string]any{
					"type":        "integer",
					"description": "The number of chats to return. Each chat contains 2 messages. One from the user and one from the assistant. Default: 3",
				},
			},
		},
		Execute: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				NumChats int `json:"num_chats"`
			}
			if strings.TrimSpace(arguments) != "" {
				if err := json.Unmarshal([]byte(arguments), &args); err != nil {
					return "", fmt.Errorf("invalid arguments for %s: %w", chatHistoryToolName, err)
				}
			}
			if args.NumChats <= 0 {
				args.NumChats = defaultHistoryChats
			}

			recent := lastConversation(history(), args.NumChats)
			entries := make([]historyEntry, 0, len(recent))
			for _, m := range recent {
				entries = append(entries, historyEntry{Role: m.Role, Content: m.Content})
			}
			out, err := json.Marshal(entries)
			if err != nil {
				return "", fmt.Errorf("failed to marshal chat history: %w", err)
			}
			return string(out), nil
		},
	}
}

// lastConversation はユーザーとアシスタントのメッセージから直近 turns 往復分を返す
func lastConversation(messages []Message, turns int) []Message {
	if turns <= 0 {
		return nil
	}
	var conversation []Message
	for _, m := range messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			conversation = append(conversation, m)
		}
	}
	if limit := turns * 2; len(conversation) > limit {
		conversation = conversation[len(conversation)-limit:]
	}
	return conversation
}

// FormatToolCall はツール呼び出しを "name(key=value, ...)" 形式で表示用に整形する
func FormatToolCall(call ToolCall) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || len(args) == 0 {
		return call.Name + "()"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("%s(%s)", call.Name, strings.Join(parts, ", "))
}
