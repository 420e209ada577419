package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
)

// chatServer は受け取ったリクエストを記録し、順番に応答を返すテスト用サーバー
type chatServer struct {
	mu       sync.Mutex
	requests []map[string]any
	respond  func(n int, req map[string]any) (int, string)
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()

	status, body := s.respond(n, req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func contentCompletion(content string) string {
	return fmt.Sprintf(`{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}],
"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, content)
}

func toolCallCompletion(id, name, arguments string) string {
	return fmt.Sprintf(`{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o",
"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
"tool_calls":[{"id":%q,"type":"function","function":{"name":%q,"arguments":%q}}]}}],
"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, id, name, arguments)
}

func newTestClient(t *testing.T, srv *chatServer) *Client {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := NewClient("test-key", ts.URL+"/v1/", "gpt-4o")
	require.NoError(t, err)
	client.baseBackoff = time.Millisecond
	return client
}

func echoTool(name string) assistant.Tool {
	return assistant.Tool{
		Name:        name,
		Description: "echo",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Execute: func(ctx context.Context, arguments string) (string, error) {
			return "result of " + arguments, nil
		},
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "", "")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClient_DefaultModel(t *testing.T) {
	client, err := NewClient("key", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.ModelName())
}

func TestRespond_PlainAnswer(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		return http.StatusOK, contentCompletion("David Baker")
	}}
	client := newTestClient(t, srv)

	resp, err := client.Respond(context.Background(), []assistant.Message{
		{Role: assistant.RoleSystem, Content: "system"},
		{Role: assistant.RoleUser, Content: "earlier"},
		{Role: assistant.RoleAssistant, Content: "earlier answer"},
		{Role: assistant.RoleUser, Content: "Who won?"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "David Baker", resp.Content)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, 5, resp.TokensUsed)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	assert.Equal(t, "gpt-4o", req["model"])
	assert.NotContains(t, req, "tools")

	messages := req["messages"].([]any)
	require.Len(t, messages, 4)
	roles := make([]string, 0, len(messages))
	for _, m := range messages {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestRespond_RunsToolCalls(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		if n == 1 {
			return http.StatusOK, toolCallCompletion("call_1", "search_knowledge_base", `{"query":"prize"}`)
		}
		return http.StatusOK, contentCompletion("answer")
	}}
	client := newTestClient(t, srv)

	resp, err := client.Respond(context.Background(),
		[]assistant.Message{{Role: assistant.RoleUser, Content: "q"}},
		[]assistant.Tool{echoTool("search_knowledge_base")},
	)
	require.NoError(t, err)

	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, 10, resp.TokensUsed)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search_knowledge_base", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"query":"prize"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, `result of {"query":"prize"}`, resp.ToolCalls[0].Result)

	require.Len(t, srv.requests, 2)
	tools := srv.requests[0]["tools"].([]any)
	require.Len(t, tools, 1)
	function := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search_knowledge_base", function["name"])

	// 2回目のリクエストには assistant のツール呼び出しとツール結果が続く
	messages := srv.requests[1]["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
	toolMessage := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMessage["role"])
	assert.Equal(t, "call_1", toolMessage["tool_call_id"])
	assert.Equal(t, `result of {"query":"prize"}`, toolMessage["content"])
}

func TestRespond_UnknownToolIsReportedToModel(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		if n == 1 {
			return http.StatusOK, toolCallCompletion("call_1", "missing", `{}`)
		}
		return http.StatusOK, contentCompletion("ok")
	}}
	client := newTestClient(t, srv)

	resp, err := client.Respond(context.Background(),
		[]assistant.Message{{Role: assistant.RoleUser, Content: "q"}},
		[]assistant.Tool{echoTool("search_knowledge_base")},
	)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Contains(t, resp.ToolCalls[0].Result, "unknown tool")
}

func TestRespond_ToolErrorIsReportedToModel(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		if n == 1 {
			return http.StatusOK, toolCallCompletion("call_1", "broken", `{}`)
		}
		return http.StatusOK, contentCompletion("ok")
	}}
	client := newTestClient(t, srv)

	broken := assistant.Tool{
		Name: "broken",
		Execute: func(ctx context.Context, arguments string) (string, error) {
			return "", errors.New("database down")
		},
	}
	resp, err := client.Respond(context.Background(),
		[]assistant.Message{{Role: assistant.RoleUser, Content: "q"}},
		[]assistant.Tool{broken},
	)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "Error: database down", resp.ToolCalls[0].Result)
}

func TestRespond_StopsOfferingToolsAfterMaxRounds(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		if _, ok := req["tools"]; ok {
			return http.StatusOK, toolCallCompletion(fmt.Sprintf("call_%d", n), "search_knowledge_base", `{}`)
		}
		return http.StatusOK, contentCompletion("final")
	}}
	client := newTestClient(t, srv)

	resp, err := client.Respond(context.Background(),
		[]assistant.Message{{Role: assistant.RoleUser, Content: "q"}},
		[]assistant.Tool{echoTool("search_knowledge_base")},
	)
	require.NoError(t, err)

	assert.Equal(t, "final", resp.Content)
	assert.Len(t, resp.ToolCalls, MaxToolRounds)
	assert.Len(t, srv.requests, MaxToolRounds+1)
}

func TestRespond_RetriesOnRateLimit(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`
		}
		return http.StatusOK, contentCompletion("after retry")
	}}
	client := newTestClient(t, srv)

	resp, err := client.Respond(context.Background(), []assistant.Message{{Role: assistant.RoleUser, Content: "q"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "after retry", resp.Content)
	assert.Len(t, srv.requests, 2)
}

func TestRespond_GivesUpAfterMaxRetries(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		return http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`
	}}
	client := newTestClient(t, srv)

	_, err := client.Respond(context.Background(), []assistant.Message{{Role: assistant.RoleUser, Content: "q"}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Len(t, srv.requests, MaxRetries+1)
}

func TestRespond_ServerErrorIsNotRetried(t *testing.T) {
	srv := &chatServer{respond: func(n int, req map[string]any) (int, string) {
		return http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`
	}}
	client := newTestClient(t, srv)

	_, err := client.Respond(context.Background(), []assistant.Message{{Role: assistant.RoleUser, Content: "q"}}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Len(t, srv.requests, 1)
}
