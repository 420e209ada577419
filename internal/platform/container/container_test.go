package container

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/pdf-assistant/internal/core/assistant"
	"github.com/jinford/pdf-assistant/internal/core/embedding"
	"github.com/jinford/pdf-assistant/internal/core/knowledge"
	"github.com/jinford/pdf-assistant/internal/infra/openai"
	"github.com/jinford/pdf-assistant/internal/platform/config"
)

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

type nopReader struct{}

func (nopReader) Read(ctx context.Context, url string) ([]knowledge.Document, error) {
	return nil, nil
}

type stubLLM struct{}

func (stubLLM) ModelName() string { return "stub" }

func (stubLLM) Respond(ctx context.Context, messages []assistant.Message, tools []assistant.Tool) (assistant.Response, error) {
	return assistant.Response{Content: "ok"}, nil
}

func testOptions(extra ...ContainerOption) []ContainerOption {
	loader := func(ctx context.Context, modelName string) (embedding.Model, error) {
		return nil, nil
	}
	opts := []ContainerOption{
		WithContainerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithContainerModelLoader(loader),
		WithContainerReader(nopReader{}),
		WithContainerTokenCounter(wordCounter{}),
	}
	return append(opts, extra...)
}

func TestNewContainerWithDB_WiresComponents(t *testing.T) {
	cfg := config.DefaultConfig()

	c, err := NewContainerWithDB(cfg, nil, testOptions()...)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "all-MiniLM-L6-v2", c.Embedder.ModelName())
	assert.Equal(t, 384, c.Embedder.Dimension())
	assert.False(t, c.Embedder.Loaded())
	assert.Equal(t, "science_docs", c.VectorStore.Collection())
	assert.Equal(t, []string{config.DefaultKnowledgeURL}, c.KnowledgeBase.URLs())
	assert.NotNil(t, c.Storage)
	assert.Nil(t, c.Database())
}

func TestServiceContainer_LLMRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = ""

	c, err := NewContainerWithDB(cfg, nil, testOptions()...)
	require.NoError(t, err)

	_, err = c.LLM()
	assert.ErrorIs(t, err, openai.ErrAPIKeyNotSet)

	_, err = c.NewAssistant(assistant.DefaultOptions())
	assert.ErrorIs(t, err, openai.ErrAPIKeyNotSet)
}

func TestServiceContainer_LLMFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.Model = "gpt-4o-mini"

	c, err := NewContainerWithDB(cfg, nil, testOptions()...)
	require.NoError(t, err)

	llm, err := c.LLM()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", llm.ModelName())

	again, err := c.LLM()
	require.NoError(t, err)
	assert.Same(t, llm, again)
}

func TestServiceContainer_NewAssistantUsesInjectedLLM(t *testing.T) {
	cfg := config.DefaultConfig()

	c, err := NewContainerWithDB(cfg, nil, testOptions(WithContainerLLM(stubLLM{}))...)
	require.NoError(t, err)

	a, err := c.NewAssistant(assistant.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, a.RunID())
}

func TestNewContainer_ConnectionFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.URL = "postgres://ai:ai@127.0.0.1:1/ai?connect_timeout=1"

	_, err := NewContainer(context.Background(), cfg, testOptions()...)
	require.Error(t, err)
}
