package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/pdf-assistant/internal/core/embedding"
)

// probeText はモデル読み込み時の疎通確認に使う文
const probeText = "ping"

// localModel は OpenAI 互換の /v1/embeddings で提供される文埋め込みモデル
// (text-embeddings-inference や Ollama など)
type localModel struct {
	client openai.Client
	model  string
}

// NewModelLoader はローカル埋め込みサーバーに接続する ModelLoader を返す
func NewModelLoader(baseURL, apiKey string) embedding.ModelLoader {
	return func(ctx context.Context, modelName string) (embedding.Model, error) {
		if baseURL == "" {
			return nil, fmt.Errorf("embedding server base URL is not configured")
		}

		m := &localModel{
			client: openai.NewClient(
				option.WithBaseURL(baseURL),
				option.WithAPIKey(apiKey),
				option.WithMaxRetries(0),
			),
			model: modelName,
		}

		// サーバーがモデルを提供しているかを確認する
		if _, err := m.Encode(ctx, []string{probeText}); err != nil {
			return nil, fmt.Errorf("failed to load embedding model %s from %s: %w", modelName, baseURL, err)
		}
		return m, nil
	}
}

// Encode はテキスト列をベクトルに変換する
func (m *localModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(m.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(resp.Data))
	}

	// 応答の順序は index で決まる
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index out of range: %d", data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[data.Index] = vector
	}

	return embeddings, nil
}
