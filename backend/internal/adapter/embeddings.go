package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"kindred/backend/pkg/errors"
	"kindred/backend/pkg/logger"
	"go.uber.org/zap"
)

// EmbeddingsAdapter handles communication with an OpenAI-compatible
// embeddings endpoint (e.g. LiteLLM)
type EmbeddingsAdapter struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex // Protects model field for concurrent access
	logger *zap.Logger
}

// NewEmbeddingsAdapter creates a new embeddings adapter
func NewEmbeddingsAdapter(baseURL, apiKey, modelID string) *EmbeddingsAdapter {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &EmbeddingsAdapter{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Get(),
	}
}

// SetModel updates the model used by this adapter
func (a *EmbeddingsAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("Embeddings adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *EmbeddingsAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Embed returns the embedding vector for one text. Transient endpoint
// failures are retried with linear backoff before giving up.
func (a *EmbeddingsAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	a.mu.RLock()
	currentModel := a.model
	a.mu.RUnlock()

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(currentModel),
		Input: []string{text},
	}

	var resp openai.EmbeddingResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("Embedding request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)
	}

	if err != nil {
		return nil, errors.NewEmbeddingFailed(currentModel, err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.NewEmbeddingFailed(currentModel, nil)
	}

	// The client returns float32; the graph stores float64
	raw := resp.Data[0].Embedding
	embedding := make([]float64, len(raw))
	for i, v := range raw {
		embedding[i] = float64(v)
	}

	a.logger.Debug("Embedding generated",
		zap.String("model", currentModel),
		zap.Int("dimensions", len(embedding)),
	)
	return embedding, nil
}
