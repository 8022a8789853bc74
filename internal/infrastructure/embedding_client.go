package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EmbeddingServiceClient turns message text into vectors via the embedding
// service.
type EmbeddingServiceClient struct {
	baseURL string
	http    *http.Client
}

func NewEmbeddingServiceClient(baseURL string) *EmbeddingServiceClient {
	return &EmbeddingServiceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *EmbeddingServiceClient) VectorizeText(ctx context.Context, text, modelName string) ([]float64, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"texts":           []string{text},
		"embedding_model": modelName,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/embeddings/generate", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectorize text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectorize text: embedding service returned %d", resp.StatusCode)
	}

	var body struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("vectorize text: decode: %w", err)
	}
	if len(body.Embeddings) == 0 {
		return nil, fmt.Errorf("vectorize text: embedding service returned no vectors")
	}
	return body.Embeddings[0], nil
}
