package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ContextServiceClient searches the vector store for context snippets. The
// response body is returned as-is (decoded JSON); the use case owns shape
// validation.
type ContextServiceClient struct {
	baseURL string
	http    *http.Client
}

func NewContextServiceClient(baseURL string) *ContextServiceClient {
	return &ContextServiceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ContextServiceClient) RetrieveDocumentContext(ctx context.Context, vector []float64, businessID uuid.UUID, topK int, minSimilarity float64) (map[string]interface{}, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"vector":         vector,
		"top_k":          topK,
		"min_similarity": minSimilarity,
		"business_id":    businessID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/embeddings/search/", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieve context: search service returned %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("retrieve context: decode: %w", err)
	}
	return body, nil
}
