package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deskcore/pkg/models"
)

// HTTPRetriever consumes a remote knowledge-retriever service. The service
// owns index construction; this client only sends the scoped query and reads
// the ranked passages back.
type HTTPRetriever struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRetriever builds the client. timeout bounds each search call.
func NewHTTPRetriever(baseURL string, timeout time.Duration) *HTTPRetriever {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRetriever{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query   string   `json:"query"`
	Folders []string `json:"folders,omitempty"`
	Files   []string `json:"files,omitempty"`
}

type searchResponse struct {
	Passages []models.Passage `json:"passages"`
}

// Search runs a scoped query against the remote service.
func (r *HTTPRetriever) Search(ctx context.Context, query string, scope models.CandidateSet) ([]models.Passage, error) {
	body, err := json.Marshal(searchRequest{Query: query, Folders: scope.Folders, Files: scope.Files})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retriever request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retriever returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode retriever response: %w", err)
	}
	return parsed.Passages, nil
}
