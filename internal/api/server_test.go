package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskcore/pkg/models"
)

type stubProcessor struct {
	got      models.TurnRequest
	response models.TurnResponse
}

func (p *stubProcessor) Process(ctx context.Context, req models.TurnRequest) models.TurnResponse {
	p.got = req
	return p.response
}

func TestProcessTurn(t *testing.T) {
	processor := &stubProcessor{response: models.TurnResponse{
		ID:       "t-1",
		Response: "La matrícula ordinaria es en marzo.",
		Flags:    models.StageFlags{NeedsConfirmation: models.Bool(true)},
	}}
	server := NewServer(":0", processor)

	body := `{"message": "¿cuándo es la matrícula?", "category": "matricula"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/turn", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "¿cuándo es la matrícula?", processor.got.Message)
	assert.Equal(t, "matricula", processor.got.Category)

	var parsed models.TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "t-1", parsed.ID)
	require.NotNil(t, parsed.Flags.NeedsConfirmation)
	assert.True(t, *parsed.Flags.NeedsConfirmation)
}

func TestProcessTurn_EmptyMessageRejected(t *testing.T) {
	server := NewServer(":0", &stubProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/turn", strings.NewReader(`{"message": "  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	server := NewServer(":0", &stubProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
