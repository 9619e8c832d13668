package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskcore/internal/llm"
	"github.com/deskcore/pkg/models"
)

// Answerer produces the final answer text from the query and its supporting
// passages.
type Answerer interface {
	Answer(ctx context.Context, query string, passages []models.Passage) (string, error)
}

// LLMAnswerer phrases the answer with the chat model, grounded strictly on
// the retrieved passages.
type LLMAnswerer struct {
	client llm.Client
}

// NewLLMAnswerer wraps the model client as an Answerer.
func NewLLMAnswerer(client llm.Client) *LLMAnswerer {
	return &LLMAnswerer{client: client}
}

func (a *LLMAnswerer) Answer(ctx context.Context, query string, passages []models.Passage) (string, error) {
	response, err := a.client.Complete(ctx, buildAnswerPrompt(query, passages))
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(response)
	if answer == "" {
		return "", fmt.Errorf("empty answer from model")
	}
	return answer, nil
}

func buildAnswerPrompt(query string, passages []models.Passage) string {
	var b strings.Builder
	b.WriteString("Eres el asistente de la mesa de ayuda estudiantil. Responde la consulta usando únicamente los fragmentos citados; si un dato no aparece en ellos, dilo explícitamente. Responde en español, de forma breve y citando el documento y la página entre paréntesis.\n\n")
	b.WriteString("Consulta: " + query + "\n\nFragmentos:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "--- %d (%s, pág. %d) ---\n%s\n", i+1, p.SourceDocument, p.Page, p.Content)
	}
	b.WriteString("\nRespuesta:")
	return b.String()
}
