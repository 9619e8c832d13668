package related

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskcore/pkg/models"
)

// markerEmbedder returns a fixed vector for the first marker found in the
// text, so each ticket gets a predictable similarity to the query.
type markerEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *markerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	for marker, vec := range e.vectors {
		if strings.Contains(text, marker) {
			return vec, nil
		}
	}
	return []float32{0, 1}, nil
}

// unitVec builds a 2-d unit vector whose dot product with (1,0) is sim.
func unitVec(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func ticket(code, description, status string, createdAt time.Time) models.RequestRecord {
	return models.RequestRecord{
		ID:          "id-" + code,
		Code:        code,
		Description: description,
		Status:      status,
		CreatedAt:   createdAt,
	}
}

func codesOf(matches []Match) []string {
	var out []string
	for _, m := range matches {
		out = append(out, m.Record.Code)
	}
	return out
}

var t0 = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

func TestFindRelated_SimilarityOrderWithStableTies(t *testing.T) {
	embedder := &markerEmbedder{vectors: map[string][]float32{
		"consulta": unitVec(1.0),
		"aaa":      unitVec(0.50),
		"bbb":      unitVec(0.91),
		"ccc":      unitVec(0.50),
	}}
	m := NewMatcher(embedder, 150, 30, 3)

	// Equal timestamps: the tied pair must keep its original relative order.
	tickets := []models.RequestRecord{
		ticket("T-1", "solicitud aaa", "", t0),
		ticket("T-2", "solicitud bbb", "", t0),
		ticket("T-3", "solicitud ccc", "", t0),
	}
	matches := m.FindRelated(context.Background(), "consulta actual", tickets)

	require.Len(t, matches, 3)
	assert.Equal(t, []string{"T-2", "T-1", "T-3"}, codesOf(matches))
	assert.True(t, matches[0].Ranked)
	assert.InDelta(t, 0.91, matches[0].Similarity, 1e-6)
}

func TestFindRelated_RecencyBreaksExactTies(t *testing.T) {
	embedder := &markerEmbedder{vectors: map[string][]float32{
		"consulta": unitVec(1.0),
		"aaa":      unitVec(0.60),
	}}
	m := NewMatcher(embedder, 150, 30, 3)

	tickets := []models.RequestRecord{
		ticket("T-OLD", "solicitud aaa", "", t0.Add(-48*time.Hour)),
		ticket("T-NEW", "solicitud aaa", "", t0),
	}
	matches := m.FindRelated(context.Background(), "consulta actual", tickets)

	assert.Equal(t, []string{"T-NEW", "T-OLD"}, codesOf(matches))
}

func TestFindRelated_ActiveStatusJumpsWithinBand(t *testing.T) {
	embedder := &markerEmbedder{vectors: map[string][]float32{
		"consulta": unitVec(1.0),
		"aaa":      unitVec(0.52),
		"bbb":      unitVec(0.50),
		"ccc":      unitVec(0.91),
	}}
	m := NewMatcher(embedder, 150, 30, 3)

	tickets := []models.RequestRecord{
		ticket("T-CLOSED", "solicitud aaa", "cerrado", t0),
		ticket("T-ACTIVE", "solicitud bbb", "en proceso", t0),
		ticket("T-TOP", "solicitud ccc", "anulado", t0),
	}
	matches := m.FindRelated(context.Background(), "consulta actual", tickets)

	// 0.91 stays on top regardless of status; inside the near-equal band the
	// active ticket outranks the closed one with slightly higher similarity.
	assert.Equal(t, []string{"T-TOP", "T-ACTIVE", "T-CLOSED"}, codesOf(matches))
}

func TestFindRelated_NilEmbedderDegradesToRecency(t *testing.T) {
	m := NewMatcher(nil, 150, 2, 3)

	tickets := []models.RequestRecord{
		ticket("T-1", "solicitud uno", "", t0.Add(-2*time.Hour)),
		ticket("T-2", "solicitud dos", "", t0),
		ticket("T-3", "solicitud tres", "", t0.Add(-time.Hour)),
	}
	matches := m.FindRelated(context.Background(), "consulta actual", tickets)

	assert.Equal(t, []string{"T-2", "T-3"}, codesOf(matches), "degraded mode returns most recent, capped at k")
	assert.False(t, matches[0].Ranked)
}

func TestFindRelated_ShortQuerySkipsEmbedding(t *testing.T) {
	embedder := &markerEmbedder{err: errors.New("must not be called")}
	m := NewMatcher(embedder, 150, 30, 3)

	matches := m.FindRelated(context.Background(), "ok", []models.RequestRecord{
		ticket("T-1", "solicitud uno", "", t0),
	})
	require.Len(t, matches, 1)
	assert.False(t, matches[0].Ranked)
}

func TestFindRelated_EmbedFailureDegrades(t *testing.T) {
	embedder := &markerEmbedder{err: errors.New("service down")}
	m := NewMatcher(embedder, 150, 30, 3)

	tickets := []models.RequestRecord{
		ticket("T-1", "solicitud uno", "", t0.Add(-time.Hour)),
		ticket("T-2", "solicitud dos", "", t0),
	}
	matches := m.FindRelated(context.Background(), "consulta actual", tickets)

	assert.Equal(t, []string{"T-2", "T-1"}, codesOf(matches))
	assert.False(t, matches[0].Ranked)
}

func TestFindRelated_RecencyPoolCap(t *testing.T) {
	m := NewMatcher(nil, 2, 30, 3)

	tickets := []models.RequestRecord{
		ticket("T-1", "solicitud uno", "", t0.Add(-3*time.Hour)),
		ticket("T-2", "solicitud dos", "", t0),
		ticket("T-3", "solicitud tres", "", t0.Add(-time.Hour)),
	}
	matches := m.FindRelated(context.Background(), "consulta actual", tickets)
	assert.Equal(t, []string{"T-2", "T-3"}, codesOf(matches))
}

func TestFindRelated_EmptyPool(t *testing.T) {
	m := NewMatcher(nil, 150, 30, 3)
	assert.Empty(t, m.FindRelated(context.Background(), "consulta", nil))
}

func TestRenderDisambiguation(t *testing.T) {
	m := NewMatcher(nil, 150, 30, 3)

	long := strings.Repeat("problema con la plataforma de aula virtual ", 4)
	matches := []Match{
		{Record: ticket("SOL-2026-0132", long, "", t0)},
		{Record: ticket("SOL-2026-0133", "cambio de paralelo", "", t0)},
		{Record: ticket("SOL-2026-0134", "beca socioeconómica", "", t0)},
		{Record: ticket("SOL-2026-0135", "retiro de asignatura", "", t0)},
	}
	text := m.RenderDisambiguation(matches)

	assert.Equal(t, 3, strings.Count(text, "•"), "display list is capped at 3")
	assert.Contains(t, text, "SOL-2026-0132")
	assert.Contains(t, text, "05-03-2026")
	assert.NotContains(t, text, "SOL-2026-0135")
	assert.NotContains(t, text, long, "long descriptions are truncated")
}

func TestRenderDisambiguation_Empty(t *testing.T) {
	m := NewMatcher(nil, 150, 30, 3)
	assert.Contains(t, m.RenderDisambiguation(nil), "No encontré solicitudes previas")
}

func TestCodes(t *testing.T) {
	m := NewMatcher(nil, 150, 30, 2)
	matches := []Match{
		{Record: ticket("T-1", "", "", t0)},
		{Record: ticket("T-2", "", "", t0)},
		{Record: ticket("T-3", "", "", t0)},
	}
	assert.Equal(t, []string{"T-1", "T-2"}, m.Codes(matches))
}

func TestMatchSelection(t *testing.T) {
	matches := []Match{
		{Record: ticket("SOL-2026-0132", "", "", t0)},
		{Record: ticket("SOL-2026-0133", "", "", t0)},
	}

	record, ok := MatchSelection("sí, es la SOL-2026-0133", matches)
	require.True(t, ok)
	assert.Equal(t, "SOL-2026-0133", record.Code)

	_, ok = MatchSelection("ninguna de esas", matches)
	assert.False(t, ok)
}
