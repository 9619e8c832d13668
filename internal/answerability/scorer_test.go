package answerability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskcore/pkg/models"
)

type stubJudge struct {
	answerable bool
	err        error
	calls      int
}

func (j *stubJudge) Assess(ctx context.Context, query string, passages []models.Passage) (bool, error) {
	j.calls++
	return j.answerable, j.err
}

func passage(relevance float64, content string) models.Passage {
	return models.Passage{Content: content, SourceDocument: "doc-rra", Page: 12, Relevance: relevance}
}

// borderlinePassages lands the heuristic confidence in [0.55, 0.70): partial
// coverage and length, decent similarity, full term coverage, no citations.
func borderlinePassages() []models.Passage {
	content := strings.Repeat("el calendario de matricula ordinaria se publica cada periodo academico ", 8)
	return []models.Passage{
		passage(0.8, content),
		passage(0.6, content),
	}
}

const borderlineQuery = "calendario de matrícula ordinaria"

func TestScore_ZeroPassagesLow(t *testing.T) {
	s := NewScorer(VariantHeuristic, nil, 0.30)

	result := s.Score(context.Background(), "¿cuándo es la matrícula?", nil)
	assert.Equal(t, models.VerdictLow, result.Verdict)
	assert.Zero(t, result.Confidence)
	assert.False(t, result.JudgeUsed)
}

func TestScore_StrongEvidenceHigh(t *testing.T) {
	judge := &stubJudge{}
	s := NewScorer(VariantHeuristic, judge, 0.30)

	content := strings.Repeat("segun el articulo 12 del reglamento la matricula ordinaria se realiza en linea ", 8)
	passages := []models.Passage{
		passage(0.9, content), passage(0.9, content), passage(0.9, content),
		passage(0.9, content), passage(0.9, content),
	}

	result := s.Score(context.Background(), "matrícula ordinaria según el reglamento", passages)
	assert.Equal(t, models.VerdictHigh, result.Verdict)
	assert.Zero(t, judge.calls, "non-borderline verdicts must not consult the judge")
}

func TestScore_BorderlineFixtureIsBorderline(t *testing.T) {
	s := NewScorer(VariantHeuristic, nil, 0.30)

	result := s.Score(context.Background(), borderlineQuery, borderlinePassages())
	require.Equal(t, models.VerdictBorderline, result.Verdict)
	assert.False(t, result.JudgeUsed, "nil judge leaves the verdict as-is")
}

func TestScore_BorderlineJudgeYes(t *testing.T) {
	judge := &stubJudge{answerable: true}
	s := NewScorer(VariantHeuristic, judge, 0.30)

	result := s.Score(context.Background(), borderlineQuery, borderlinePassages())
	assert.Equal(t, 1, judge.calls)
	assert.Equal(t, models.VerdictHigh, result.Verdict)
	assert.True(t, result.JudgeUsed)
}

func TestScore_BorderlineJudgeNo(t *testing.T) {
	judge := &stubJudge{answerable: false}
	s := NewScorer(VariantHeuristic, judge, 0.30)

	result := s.Score(context.Background(), borderlineQuery, borderlinePassages())
	assert.Equal(t, models.VerdictLow, result.Verdict)
	assert.True(t, result.JudgeUsed)
}

func TestScore_JudgeFailureKeepsHeuristicVerdict(t *testing.T) {
	judge := &stubJudge{err: errors.New("model unavailable")}
	s := NewScorer(VariantHeuristic, judge, 0.30)

	result := s.Score(context.Background(), borderlineQuery, borderlinePassages())
	assert.Equal(t, 1, judge.calls)
	assert.Equal(t, models.VerdictBorderline, result.Verdict)
	assert.False(t, result.JudgeUsed)
}

func TestScore_JudgeWeightedBlends(t *testing.T) {
	passages := borderlinePassages()
	base := weightedSum(ExtractFeatures(borderlineQuery, passages), judgeWeightedWeights)
	require.Equal(t, models.VerdictBorderline, verdictFor(base), "fixture must be borderline under judge-weighted weights")

	judge := &stubJudge{answerable: true}
	s := NewScorer(VariantJudgeWeighted, judge, 0.30)
	result := s.Score(context.Background(), borderlineQuery, passages)

	assert.InDelta(t, 0.7*base+0.3, result.Confidence, 1e-9)
	assert.Equal(t, models.VerdictHigh, result.Verdict)
	assert.True(t, result.JudgeUsed)

	judge = &stubJudge{answerable: false}
	s = NewScorer(VariantJudgeWeighted, judge, 0.30)
	result = s.Score(context.Background(), borderlineQuery, passages)
	assert.InDelta(t, 0.7*base, result.Confidence, 1e-9)
	assert.Equal(t, models.VerdictMedium, result.Verdict)
}

func TestScore_MonotonicInSimilarity(t *testing.T) {
	s := NewScorer(VariantHeuristic, nil, 0.30)
	content := strings.Repeat("el calendario de matricula ordinaria se publica cada periodo academico ", 8)

	previous := -1.0
	for _, relevance := range []float64{0.3, 0.5, 0.7, 0.9} {
		passages := []models.Passage{passage(relevance, content), passage(relevance, content)}
		result := s.Score(context.Background(), borderlineQuery, passages)
		assert.Greater(t, result.Confidence, previous, "confidence must grow with similarity, relevance=%v", relevance)
		previous = result.Confidence
	}
}

func TestExtractFeatures_MarginFlooredAtZero(t *testing.T) {
	// Unsorted input: last passage scores above the first.
	passages := []models.Passage{
		passage(0.4, "texto uno"),
		passage(0.9, "texto dos"),
	}
	f := ExtractFeatures("texto", passages)
	assert.Zero(t, f.SimilarityMargin)
}

func TestExtractFeatures_Caps(t *testing.T) {
	long := strings.Repeat("articulo 3 del reglamento general dice que numeral tras numeral ", 100)
	passages := []models.Passage{
		passage(1.0, long), passage(1.0, long), passage(1.0, long),
		passage(1.0, long), passage(1.0, long), passage(1.0, long),
	}
	f := ExtractFeatures("reglamento general", passages)
	assert.Equal(t, 1.0, f.Coverage)
	assert.Equal(t, 1.0, f.Length)
	assert.LessOrEqual(t, f.CitationDensity, 1.0)
}

func TestExtractFeatures_TermCoverageIgnoresShortTerms(t *testing.T) {
	passages := []models.Passage{passage(0.8, "la beca socioeconomica cubre el arancel")}
	f := ExtractFeatures("¿mi beca cubre el arancel?", passages)
	// Terms are beca, cubre, arancel; "mi" and "el" are too short to count.
	assert.InDelta(t, 1.0, f.TermCoverage, 1e-9)
}

func TestVerdictThresholds(t *testing.T) {
	cases := []struct {
		confidence float64
		want       models.Verdict
	}{
		{0.85, models.VerdictHigh},
		{0.70, models.VerdictHigh},
		{0.69, models.VerdictBorderline},
		{0.55, models.VerdictBorderline},
		{0.54, models.VerdictMedium},
		{0.40, models.VerdictMedium},
		{0.39, models.VerdictLow},
		{0.0, models.VerdictLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, verdictFor(tc.confidence), "confidence %v", tc.confidence)
	}
}
