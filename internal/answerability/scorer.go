package answerability

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/deskcore/internal/llm"
	"github.com/deskcore/pkg/models"
)

// Verdict thresholds on the weighted confidence.
const (
	thresholdHigh       = 0.70
	thresholdBorderline = 0.55
	thresholdMedium     = 0.40
)

// Variant names for config.
const (
	VariantHeuristic     = "heuristic"
	VariantJudgeWeighted = "judge_weighted"
)

// Judge is the optional second opinion consulted on borderline scores. It
// answers the single question "could these passages answer the query".
type Judge interface {
	Assess(ctx context.Context, query string, passages []models.Passage) (bool, error)
}

var heuristicWeights = map[string]float64{
	"coverage":          0.20,
	"length":            0.10,
	"similarity_avg":    0.35,
	"similarity_margin": 0.10,
	"term_coverage":     0.15,
	"citation_density":  0.10,
}

// The judge-weighted variant leans harder on lexical evidence because the
// judge already covers the semantic axis.
var judgeWeightedWeights = map[string]float64{
	"coverage":          0.15,
	"length":            0.05,
	"similarity_avg":    0.30,
	"similarity_margin": 0.10,
	"term_coverage":     0.25,
	"citation_density":  0.15,
}

// Scorer computes the answerability verdict for a query and its retrieved
// passages.
type Scorer struct {
	variant     string
	judge       Judge
	judgeWeight float64
}

// NewScorer builds a scorer. judge may be nil, in which case borderline
// scores resolve without a second opinion. judgeWeight only matters for the
// judge-weighted variant.
func NewScorer(variant string, judge Judge, judgeWeight float64) *Scorer {
	if variant != VariantJudgeWeighted {
		variant = VariantHeuristic
	}
	if judgeWeight <= 0 || judgeWeight >= 1 {
		judgeWeight = 0.30
	}
	return &Scorer{variant: variant, judge: judge, judgeWeight: judgeWeight}
}

// Score produces the verdict. Zero passages always come out "low". Judge
// failures degrade to the pure heuristic verdict; they never abort the turn.
func (s *Scorer) Score(ctx context.Context, query string, passages []models.Passage) models.AnswerabilityResult {
	features := ExtractFeatures(query, passages)

	weights := heuristicWeights
	if s.variant == VariantJudgeWeighted {
		weights = judgeWeightedWeights
	}
	confidence := weightedSum(features, weights)
	verdict := verdictFor(confidence)

	result := models.AnswerabilityResult{
		Confidence: confidence,
		Verdict:    verdict,
		Features:   features.Map(),
	}

	if verdict != models.VerdictBorderline || s.judge == nil {
		return result
	}

	answerable, err := s.judge.Assess(ctx, query, passages)
	if err != nil {
		log.Warn().Err(err).Msg("answerability judge unavailable, keeping heuristic verdict")
		return result
	}

	switch s.variant {
	case VariantJudgeWeighted:
		judged := 0.0
		if answerable {
			judged = 1.0
		}
		result.Confidence = (1-s.judgeWeight)*confidence + s.judgeWeight*judged
		result.Verdict = verdictFor(result.Confidence)
	default:
		if answerable {
			result.Verdict = models.VerdictHigh
		} else {
			result.Verdict = models.VerdictLow
		}
	}
	result.JudgeUsed = true
	return result
}

func weightedSum(f Features, weights map[string]float64) float64 {
	var sum float64
	for name, value := range f.Map() {
		sum += value * weights[name]
	}
	return clamp01(sum)
}

func verdictFor(confidence float64) models.Verdict {
	switch {
	case confidence >= thresholdHigh:
		return models.VerdictHigh
	case confidence >= thresholdBorderline:
		return models.VerdictBorderline
	case confidence >= thresholdMedium:
		return models.VerdictMedium
	default:
		return models.VerdictLow
	}
}

// LenientJudge asks the model whether the passages could plausibly answer the
// query. The prompt is deliberately permissive: the judge exists to rescue
// borderline cases, not to second-guess clear ones. It rides the optional
// call path, so under quota pressure it silently abstains.
type LenientJudge struct {
	client *llm.ResilientClient
}

// NewLenientJudge wraps the model client as a Judge.
func NewLenientJudge(client *llm.ResilientClient) *LenientJudge {
	return &LenientJudge{client: client}
}

type judgeResponse struct {
	Answerable bool   `json:"answerable"`
	Reason     string `json:"reason"`
}

// Assess returns whether the passages could answer the query.
func (j *LenientJudge) Assess(ctx context.Context, query string, passages []models.Passage) (bool, error) {
	response, ok := j.client.TryComplete(ctx, buildJudgePrompt(query, passages))
	if !ok {
		return false, fmt.Errorf("judge call skipped, budget exhausted")
	}

	var parsed judgeResponse
	if !llm.ParseInto(response, &parsed) {
		return false, fmt.Errorf("unparseable judge response")
	}
	return parsed.Answerable, nil
}

func buildJudgePrompt(query string, passages []models.Passage) string {
	var b strings.Builder
	b.WriteString("Eres un evaluador permisivo. Decide si los siguientes fragmentos de documentos institucionales podrían responder, al menos parcialmente, la consulta del estudiante.\n")
	b.WriteString("Responde que sí salvo que los fragmentos sean claramente irrelevantes.\n\n")
	b.WriteString("Consulta: " + query + "\n\nFragmentos:\n")
	for i, p := range passages {
		if i >= citationTopK {
			break
		}
		fmt.Fprintf(&b, "--- Fragmento %d (%s, pág. %d) ---\n%s\n", i+1, p.SourceDocument, p.Page, p.Content)
	}
	b.WriteString("\nResponde únicamente con JSON: {\"answerable\": true|false, \"reason\": \"...\"}\n")
	return b.String()
}
