// Package answerability turns retrieved passages into a confidence verdict:
// can the corpus answer this query or not. Features are cheap and
// deterministic; a lenient model judge is consulted only for borderline
// scores, through a pluggable strategy.
package answerability

import (
	"regexp"
	"strings"

	"github.com/deskcore/pkg/models"
	"github.com/deskcore/pkg/shared"
)

const (
	coverageCapPassages = 4
	lengthCapChars      = 2400
	marginNormalizer    = 0.5
	termCoverageTopK    = 5
	citationTopK        = 3
	// A legal corpus passage cites roughly once every couple of dozen
	// tokens; this scales raw density onto [0,1].
	citationDensityScale = 20.0
)

// Citation markers typical of institutional/legal documents.
var citationRe = regexp.MustCompile(`(?i)(art\.\s*\d+|art[ií]culo\s+\d+|inciso|numeral|literal\s+[a-z]\)|§|res\.\s*\w+|resoluci[oó]n|cap[ií]tulo|disposici[oó]n)`)

// Features is the normalized [0,1] feature breakdown for one answer attempt.
type Features struct {
	Coverage         float64
	Length           float64
	SimilarityAvg    float64
	SimilarityMargin float64
	TermCoverage     float64
	CitationDensity  float64
}

// Map renders features as the breakdown attached to results.
func (f Features) Map() map[string]float64 {
	return map[string]float64{
		"coverage":          f.Coverage,
		"length":            f.Length,
		"similarity_avg":    f.SimilarityAvg,
		"similarity_margin": f.SimilarityMargin,
		"term_coverage":     f.TermCoverage,
		"citation_density":  f.CitationDensity,
	}
}

// ExtractFeatures computes the feature vector for query and ranked passages.
// Zero passages yield an all-zero vector, which the weighted sum maps to a
// "low" verdict, so an unavailable retriever degrades naturally.
func ExtractFeatures(query string, passages []models.Passage) Features {
	var f Features
	if len(passages) == 0 {
		return f
	}

	nonEmpty := 0
	totalChars := 0
	var simSum float64
	for _, p := range passages {
		if strings.TrimSpace(p.Content) != "" {
			nonEmpty++
			totalChars += len(p.Content)
		}
		simSum += clamp01(p.Relevance)
	}

	f.Coverage = capAt1(float64(nonEmpty) / coverageCapPassages)
	f.Length = capAt1(float64(totalChars) / lengthCapChars)
	f.SimilarityAvg = simSum / float64(len(passages))

	top := clamp01(passages[0].Relevance)
	last := clamp01(passages[len(passages)-1].Relevance)
	margin := (top - last) / marginNormalizer
	if margin < 0 {
		margin = 0
	}
	f.SimilarityMargin = capAt1(margin)

	f.TermCoverage = termCoverage(query, passages)
	f.CitationDensity = citationDensity(passages)
	return f
}

// termCoverage averages, over the top-5 passages, the fraction of query
// terms (length ≥3 after folding) each passage contains.
func termCoverage(query string, passages []models.Passage) float64 {
	var terms []string
	for _, tok := range shared.Tokens(query) {
		if len([]rune(tok)) >= 3 {
			terms = append(terms, tok)
		}
	}
	if len(terms) == 0 {
		return 0
	}

	k := len(passages)
	if k > termCoverageTopK {
		k = termCoverageTopK
	}

	var sum float64
	for _, p := range passages[:k] {
		folded := shared.FoldStrip(p.Content)
		found := 0
		for _, term := range terms {
			if strings.Contains(folded, term) {
				found++
			}
		}
		sum += float64(found) / float64(len(terms))
	}
	return sum / float64(k)
}

// citationDensity averages citation markers per token over the top-3
// passages, scaled onto [0,1].
func citationDensity(passages []models.Passage) float64 {
	k := len(passages)
	if k > citationTopK {
		k = citationTopK
	}

	var sum float64
	counted := 0
	for _, p := range passages[:k] {
		tokens := len(strings.Fields(p.Content))
		if tokens == 0 {
			continue
		}
		hits := len(citationRe.FindAllString(p.Content, -1))
		sum += capAt1(float64(hits) / float64(tokens) * citationDensityScale)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

func capAt1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
