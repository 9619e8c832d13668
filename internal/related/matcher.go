// Package related ranks a requester's prior tickets against the current
// query by embedding similarity. It never calls a generative model: given the
// same embeddings the ranking is fully reproducible.
package related

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/deskcore/internal/llm"
	"github.com/deskcore/pkg/models"
	"github.com/deskcore/pkg/shared"
)

const (
	minQueryRunes = 3
	// Two similarities inside the same band count as near-equal, letting an
	// active ticket jump ahead of a closed one.
	statusBandWidth = 0.05
	descriptionCap  = 80
)

// Match is one ranked prior ticket. Similarity is meaningless when Ranked is
// false (degraded mode returned recency order).
type Match struct {
	Record     models.RequestRecord
	Similarity float64
	Ranked     bool
}

// Matcher finds prior tickets related to the current request.
type Matcher struct {
	embedder     llm.Embedder
	recencyPool  int
	shortlistCap int
	displayCap   int
}

// NewMatcher builds a matcher. embedder may be nil; the matcher then always
// operates in degraded (recency-only) mode.
func NewMatcher(embedder llm.Embedder, recencyPool, shortlistCap, displayCap int) *Matcher {
	if recencyPool <= 0 {
		recencyPool = 150
	}
	if shortlistCap <= 0 {
		shortlistCap = 30
	}
	if displayCap <= 0 {
		displayCap = 3
	}
	return &Matcher{
		embedder:     embedder,
		recencyPool:  recencyPool,
		shortlistCap: shortlistCap,
		displayCap:   displayCap,
	}
}

// FindRelated ranks the requester's tickets against the query. Any embedding
// failure degrades to recency order; this method never returns an error.
func (m *Matcher) FindRelated(ctx context.Context, query string, tickets []models.RequestRecord) []Match {
	pool := m.recentPool(tickets)
	if len(pool) == 0 {
		return nil
	}

	folded := shared.FoldStrip(query)
	if m.embedder == nil || len([]rune(strings.TrimSpace(folded))) < minQueryRunes {
		return m.degraded(pool)
	}

	queryVec, err := m.embedder.Embed(ctx, folded)
	if err != nil {
		log.Warn().Err(err).Msg("query embedding failed, falling back to recency order")
		return m.degraded(pool)
	}

	matches := make([]Match, 0, len(pool))
	for _, record := range pool {
		vec, err := m.embedder.Embed(ctx, ticketText(record))
		if err != nil {
			log.Warn().Err(err).Str("ticket", record.Code).Msg("ticket embedding failed, falling back to recency order")
			return m.degraded(pool)
		}
		matches = append(matches, Match{
			Record:     record,
			Similarity: dot(queryVec, vec),
			Ranked:     true,
		})
	}

	// Pool is recency-sorted, so a stable sort leaves exact similarity ties
	// in newest-first order.
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})
	if len(matches) > m.shortlistCap {
		matches = matches[:m.shortlistCap]
	}

	// Status pass: similarity stays the dominant key, but within a band of
	// near-equal scores active tickets outrank closed ones.
	sort.SliceStable(matches, func(a, b int) bool {
		ba, bb := band(matches[a].Similarity), band(matches[b].Similarity)
		if ba != bb {
			return ba > bb
		}
		return statusRank(matches[a].Record.Status) < statusRank(matches[b].Record.Status)
	})
	return matches
}

// recentPool sorts tickets newest first and caps the pool. Equal timestamps
// keep the store's order.
func (m *Matcher) recentPool(tickets []models.RequestRecord) []models.RequestRecord {
	pool := append([]models.RequestRecord(nil), tickets...)
	sort.SliceStable(pool, func(a, b int) bool {
		return pool[a].CreatedAt.After(pool[b].CreatedAt)
	})
	if len(pool) > m.recencyPool {
		pool = pool[:m.recencyPool]
	}
	return pool
}

func (m *Matcher) degraded(pool []models.RequestRecord) []Match {
	if len(pool) > m.shortlistCap {
		pool = pool[:m.shortlistCap]
	}
	matches := make([]Match, 0, len(pool))
	for _, record := range pool {
		matches = append(matches, Match{Record: record})
	}
	return matches
}

// ticketText builds the embeddable representation of one ticket: description,
// up to two history entries, service name and type label, folded.
func ticketText(record models.RequestRecord) string {
	parts := []string{record.Description}
	history := record.History
	if len(history) > 2 {
		history = history[:2]
	}
	parts = append(parts, history...)
	if record.Service != "" {
		parts = append(parts, record.Service)
	}
	if record.Type != "" {
		parts = append(parts, record.Type)
	}
	return shared.FoldStrip(strings.Join(parts, " "))
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func band(similarity float64) int {
	return int(math.Floor(similarity / statusBandWidth))
}

// statusRank orders ticket statuses: active-process states before terminal
// ones, unknown statuses in between.
func statusRank(status string) int {
	switch shared.FoldStrip(status) {
	case "abierto", "en proceso", "pendiente", "asignado", "en espera":
		return 0
	case "resuelto", "cerrado", "finalizado", "anulado", "rechazado":
		return 2
	default:
		return 1
	}
}

// RenderDisambiguation formats the selection prompt shown to the user, capped
// at the display limit. An empty shortlist yields the explicit no-related
// message.
func (m *Matcher) RenderDisambiguation(matches []Match) string {
	if len(matches) == 0 {
		return "No encontré solicitudes previas relacionadas con tu consulta."
	}

	var b strings.Builder
	b.WriteString("Encontré estas solicitudes previas que podrían estar relacionadas:\n")
	shown := matches
	if len(shown) > m.displayCap {
		shown = shown[:m.displayCap]
	}
	for _, match := range shown {
		r := match.Record
		fmt.Fprintf(&b, "• %s | %s | %s\n", r.Code, r.CreatedAt.Format("02-01-2006"), shared.TruncateRunes(r.Description, descriptionCap))
	}
	b.WriteString("¿Tu consulta se refiere a alguna de ellas? Indícame el código, o responde \"no\" para continuar.")
	return b.String()
}

// Codes lists the ticket codes of the displayed matches, for the stage flags
// of the produced turn.
func (m *Matcher) Codes(matches []Match) []string {
	var out []string
	for _, match := range matches {
		if len(out) >= m.displayCap {
			break
		}
		out = append(out, match.Record.Code)
	}
	return out
}

// MatchSelection resolves a user reply against the offered matches by ticket
// code, tolerating case and accents.
func MatchSelection(reply string, matches []Match) (models.RequestRecord, bool) {
	folded := " " + shared.FoldStrip(reply) + " "
	for _, match := range matches {
		code := shared.FoldStrip(match.Record.Code)
		if code != "" && strings.Contains(folded, " "+code+" ") {
			return match.Record, true
		}
	}
	return models.RequestRecord{}, false
}
