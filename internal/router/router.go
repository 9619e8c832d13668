package router

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xrash/smetrics"

	"github.com/deskcore/pkg/models"
	"github.com/deskcore/pkg/shared"
)

const (
	topFolders    = 2
	maxSubqueries = 3
)

// Router scores folders and shortlists files for one query.
type Router struct {
	catalog    *Catalog
	fuzzyRatio float64
	maxFiles   int
}

// New builds a router over the catalog. fuzzyRatio is the minimum title
// similarity for a fuzzy hit (0..1); maxFiles caps the shortlist.
func New(catalog *Catalog, fuzzyRatio float64, maxFiles int) *Router {
	if fuzzyRatio <= 0 || fuzzyRatio > 1 {
		fuzzyRatio = 0.75
	}
	if maxFiles <= 0 {
		maxFiles = 8
	}
	return &Router{catalog: catalog, fuzzyRatio: fuzzyRatio, maxFiles: maxFiles}
}

// Route narrows the retrieval scope for the utterance. subqueries are
// enriched reformulations (at most 3 are considered); entities are detected
// entity strings (slot values). The result is never empty on the folder axis.
func (r *Router) Route(utterance string, subqueries, entities []string) models.CandidateSet {
	if len(subqueries) > maxSubqueries {
		subqueries = subqueries[:maxSubqueries]
	}

	parts := append([]string{utterance}, subqueries...)
	parts = append(parts, entities...)
	haystack := shared.FoldStrip(strings.Join(parts, " "))

	folders := r.scoreFolders(haystack)
	files := r.shortlistFiles(haystack, folders)

	log.Debug().Strs("folders", folders).Int("files", len(files)).Msg("routed query")
	return models.CandidateSet{Folders: folders, Files: files}
}

// scoreFolders counts trigger hits per folder and keeps the top 2. Ties keep
// table declaration order; all-zero scores fall back to the default set.
func (r *Router) scoreFolders(haystack string) []string {
	type scored struct {
		id    string
		score int
		order int
	}

	var scores []scored
	for i, folder := range r.catalog.Folders {
		count := 0
		for _, trigger := range folder.Triggers {
			if strings.Contains(haystack, trigger) {
				count++
			}
		}
		if count > 0 {
			scores = append(scores, scored{id: folder.ID, score: count, order: i})
		}
	}

	if len(scores) == 0 {
		return append([]string(nil), r.catalog.DefaultFolders...)
	}

	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].score != scores[b].score {
			return scores[a].score > scores[b].score
		}
		return scores[a].order < scores[b].order
	})

	n := topFolders
	if len(scores) < n {
		n = len(scores)
	}
	out := make([]string, 0, n)
	for _, s := range scores[:n] {
		out = append(out, s.id)
	}
	return out
}

// shortlistFiles combines exact acronym hits with fuzzy title hits, acronyms
// first, deduplicated and capped. An empty shortlist falls back to every file
// under the routed folders.
func (r *Router) shortlistFiles(haystack string, folders []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] && len(out) < r.maxFiles {
			seen[id] = true
			out = append(out, id)
		}
	}

	// Exact acronym/alias lookup over query tokens.
	for _, token := range strings.Fields(haystack) {
		if title, ok := r.catalog.Acronyms[token]; ok {
			if entry, found := r.catalog.fileByTitle(title); found {
				add(entry.ID)
			}
		}
	}

	// Fuzzy title matching over files in the routed folders.
	type fuzzyHit struct {
		id  string
		sim float64
	}
	var hits []fuzzyHit
	for _, entry := range r.catalog.filesUnder(folders) {
		if seen[entry.ID] {
			continue
		}
		if sim := titleSimilarity(haystack, shared.FoldStrip(entry.Title)); sim >= r.fuzzyRatio {
			hits = append(hits, fuzzyHit{id: entry.ID, sim: sim})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].sim > hits[b].sim })
	for _, h := range hits {
		add(h.id)
	}

	if len(out) == 0 {
		for _, entry := range r.catalog.filesUnder(folders) {
			add(entry.ID)
		}
	}
	return out
}

// titleSimilarity is the best Jaro-Winkler score between the folded title
// and any token window of the query with the same token count. A full-string
// comparison would drown short titles in long utterances.
func titleSimilarity(query, title string) float64 {
	titleTokens := strings.Fields(title)
	queryTokens := strings.Fields(query)
	if len(titleTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	width := len(titleTokens)
	if width > len(queryTokens) {
		return smetrics.JaroWinkler(strings.Join(queryTokens, " "), title, 0.7, 4)
	}

	best := 0.0
	for i := 0; i+width <= len(queryTokens); i++ {
		window := strings.Join(queryTokens[i:i+width], " ")
		if sim := smetrics.JaroWinkler(window, title, 0.7, 4); sim > best {
			best = sim
		}
	}
	return best
}
