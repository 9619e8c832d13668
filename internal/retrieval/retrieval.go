// Package retrieval holds the contract consumed from the knowledge retriever
// and a process-level cache of built index handles keyed by the exact file
// set. The cache is not safe to share across independently started processes.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/deskcore/pkg/models"
)

// Retriever is the search contract the orchestrator consumes: ranked
// passages for a query, optionally narrowed by a scope filter.
type Retriever interface {
	Search(ctx context.Context, query string, scope models.CandidateSet) ([]models.Passage, error)
}

// Index is one built, searchable index over a fixed file set.
type Index interface {
	Search(ctx context.Context, query string) ([]models.Passage, error)
}

// Builder constructs an index for a file set. Building is the expensive part;
// CachedRetriever exists to amortize it.
type Builder interface {
	Build(ctx context.Context, files []string) (Index, error)
}

// Fingerprint identifies a file set independently of ordering.
func Fingerprint(files []string) string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(sum[:])
}

// CachedRetriever implements Retriever over a Builder with an LRU of built
// indexes keyed by file-set fingerprint.
type CachedRetriever struct {
	builder Builder
	cache   *lru.Cache[string, Index]
}

// NewCachedRetriever builds the caching wrapper. size is the number of
// distinct file sets kept warm.
func NewCachedRetriever(builder Builder, size int) (*CachedRetriever, error) {
	if size <= 0 {
		size = 16
	}
	cache, err := lru.New[string, Index](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	return &CachedRetriever{builder: builder, cache: cache}, nil
}

// Search builds (or reuses) the index for the scoped file set and runs the
// query against it.
func (r *CachedRetriever) Search(ctx context.Context, query string, scope models.CandidateSet) ([]models.Passage, error) {
	key := Fingerprint(scope.Files)
	index, ok := r.cache.Get(key)
	if !ok {
		built, err := r.builder.Build(ctx, scope.Files)
		if err != nil {
			return nil, fmt.Errorf("index build failed: %w", err)
		}
		r.cache.Add(key, built)
		index = built
	}
	return index.Search(ctx, query)
}

// SafeSearch normalizes retriever failures to zero passages: the scorer then
// lands on a "low" verdict and the turn escalates instead of erroring out.
func SafeSearch(ctx context.Context, retriever Retriever, query string, scope models.CandidateSet) []models.Passage {
	if retriever == nil {
		return nil
	}
	passages, err := retriever.Search(ctx, query, scope)
	if err != nil {
		log.Warn().Err(err).Msg("retrieval unavailable, treating as zero passages")
		return nil
	}
	return passages
}
