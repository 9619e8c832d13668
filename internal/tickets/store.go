// Package tickets reads a requester's prior support requests. The store is
// read-only to the dialogue core; filing and updating tickets belongs to the
// surrounding service.
package tickets

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/deskcore/pkg/models"
)

// Store lists a requester's prior tickets. Order is not guaranteed; callers
// sort as needed.
type Store interface {
	List(ctx context.Context, requesterID string) ([]models.RequestRecord, error)
}

// PGStore is the Postgres-backed store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the configured database.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ticket database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ticket database unreachable: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

const listQuery = `
SELECT r.id, r.code, r.description, r.created_at, r.status, r.type,
       COALESCE(r.service, ''),
       COALESCE(array_agg(h.message ORDER BY h.created_at)
                FILTER (WHERE h.message IS NOT NULL), '{}')
FROM requests r
LEFT JOIN request_history h ON h.request_id = r.id
WHERE r.requester_id = $1
GROUP BY r.id, r.code, r.description, r.created_at, r.status, r.type, r.service
ORDER BY r.created_at DESC`

// List returns every ticket filed by the requester with up to its full
// message history attached.
func (s *PGStore) List(ctx context.Context, requesterID string) ([]models.RequestRecord, error) {
	rows, err := s.pool.Query(ctx, listQuery, requesterID)
	if err != nil {
		return nil, fmt.Errorf("ticket query failed: %w", err)
	}
	defer rows.Close()

	var records []models.RequestRecord
	for rows.Next() {
		var record models.RequestRecord
		if err := rows.Scan(
			&record.ID, &record.Code, &record.Description, &record.CreatedAt,
			&record.Status, &record.Type, &record.Service, &record.History,
		); err != nil {
			return nil, fmt.Errorf("ticket row scan failed: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticket rows failed: %w", err)
	}
	log.Debug().Str("requester", requesterID).Int("tickets", len(records)).Msg("listed prior tickets")
	return records, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// MemoryStore keeps tickets in memory, for tests and storage-less
// deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	byRequester map[string][]models.RequestRecord
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRequester: map[string][]models.RequestRecord{}}
}

// Add registers a ticket for the requester.
func (s *MemoryStore) Add(requesterID string, record models.RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRequester[requesterID] = append(s.byRequester[requesterID], record)
}

// List returns a copy of the requester's tickets.
func (s *MemoryStore) List(ctx context.Context, requesterID string) ([]models.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RequestRecord(nil), s.byRequester[requesterID]...), nil
}
