package analysis

import (
	"context"
	"strings"
	"sync"

	"github.com/mbd888/walletscope/internal/pagination"
)

// maxReportsPerAddress caps in-memory history per wallet.
const maxReportsPerAddress = 100

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]*Report // address → reports, oldest first
}

// NewMemoryStore creates an in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string][]*Report),
	}
}

func (s *MemoryStore) SaveReport(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := strings.ToLower(r.Address)
	list := append(s.reports[addr], r)
	if len(list) > maxReportsPerAddress {
		list = list[len(list)-maxReportsPerAddress:]
	}
	s.reports[addr] = list
	return nil
}

func (s *MemoryStore) ListByAddress(ctx context.Context, address string, limit int, cursor *pagination.Cursor) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.reports[strings.ToLower(address)]
	if len(all) == 0 {
		return nil, nil
	}

	// Newest first, honoring the cursor position. Same (generatedAt, id)
	// tuple comparison as the Postgres keyset query, so timestamp ties
	// paginate identically on both stores.
	var result []*Report
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		r := all[i]
		if cursor != nil && !beforeCursor(r, cursor) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func beforeCursor(r *Report, c *pagination.Cursor) bool {
	if r.GeneratedAt.Before(c.CreatedAt) {
		return true
	}
	return r.GeneratedAt.Equal(c.CreatedAt) && r.ID < c.ID
}
