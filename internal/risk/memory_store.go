package risk

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*Assessment // address → assessments
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*Assessment),
	}
}

func (s *MemoryStore) Record(ctx context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := strings.ToLower(a.Address)
	s.assessments[addr] = append(s.assessments[addr], copyAssessment(a))
	return nil
}

func (s *MemoryStore) ListByAddress(ctx context.Context, address string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[strings.ToLower(address)]
	if len(all) == 0 {
		return nil, nil
	}

	// Most recent first, up to limit.
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*Assessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyAssessment(all[i]))
	}
	return result, nil
}

func copyAssessment(a *Assessment) *Assessment {
	cp := *a
	cp.Breakdown = make(Breakdown, len(a.Breakdown))
	for k, v := range a.Breakdown {
		cp.Breakdown[k] = v
	}
	return &cp
}
