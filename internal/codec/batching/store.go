package batching

import (
	"context"
	"sync"
)

// Record is one payload's original bytes, staged for a single batched
// external write grouped by tenant.
type Record struct {
	ID       string
	Tenant   string
	Data     []byte
	Metadata map[string][]byte
}

// Fetched is one record retrieved from the external store during a single
// batched read.
type Fetched struct {
	ID       string
	Data     []byte
	Metadata map[string][]byte
	Found    bool
}

// BlobStore is the external collaborator the batching codec writes to and
// reads from. Concrete encryption, key-management, and blob-store
// implementations are out of the core's scope (spec.md §1) — this
// interface is the core's entire boundary with them.
type BlobStore interface {
	// PutBatch persists every record in one call, for one tenant.
	PutBatch(ctx context.Context, tenant string, records []Record) error

	// GetBatch retrieves every id in one call, for one tenant. The
	// returned slice has exactly one Fetched per requested id, in no
	// particular order; ids not found are reported with Found=false
	// rather than omitted.
	GetBatch(ctx context.Context, tenant string, ids []string) ([]Fetched, error)
}

// MemoryStore is an in-process BlobStore backed by a map, suitable for
// tests and other uses that need no real durability.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Fetched
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Fetched)}
}

func (s *MemoryStore) PutBatch(ctx context.Context, tenant string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.data[tenant+"/"+r.ID] = Fetched{ID: r.ID, Data: r.Data, Metadata: r.Metadata, Found: true}
	}
	return nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, tenant string, ids []string) ([]Fetched, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fetched, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.data[tenant+"/"+id]; ok {
			out = append(out, f)
		} else {
			out = append(out, Fetched{ID: id, Found: false})
		}
	}
	return out, nil
}
