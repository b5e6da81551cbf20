package job

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/internal/common"
)

// Store abstracts job persistence so the state machine carries no global
// state. Implementations must be safe for concurrent use; the state
// machine assumes a single logical writer per job id.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	Put(ctx context.Context, j *Job) error
	List(ctx context.Context) ([]*Job, error)
}

// MemoryStore keeps jobs in a map. Jobs are copied on the way in and out
// so callers never share the stored instance.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *MemoryStore) Put(_ context.Context, j *Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = raw
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, raw := range s.jobs {
		var j Job
		if err := json.Unmarshal(raw, &j); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}
