package memory

import (
	"context"
	"sync"
	"time"

	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/google/uuid"
)

// ensure Backend implements storage.Backend
var _ storage.Backend = (*Backend)(nil)

// Backend keeps keywords in process memory, in creation order.
type Backend struct {
	mu    sync.RWMutex
	byID  map[string]*storage.Keyword
	order []string
	now   func() time.Time
}

// New creates an empty in-memory storage.Backend.
func New() *Backend {
	return &Backend{
		byID: make(map[string]*storage.Keyword),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (b *Backend) Create(ctx context.Context, ownerID, name string) (*storage.Keyword, error) {
	k := b.Pending(ownerID, name)
	b.Put(k)
	out := *k
	return &out, nil
}

// Pending builds a new pending record without storing it.
func (b *Backend) Pending(ownerID, name string) *storage.Keyword {
	now := b.now()
	return &storage.Keyword{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        name,
		AdsTopURLs:  []string{},
		ResultURLs:  []string{},
		FetchStatus: storage.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Put stores k as-is, replacing any record with the same id. It is used to
// replay persisted records into memory.
func (b *Backend) Put(k *storage.Keyword) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[k.ID]; !ok {
		b.order = append(b.order, k.ID)
	}
	cp := *k
	b.byID[k.ID] = &cp
}

func (b *Backend) Update(ctx context.Context, id string, outcome storage.Outcome) error {
	_, err := b.Transition(id, outcome)
	return err
}

// Transition applies the outcome to a pending record and returns the new state.
func (b *Backend) Transition(id string, outcome storage.Outcome) (*storage.Keyword, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	updated, err := b.preview(id, outcome)
	if err != nil {
		return nil, err
	}
	b.byID[id] = updated
	out := *updated
	return &out, nil
}

// Preview returns the state Transition would produce without storing it.
func (b *Backend) Preview(id string, outcome storage.Outcome) (*storage.Keyword, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.preview(id, outcome)
}

// Must be called with b.mu held.
func (b *Backend) preview(id string, outcome storage.Outcome) (*storage.Keyword, error) {
	k, ok := b.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if k.FetchStatus != storage.StatusPending {
		return nil, storage.ErrNotPending
	}
	updated := k.Apply(outcome, b.now())
	return &updated, nil
}

func (b *Backend) Find(ctx context.Context, id string) (*storage.Keyword, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	k, ok := b.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *k
	return &out, nil
}

func (b *Backend) List(ctx context.Context, ownerID string, page, perPage int) ([]*storage.Keyword, int, error) {
	_, perPage, offset := storage.NormalizePage(page, perPage)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var owned []*storage.Keyword
	for _, id := range b.order {
		if k := b.byID[id]; k.OwnerID == ownerID {
			owned = append(owned, k)
		}
	}

	total := len(owned)
	results := []*storage.Keyword{}
	if offset >= total {
		return results, total, nil
	}
	end := min(offset+perPage, total)
	for _, k := range owned[offset:end] {
		out := *k
		results = append(results, &out)
	}
	return results, total, nil
}

func (b *Backend) Close() error {
	return nil
}
