package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/FranksOps/kwscout/internal/storage"
	"github.com/FranksOps/kwscout/internal/storage/memory"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// jsonBackend serves reads from memory and appends every state change to an
// NDJSON log. On open the log is replayed and the last line per id wins.
type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
	mem  *memory.Backend
}

// New creates a new NDJSON-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}

	mem := memory.New()
	if err := replay(f, mem); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &jsonBackend{file: f, mem: mem}, nil
}

func replay(f *os.File, mem *memory.Backend) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var k storage.Keyword
		if err := json.Unmarshal(raw, &k); err != nil {
			return fmt.Errorf("corrupt record on line %d: %w", line, err)
		}
		mem.Put(&k)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	return nil
}

// appendLocked writes k to the log. Must be called with b.mu held.
func (b *jsonBackend) appendLocked(k *storage.Keyword) error {
	data, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("failed to encode keyword: %w", err)
	}
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append keyword: %w", err)
	}
	return nil
}

// Create and Update write the log before memory so a failed append leaves
// no state behind.
func (b *jsonBackend) Create(ctx context.Context, ownerID, name string) (*storage.Keyword, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := b.mem.Pending(ownerID, name)
	if err := b.appendLocked(k); err != nil {
		return nil, err
	}
	b.mem.Put(k)
	return k, nil
}

func (b *jsonBackend) Update(ctx context.Context, id string, outcome storage.Outcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	k, err := b.mem.Preview(id, outcome)
	if err != nil {
		return err
	}
	if err := b.appendLocked(k); err != nil {
		return err
	}
	b.mem.Put(k)
	return nil
}

func (b *jsonBackend) Find(ctx context.Context, id string) (*storage.Keyword, error) {
	return b.mem.Find(ctx, id)
}

func (b *jsonBackend) List(ctx context.Context, ownerID string, page, perPage int) ([]*storage.Keyword, int, error) {
	return b.mem.List(ctx, ownerID, page, perPage)
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
