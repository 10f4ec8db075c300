package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"messenger-sync/internal/models"
)

// MemoryRepository is an in-process document tree with the same semantics
// as DocumentRepository. Each Set is atomic at its own path only.
type MemoryRepository struct {
	mu       sync.RWMutex
	root     any
	watches  *watchSet
	dispatch *dispatcher
}

// NewMemoryRepository creates an empty in-memory document store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		watches:  newWatchSet(),
		dispatch: newDispatcher(),
	}
}

// Get returns the JSON value stored at path
func (r *MemoryRepository) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot(SplitPath(path))
}

// Set replaces the value at path, creating intermediate objects as needed
func (r *MemoryRepository) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	segs := SplitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("failed to set document: empty path")
	}

	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.root = assign(r.root, segs, v)

	for _, w := range r.watches.affected(segs) {
		raw, err := r.snapshot(w.segs)
		r.dispatch.enqueue(w, w.nextRead(), raw, err)
	}

	return nil
}

// Observe registers onChange for path. It is called once with the current
// value and again after every write that can change it, until the returned
// watch is cancelled.
func (r *MemoryRepository) Observe(ctx context.Context, path string, onChange ChangeFunc) (*Watch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.watches.add(path, onChange)
	raw, err := r.snapshot(w.segs)
	r.dispatch.enqueue(w, w.nextRead(), raw, err)

	return w, nil
}

// Close stops watch delivery
func (r *MemoryRepository) Close() {
	r.dispatch.close()
}

func (r *MemoryRepository) snapshot(segs []string) (json.RawMessage, error) {
	node, ok := lookup(r.root, segs)
	if !ok {
		return nil, models.ErrNotFound
	}
	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}
