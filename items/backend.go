package items

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Backend stores items.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: operations on unknown ids return ErrNotFound.
type Backend interface {
	List(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, id string) (Summary, error)
	Details(ctx context.Context, id string) (Details, error)
	Add(ctx context.Context, name, detailsName string) (Item, error)
	Rename(ctx context.Context, id, name string) error
	RenameDetails(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// MemoryOptions configures a MemoryBackend.
type MemoryOptions struct {
	// Latency delays every call, imitating a remote backend.
	Latency time.Duration

	// NewID assigns item and details ids. Default: uuid.NewString.
	NewID func() string
}

// MemoryBackend keeps items in memory in insertion order.
type MemoryBackend struct {
	opts  MemoryOptions
	mu    sync.RWMutex
	items []Item
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend(opts MemoryOptions) *MemoryBackend {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &MemoryBackend{opts: opts}
}

func (b *MemoryBackend) wait(ctx context.Context) error {
	if b.opts.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(b.opts.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *MemoryBackend) indexLocked(id string) int {
	return slices.IndexFunc(b.items, func(it Item) bool { return it.ID == id })
}

// List returns every item's summary.
func (b *MemoryBackend) List(ctx context.Context) ([]Summary, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Summary, 0, len(b.items))
	for _, it := range b.items {
		out = append(out, it.Summary())
	}
	return out, nil
}

// Get returns the summary of item id.
func (b *MemoryBackend) Get(ctx context.Context, id string) (Summary, error) {
	if err := b.wait(ctx); err != nil {
		return Summary{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := b.indexLocked(id)
	if i < 0 {
		return Summary{}, ErrNotFound
	}
	return b.items[i].Summary(), nil
}

// Details returns the details of item id.
func (b *MemoryBackend) Details(ctx context.Context, id string) (Details, error) {
	if err := b.wait(ctx); err != nil {
		return Details{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := b.indexLocked(id)
	if i < 0 {
		return Details{}, ErrNotFound
	}
	return b.items[i].Details, nil
}

// Add appends a new item.
func (b *MemoryBackend) Add(ctx context.Context, name, detailsName string) (Item, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(detailsName) == "" {
		return Item{}, ErrInvalidName
	}
	if err := b.wait(ctx); err != nil {
		return Item{}, err
	}
	it := Item{
		ID:      b.opts.NewID(),
		Name:    name,
		Details: Details{ID: b.opts.NewID(), Name: detailsName},
	}

	b.mu.Lock()
	b.items = append(b.items, it)
	b.mu.Unlock()
	return it, nil
}

// Rename sets the name of item id.
func (b *MemoryBackend) Rename(ctx context.Context, id, name string) error {
	return b.update(ctx, id, name, func(it *Item) { it.Name = name })
}

// RenameDetails sets the details name of item id.
func (b *MemoryBackend) RenameDetails(ctx context.Context, id, name string) error {
	return b.update(ctx, id, name, func(it *Item) { it.Details.Name = name })
}

func (b *MemoryBackend) update(ctx context.Context, id, name string, apply func(*Item)) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	apply(&b.items[i])
	return nil
}

// Delete removes item id.
func (b *MemoryBackend) Delete(ctx context.Context, id string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	b.items = slices.Delete(b.items, i, i+1)
	return nil
}
