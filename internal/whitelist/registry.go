package whitelist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lessucettes/chatgate/internal/store"
)

var ErrEmptyEntry = errors.New("whitelist entry must not be empty")

// Registry serves the whitelists from memory and writes changes through to
// the store. Lists are loaded lazily; concurrent first reads of the same
// category share one store lookup.
type Registry struct {
	store store.Store
	sf    singleflight.Group

	// writeMu serializes mutations so the cached order matches the store.
	writeMu sync.Mutex
	mu      sync.RWMutex
	lists   map[Category][]string
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{
		store: s,
		lists: make(map[Category][]string),
	}
}

// normalize trims entries, drops blanks and keeps the first occurrence of
// duplicates.
func normalize(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Seed stores initial entries for every category the store has never seen.
// Categories that already have a stored list, even an empty one, are left
// alone.
func (r *Registry) Seed(ctx context.Context, initial map[Category][]string) error {
	for _, c := range Categories() {
		_, err := r.store.GetList(ctx, string(c))
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to read %s whitelist: %w", c, err)
		}
		entries := normalize(initial[c])
		if err := r.store.PutList(ctx, string(c), entries); err != nil {
			return fmt.Errorf("failed to seed %s whitelist: %w", c, err)
		}
		slog.Info("Seeded whitelist from configuration", "category", c, "entries", len(entries))
	}
	return nil
}

// Load reads every category from the store, replacing what is cached.
func (r *Registry) Load(ctx context.Context) error {
	for _, c := range Categories() {
		list, err := r.fetch(ctx, c)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.lists[c] = list
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) fetch(ctx context.Context, c Category) ([]string, error) {
	list, err := r.store.GetList(ctx, string(c))
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s whitelist: %w", c, err)
	}
	return list, nil
}

// Entries returns a copy of the list for c in insertion order.
func (r *Registry) Entries(ctx context.Context, c Category) ([]string, error) {
	r.mu.RLock()
	list, ok := r.lists[c]
	r.mu.RUnlock()
	if ok {
		return slices.Clone(list), nil
	}

	v, err, _ := r.sf.Do(string(c), func() (any, error) {
		r.mu.RLock()
		list, ok := r.lists[c]
		r.mu.RUnlock()
		if ok {
			return list, nil
		}
		list, err := r.fetch(ctx, c)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.lists[c] = list
		r.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]string)), nil
}

// Add appends id to c. added is false when id was already present.
func (r *Registry) Add(ctx context.Context, c Category, id string) (added bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrEmptyEntry
	}
	// Make sure the cached copy exists before it is patched below.
	if _, err := r.Entries(ctx, c); err != nil {
		return false, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	added, err = r.store.AppendEntry(ctx, string(c), id)
	if err != nil {
		return false, fmt.Errorf("failed to add %q to %s whitelist: %w", id, c, err)
	}
	if added {
		r.mu.Lock()
		if !slices.Contains(r.lists[c], id) {
			r.lists[c] = append(slices.Clone(r.lists[c]), id)
		}
		r.mu.Unlock()
	}
	return added, nil
}

// Remove deletes id from c. removed is false when id was not present.
func (r *Registry) Remove(ctx context.Context, c Category, id string) (removed bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrEmptyEntry
	}
	if _, err := r.Entries(ctx, c); err != nil {
		return false, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	removed, err = r.store.RemoveEntry(ctx, string(c), id)
	if err != nil {
		return false, fmt.Errorf("failed to remove %q from %s whitelist: %w", id, c, err)
	}
	if removed {
		r.mu.Lock()
		if i := slices.Index(r.lists[c], id); i >= 0 {
			r.lists[c] = slices.Delete(slices.Clone(r.lists[c]), i, i+1)
		}
		r.mu.Unlock()
	}
	return removed, nil
}
