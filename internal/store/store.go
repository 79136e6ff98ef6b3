package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/lessucettes/chatgate/internal/config"
)

const (
	listPrefix         = "wl:"
	maxConflictRetries = 10
)

// ErrNotFound is returned by GetList when no list was ever stored under the
// name. An empty stored list is not an error.
var ErrNotFound = errors.New("list not found")

// Store persists named, ordered string lists.
type Store interface {
	GetList(ctx context.Context, name string) ([]string, error)
	PutList(ctx context.Context, name string, entries []string) error
	// AppendEntry adds entry to the end of the list unless it is already
	// present. added reports whether the list changed.
	AppendEntry(ctx context.Context, name, entry string) (added bool, err error)
	// RemoveEntry deletes the first occurrence of entry. removed reports
	// whether the list changed.
	RemoveEntry(ctx context.Context, name, entry string) (removed bool, err error)
	Close() error
}

// BadgerStore keeps each list under a single key as a JSON array, so the
// insertion order survives restarts.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts slog.Logger to be used as a logger for BadgerDB.
type badgerLogger struct {
	*slog.Logger
}

func (l *badgerLogger) Warningf(f string, v ...any) { l.Warn(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Errorf(f string, v ...any)   { l.Error(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Infof(f string, v ...any)    {}
func (l *badgerLogger) Debugf(f string, v ...any)   {}

func NewBadgerStore(cfg *config.DBConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.ValueThreshold = 1024
	opts.Logger = &badgerLogger{slog.Default()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func listKey(name string) []byte {
	return []byte(listPrefix + name)
}

func readList(txn *badger.Txn, name string) ([]string, error) {
	item, err := txn.Get(listKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var entries []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode list %q: %w", name, err)
	}
	return entries, nil
}

func writeList(txn *badger.Txn, name string, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	val, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return txn.Set(listKey(name), val)
}

func (s *BadgerStore) GetList(ctx context.Context, name string) ([]string, error) {
	var entries []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entries, err = readList(txn, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *BadgerStore) PutList(ctx context.Context, name string, entries []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return writeList(txn, name, entries)
	})
}

// update retries fn when a concurrent writer touched the same list.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) AppendEntry(ctx context.Context, name, entry string) (bool, error) {
	added := false
	err := s.update(func(txn *badger.Txn) error {
		added = false
		entries, err := readList(txn, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if slices.Contains(entries, entry) {
			return nil
		}
		added = true
		return writeList(txn, name, append(entries, entry))
	})
	if err != nil {
		return false, err
	}
	if added {
		slog.Info("Whitelist entry added", "list", name, "entry", entry)
	}
	return added, nil
}

func (s *BadgerStore) RemoveEntry(ctx context.Context, name, entry string) (bool, error) {
	removed := false
	err := s.update(func(txn *badger.Txn) error {
		removed = false
		entries, err := readList(txn, name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		i := slices.Index(entries, entry)
		if i < 0 {
			return nil
		}
		removed = true
		return writeList(txn, name, slices.Delete(entries, i, i+1))
	})
	if err != nil {
		return false, err
	}
	if removed {
		slog.Info("Whitelist entry removed", "list", name, "entry", entry)
	}
	return removed, nil
}
