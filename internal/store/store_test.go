package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lessucettes/chatgate/internal/config"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(&config.DBConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_GetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetList(ctx, "friend")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutList(ctx, "friend", nil))
	entries, err := s.GetList(ctx, "friend")
	require.NoError(t, err, "an empty stored list is not missing")
	require.Empty(t, entries)
}

func TestBadgerStore_AppendKeepsOrderAndSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"300", "100", "qq:GroupMessage:200"} {
		added, err := s.AppendEntry(ctx, "group", id)
		require.NoError(t, err)
		require.True(t, added)
	}

	added, err := s.AppendEntry(ctx, "group", "100")
	require.NoError(t, err)
	require.False(t, added, "duplicate must not be appended")

	entries, err := s.GetList(ctx, "group")
	require.NoError(t, err)
	require.Equal(t, []string{"300", "100", "qq:GroupMessage:200"}, entries)
}

func TestBadgerStore_Remove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	removed, err := s.RemoveEntry(ctx, "global", "1")
	require.NoError(t, err)
	require.False(t, removed, "removing from a missing list is a no-op")

	require.NoError(t, s.PutList(ctx, "global", []string{"1", "2", "3"}))

	removed, err = s.RemoveEntry(ctx, "global", "4")
	require.NoError(t, err)
	require.False(t, removed)

	removed, err = s.RemoveEntry(ctx, "global", "2")
	require.NoError(t, err)
	require.True(t, removed)

	entries, err := s.GetList(ctx, "global")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, entries)
}

func TestBadgerStore_ListsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.AppendEntry(ctx, "friend", "1")
	require.NoError(t, err)
	_, err = s.AppendEntry(ctx, "group", "2")
	require.NoError(t, err)

	friend, err := s.GetList(ctx, "friend")
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, friend)

	_, err = s.GetList(ctx, "global")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const N = 20
	var wg sync.WaitGroup
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func() {
			defer wg.Done()
			// Conflicts are retried inside AppendEntry but it may still give
			// up under this much contention.
			for {
				_, err := s.AppendEntry(ctx, "friend", "same")
				if err == nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	entries, err := s.GetList(ctx, "friend")
	require.NoError(t, err)
	require.Equal(t, []string{"same"}, entries)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	s, err := NewBadgerStore(&config.DBConfig{Path: dir})
	require.NoError(t, err)
	_, err = s.AppendEntry(ctx, "friend", "12345")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBadgerStore(&config.DBConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.GetList(ctx, "friend")
	require.NoError(t, err)
	require.Equal(t, []string{"12345"}, entries)
}
