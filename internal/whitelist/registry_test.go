package whitelist

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lessucettes/chatgate/internal/testutils"
)

func TestRegistry_SeedOnlyFillsMissingLists(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewInMemoryStore()
	require.NoError(t, s.PutList(ctx, "group", []string{"already"}))

	r := NewRegistry(s)
	err := r.Seed(ctx, map[Category][]string{
		Friend: {" 1 ", "", "2", "1"},
		Group:  {"ignored"},
	})
	require.NoError(t, err)

	friend, err := r.Entries(ctx, Friend)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, friend)

	group, err := r.Entries(ctx, Group)
	require.NoError(t, err)
	require.Equal(t, []string{"already"}, group, "stored lists win over configuration")

	global, err := r.Entries(ctx, Global)
	require.NoError(t, err)
	require.Empty(t, global)
}

func TestRegistry_AddRemove(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewInMemoryStore()
	r := NewRegistry(s)

	added, err := r.Add(ctx, Friend, " 12345 ")
	require.NoError(t, err)
	require.True(t, added)

	added, err = r.Add(ctx, Friend, "12345")
	require.NoError(t, err)
	require.False(t, added, "already present")

	added, err = r.Add(ctx, Friend, "qq:FriendMessage:6")
	require.NoError(t, err)
	require.True(t, added)

	list, err := r.Entries(ctx, Friend)
	require.NoError(t, err)
	require.Equal(t, []string{"12345", "qq:FriendMessage:6"}, list)

	stored, err := s.GetList(ctx, "friend")
	require.NoError(t, err)
	require.Equal(t, list, stored, "cache and store agree")

	removed, err := r.Remove(ctx, Friend, "404")
	require.NoError(t, err)
	require.False(t, removed, "not present")

	removed, err = r.Remove(ctx, Friend, "12345")
	require.NoError(t, err)
	require.True(t, removed)

	list, err = r.Entries(ctx, Friend)
	require.NoError(t, err)
	require.Equal(t, []string{"qq:FriendMessage:6"}, list)

	_, err = r.Add(ctx, Friend, "  ")
	require.ErrorIs(t, err, ErrEmptyEntry)
	_, err = r.Remove(ctx, Friend, "")
	require.ErrorIs(t, err, ErrEmptyEntry)
}

func TestRegistry_EntriesReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewInMemoryStore()
	require.NoError(t, s.PutList(ctx, "global", []string{"1"}))
	r := NewRegistry(s)

	list, err := r.Entries(ctx, Global)
	require.NoError(t, err)
	list[0] = "mutated"

	again, err := r.Entries(ctx, Global)
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, again)
}

func TestRegistry_CachesLoads(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewInMemoryStore()
	r := NewRegistry(s)

	var wg sync.WaitGroup
	const N = 50
	wg.Add(N)
	for i := 0; i < N; i++ {
		go func() {
			defer wg.Done()
			_, _ = r.Entries(ctx, Group)
		}()
	}
	wg.Wait()

	calls := s.Calls()
	require.LessOrEqual(t, calls, N)
	_, err := r.Entries(ctx, Group)
	require.NoError(t, err)
	require.Equal(t, calls, s.Calls(), "cached list must not hit the store again")
}

func TestRegistry_StoreErrors(t *testing.T) {
	ctx := context.Background()
	s := testutils.NewInMemoryStore()
	require.NoError(t, s.PutList(ctx, "friend", []string{"1"}))
	r := NewRegistry(s)
	require.NoError(t, r.Load(ctx))

	s.SetError(errors.New("disk on fire"))

	list, err := r.Entries(ctx, Friend)
	require.NoError(t, err, "loaded lists are served from memory")
	require.Equal(t, []string{"1"}, list)

	_, err = r.Add(ctx, Friend, "2")
	require.Error(t, err)

	list, err = r.Entries(ctx, Friend)
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, list, "failed writes leave the cache untouched")

	fresh := NewRegistry(s)
	_, err = fresh.Entries(ctx, Group)
	require.Error(t, err)
}
