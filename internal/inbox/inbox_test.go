package inbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < MaxPerOwner+5; i++ {
		require.NoError(t, store.Push(ctx, "alice", Notification{ActivityID: fmt.Sprintf("a%d", i), Status: "verified"}))
	}
	require.NoError(t, store.Push(ctx, "bob", Notification{ActivityID: "b1", Status: "rejected"}))

	all, err := store.List(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, MaxPerOwner)
	require.Equal(t, fmt.Sprintf("a%d", MaxPerOwner+4), all[0].ActivityID)

	top, err := store.List(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)

	none, err := store.List(ctx, "carol", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}
