// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vpriesta/mds-form/internal/store"
)

// Options describes backend-specific expectations.
type Options struct {
	// Recency is true when List returns newest-updated rows first. Backends
	// without it keep insertion order.
	Recency bool
}

// Run exercises the store.Backend contract against backends built by newBackend.
// Each subtest gets a fresh backend.
func Run(t *testing.T, newBackend func(t *testing.T) store.Backend, opts Options) {
	t.Helper()
	base := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		row, err := b.Get(context.Background(), "nope")
		require.NoError(t, err)
		require.Nil(t, row)
	})

	t.Run("UpsertRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		stored, err := b.Upsert(ctx, store.Row{ActivityID: "a1", UserID: "alice", Status: "draft", Data: `{"title":"X"}`, UpdatedAt: base})
		require.NoError(t, err)
		require.Equal(t, "alice", stored.UserID)

		row, err := b.Get(ctx, "a1")
		require.NoError(t, err)
		require.NotNil(t, row)
		require.Equal(t, "a1", row.ActivityID)
		require.Equal(t, "alice", row.UserID)
		require.Equal(t, "draft", row.Status)
		require.JSONEq(t, `{"title":"X"}`, row.Data)
		require.WithinDuration(t, base, row.UpdatedAt, time.Second)
	})

	t.Run("UpsertKeepsOwnerAndClampsTime", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		_, err := b.Upsert(ctx, store.Row{ActivityID: "a1", UserID: "alice", Status: "draft", Data: `{}`, UpdatedAt: base})
		require.NoError(t, err)

		stored, err := b.Upsert(ctx, store.Row{ActivityID: "a1", UserID: "mallory", Status: "submitted", Data: `{"v":2}`, UpdatedAt: base.Add(-time.Hour)})
		require.NoError(t, err)
		require.Equal(t, "alice", stored.UserID)

		row, err := b.Get(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, "alice", row.UserID)
		require.Equal(t, "submitted", row.Status)
		require.JSONEq(t, `{"v":2}`, row.Data)
		require.False(t, row.UpdatedAt.Before(base.Add(-time.Second)), "updated_at went backwards")
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		ok, err := b.UpdateStatus(ctx, "missing", "submitted", base)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = b.Upsert(ctx, store.Row{ActivityID: "a1", UserID: "alice", Status: "draft", Data: `{"k":1}`, UpdatedAt: base})
		require.NoError(t, err)

		ok, err = b.UpdateStatus(ctx, "a1", "submitted", base.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		row, err := b.Get(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, "submitted", row.Status)
		require.JSONEq(t, `{"k":1}`, row.Data)
		require.WithinDuration(t, base.Add(time.Minute), row.UpdatedAt, time.Second)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		ok, err := b.Delete(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = b.Upsert(ctx, store.Row{ActivityID: "a1", UserID: "alice", Status: "draft", Data: `{}`, UpdatedAt: base})
		require.NoError(t, err)
		_, err = b.Upsert(ctx, store.Row{ActivityID: "a2", UserID: "alice", Status: "draft", Data: `{}`, UpdatedAt: base})
		require.NoError(t, err)

		ok, err = b.Delete(ctx, "a1")
		require.NoError(t, err)
		require.True(t, ok)

		row, err := b.Get(ctx, "a1")
		require.NoError(t, err)
		require.Nil(t, row)

		row, err = b.Get(ctx, "a2")
		require.NoError(t, err)
		require.NotNil(t, row)
	})

	t.Run("ListFilters", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		seed := []store.Row{
			{ActivityID: "a1", UserID: "alice", Status: "draft"},
			{ActivityID: "a2", UserID: " alice ", Status: "Submitted"},
			{ActivityID: "a3", UserID: "bob", Status: "submitted"},
			{ActivityID: "a4", UserID: "alice", Status: "draft"},
		}
		for i, row := range seed {
			row.Data = `{}`
			row.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
			_, err := b.Upsert(ctx, row)
			require.NoError(t, err)
		}

		all, err := b.List(ctx, store.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 4)

		alice, err := b.List(ctx, store.Filter{Owner: "alice"})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a1", "a2", "a4"}, ids(alice))

		submitted, err := b.List(ctx, store.Filter{Status: "SUBMITTED"})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"a2", "a3"}, ids(submitted))

		aliceDrafts, err := b.List(ctx, store.Filter{Owner: "alice", Status: "draft", Limit: 1})
		require.NoError(t, err)
		require.Len(t, aliceDrafts, 1)

		if opts.Recency {
			require.Equal(t, []string{"a4", "a3", "a2", "a1"}, ids(all))
			require.Equal(t, "a4", aliceDrafts[0].ActivityID)
		} else {
			require.Equal(t, []string{"a1", "a2", "a3", "a4"}, ids(all))
			require.Equal(t, "a1", aliceDrafts[0].ActivityID)
		}
	})
}

func ids(rows []store.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ActivityID
	}
	return out
}
