package sheets

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vpriesta/mds-form/internal/store"
	"github.com/vpriesta/mds-form/internal/store/storetest"
)

// fakeClient keeps one worksheet as a grid of cells.
type fakeClient struct {
	grid    [][]string
	updates []string
	deleted []int
	failGet bool
}

func (f *fakeClient) Get(_ context.Context, _ string, rng string) ([][]string, error) {
	if f.failGet {
		return nil, errors.New("rate limited")
	}
	_, top, _, bottom := parseRange(rng)
	out := [][]string{}
	for i, row := range f.grid {
		n := i + 1
		if top > 0 && n < top {
			continue
		}
		if bottom > 0 && n > bottom {
			break
		}
		out = append(out, append([]string(nil), row...))
	}
	return out, nil
}

func (f *fakeClient) Update(_ context.Context, _ string, rng string, values [][]string) error {
	f.updates = append(f.updates, rng)
	col, top, _, _ := parseRange(rng)
	for i, row := range values {
		r := top - 1 + i
		for len(f.grid) <= r {
			f.grid = append(f.grid, []string{})
		}
		for j, cell := range row {
			c := col + j
			for len(f.grid[r]) <= c {
				f.grid[r] = append(f.grid[r], "")
			}
			f.grid[r][c] = cell
		}
	}
	return nil
}

func (f *fakeClient) Append(_ context.Context, _ string, _ string, values [][]string) error {
	for _, row := range values {
		f.grid = append(f.grid, append([]string(nil), row...))
	}
	return nil
}

func (f *fakeClient) DeleteRow(_ context.Context, _ string, sheetID int64, row int) error {
	if sheetID != 7 {
		return errors.New("wrong sheet")
	}
	f.deleted = append(f.deleted, row)
	f.grid = append(f.grid[:row-1], f.grid[row:]...)
	return nil
}

func (f *fakeClient) SheetID(_ context.Context, _ string, title string) (int64, error) {
	if title != "Sheet1" {
		return 0, errors.New("not found")
	}
	return 7, nil
}

// parseRange handles 'Title'!A1:E1, 'Title'!A:E and 'Title'!C5 forms. It returns
// the zero-based start column and the one-based first and last rows (0 when
// unbounded).
func parseRange(rng string) (col, top, endCol, bottom int) {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	parts := strings.SplitN(rng, ":", 2)
	col, top = parseCell(parts[0])
	endCol, bottom = col, top
	if len(parts) == 2 {
		endCol, bottom = parseCell(parts[1])
	}
	return col, top, endCol, bottom
}

func parseCell(ref string) (int, int) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	col := int(ref[0] - 'A')
	row := 0
	if i < len(ref) {
		row, _ = strconv.Atoi(ref[i:])
	}
	return col, row
}

func openFake(t *testing.T, client *fakeClient) *Backend {
	t.Helper()
	b, err := Open(context.Background(), client, "sheet-id", "Sheet1")
	require.NoError(t, err)
	return b
}

func TestBackendContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return openFake(t, &fakeClient{})
	}, storetest.Options{Recency: false})
}

func TestOpenWritesHeaderOnEmptySheet(t *testing.T) {
	client := &fakeClient{}
	openFake(t, client)
	require.Equal(t, [][]string{Header}, client.grid)
}

func TestOpenRejectsForeignHeader(t *testing.T) {
	client := &fakeClient{grid: [][]string{{"id", "name"}}}
	_, err := Open(context.Background(), client, "sheet-id", "Sheet1")
	require.Error(t, err)

	_, err = Open(context.Background(), &fakeClient{}, "sheet-id", "Other")
	require.Error(t, err)
}

func TestUpsertRewritesRowInPlace(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	b := openFake(t, client)
	now := time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC)

	for _, id := range []string{"a1", "a2"} {
		_, err := b.Upsert(ctx, store.Row{ActivityID: id, UserID: "alice", Status: "draft", Data: `{}`, UpdatedAt: now})
		require.NoError(t, err)
	}
	_, err := b.Upsert(ctx, store.Row{ActivityID: "a2", UserID: "alice", Status: "submitted", Data: `{"x":1}`, UpdatedAt: now.Add(time.Minute)})
	require.NoError(t, err)

	require.Len(t, client.grid, 3)
	require.Equal(t, "'Sheet1'!A3:E3", client.updates[len(client.updates)-1])
	require.Equal(t, []string{"a2", "alice", "submitted", `{"x":1}`, "2024-07-01T09:01:00Z"}, client.grid[2])
}

func TestUpdateStatusTouchesStatusAndTimestampCells(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	b := openFake(t, client)
	now := time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC)

	_, err := b.Upsert(ctx, store.Row{ActivityID: "a1", UserID: "alice", Status: "draft", Data: `{"k":true}`, UpdatedAt: now})
	require.NoError(t, err)

	client.updates = nil
	ok, err := b.UpdateStatus(ctx, "a1", "submitted", now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"'Sheet1'!C2", "'Sheet1'!E2"}, client.updates)
	require.Equal(t, `{"k":true}`, client.grid[1][3])
}

func TestDeleteRemovesSheetRow(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	b := openFake(t, client)

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := b.Upsert(ctx, store.Row{ActivityID: id, UserID: "alice", Status: "draft", Data: `{}`, UpdatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}
	ok, err := b.Delete(ctx, "a2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int{3}, client.deleted)
}

func TestLegacyTimestampsAndShortRows(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{grid: [][]string{
		Header,
		{"a1", "alice", "draft", "", "2024-03-01T10:00:00.123456"},
		{"a2", "bob", "submitted"},
	}}
	b := openFake(t, client)

	row, err := b.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.March, 1, 10, 0, 0, 123456000, time.UTC), row.UpdatedAt)

	row, err = b.Get(ctx, "a2")
	require.NoError(t, err)
	require.Empty(t, row.Data)
	require.True(t, row.UpdatedAt.IsZero())
}

func TestReadFailureSurfacesError(t *testing.T) {
	client := &fakeClient{}
	b := openFake(t, client)
	client.failGet = true

	_, err := b.List(context.Background(), store.Filter{})
	require.Error(t, err)

	s := store.New(b)
	require.Empty(t, s.ListAll(context.Background()))
}
