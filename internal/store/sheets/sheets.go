// Package sheets stores activity rows in a Google Sheets worksheet, one row per
// activity under the header activity_id,user_id,status,data,updated_at.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vpriesta/mds-form/internal/store"
)

// Header is the first row of the worksheet.
var Header = []string{"activity_id", "user_id", "status", "data", "updated_at"}

// Backend reads and writes a single worksheet. Every operation reads the sheet
// to locate rows, so the mutex only serialises writers within this process.
type Backend struct {
	client        ValuesClient
	spreadsheetID string
	worksheet     string
	sheetID       int64

	mu sync.Mutex
}

// Open resolves the worksheet and writes the header row when the sheet is empty.
func Open(ctx context.Context, client ValuesClient, spreadsheetID, worksheet string) (*Backend, error) {
	b := &Backend{client: client, spreadsheetID: spreadsheetID, worksheet: worksheet}

	id, err := client.SheetID(ctx, spreadsheetID, worksheet)
	if err != nil {
		return nil, fmt.Errorf("sheets: resolve worksheet: %w", err)
	}
	b.sheetID = id

	first, err := client.Get(ctx, spreadsheetID, b.rng("A1:E1"))
	if err != nil {
		return nil, fmt.Errorf("sheets: read header: %w", err)
	}
	if len(first) == 0 || isBlank(first[0]) {
		if err := client.Update(ctx, spreadsheetID, b.rng("A1:E1"), [][]string{Header}); err != nil {
			return nil, fmt.Errorf("sheets: write header: %w", err)
		}
		return b, nil
	}
	for i, want := range Header {
		if i >= len(first[0]) || !strings.EqualFold(strings.TrimSpace(first[0][i]), want) {
			return nil, fmt.Errorf("sheets: unexpected header %v", first[0])
		}
	}
	return b, nil
}

// Name implements store.Backend.
func (b *Backend) Name() string { return "sheets" }

// Upsert implements store.Backend. Existing rows are rewritten in place,
// new rows are appended.
func (b *Backend) Upsert(ctx context.Context, row store.Row) (store.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.readAll(ctx)
	if err != nil {
		return store.Row{}, err
	}

	if n, existing := find(rows, row.ActivityID); existing != nil {
		row.UserID = existing.UserID
		row.UpdatedAt = store.Clamp(existing.UpdatedAt, row.UpdatedAt)
		rng := b.rng(fmt.Sprintf("A%d:E%d", n, n))
		if err := b.client.Update(ctx, b.spreadsheetID, rng, [][]string{toCells(row)}); err != nil {
			return store.Row{}, fmt.Errorf("sheets: update row %d: %w", n, err)
		}
		return row, nil
	}

	if err := b.client.Append(ctx, b.spreadsheetID, b.rng("A:E"), [][]string{toCells(row)}); err != nil {
		return store.Row{}, fmt.Errorf("sheets: append: %w", err)
	}
	return row, nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, activityID string) (*store.Row, error) {
	rows, err := b.readAll(ctx)
	if err != nil {
		return nil, err
	}
	_, row := find(rows, activityID)
	return row, nil
}

// List implements store.Backend. Rows keep sheet order.
func (b *Backend) List(ctx context.Context, f store.Filter) ([]store.Row, error) {
	rows, err := b.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(rows), nil
}

// UpdateStatus implements store.Backend by rewriting the status and
// updated_at cells.
func (b *Backend) UpdateStatus(ctx context.Context, activityID, status string, at time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.readAll(ctx)
	if err != nil {
		return false, err
	}
	n, existing := find(rows, activityID)
	if existing == nil {
		return false, nil
	}

	if err := b.client.Update(ctx, b.spreadsheetID, b.rng(fmt.Sprintf("C%d", n)), [][]string{{status}}); err != nil {
		return false, fmt.Errorf("sheets: update status row %d: %w", n, err)
	}
	stamp := formatTime(store.Clamp(existing.UpdatedAt, at))
	if err := b.client.Update(ctx, b.spreadsheetID, b.rng(fmt.Sprintf("E%d", n)), [][]string{{stamp}}); err != nil {
		return false, fmt.Errorf("sheets: update timestamp row %d: %w", n, err)
	}
	return true, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, activityID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.readAll(ctx)
	if err != nil {
		return false, err
	}
	n, existing := find(rows, activityID)
	if existing == nil {
		return false, nil
	}
	if err := b.client.DeleteRow(ctx, b.spreadsheetID, b.sheetID, n); err != nil {
		return false, fmt.Errorf("sheets: delete row %d: %w", n, err)
	}
	return true, nil
}

// readAll returns the data rows below the header. Row i of the result lives on
// sheet row i+2.
func (b *Backend) readAll(ctx context.Context) ([]store.Row, error) {
	values, err := b.client.Get(ctx, b.spreadsheetID, b.rng("A:E"))
	if err != nil {
		return nil, fmt.Errorf("sheets: read: %w", err)
	}
	if len(values) < 2 {
		return nil, nil
	}

	rows := make([]store.Row, 0, len(values)-1)
	for _, cells := range values[1:] {
		rows = append(rows, fromCells(cells))
	}
	return rows, nil
}

func (b *Backend) rng(cells string) string {
	return "'" + strings.ReplaceAll(b.worksheet, "'", "''") + "'!" + cells
}

func find(rows []store.Row, activityID string) (int, *store.Row) {
	for i := range rows {
		if rows[i].ActivityID == activityID {
			row := rows[i]
			return i + 2, &row
		}
	}
	return 0, nil
}

func toCells(row store.Row) []string {
	return []string{row.ActivityID, row.UserID, row.Status, row.Data, formatTime(row.UpdatedAt)}
}

func fromCells(cells []string) store.Row {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return store.Row{
		ActivityID: cell(0),
		UserID:     cell(1),
		Status:     cell(2),
		Data:       cell(3),
		UpdatedAt:  parseTime(cell(4)),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 and the zone-less ISO timestamps written by
// earlier versions of the sheet. Unreadable cells become the zero time.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
