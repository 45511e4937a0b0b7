package sheets

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// ValuesClient is the subset of the Sheets API used by Backend. Ranges use A1
// notation; rows are 1-based.
type ValuesClient interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]string) error
	Append(ctx context.Context, spreadsheetID, rng string, values [][]string) error
	DeleteRow(ctx context.Context, spreadsheetID string, sheetID int64, row int) error
	SheetID(ctx context.Context, spreadsheetID, title string) (int64, error)
}

// ClientOptions turns a credentials setting into client options. The value is
// either an inline service-account JSON document or a path to one; empty means
// application default credentials.
func ClientOptions(credentials string) []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	creds := strings.TrimSpace(credentials)
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

type apiClient struct {
	srv *gsheets.Service
}

// NewClient builds a ValuesClient on the Google Sheets v4 API.
func NewClient(ctx context.Context, credentials string) (ValuesClient, error) {
	srv, err := gsheets.NewService(ctx, ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	return &apiClient{srv: srv}, nil
}

func (c *apiClient) Get(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		out[i] = cells
	}
	return out, nil
}

func (c *apiClient) Update(ctx context.Context, spreadsheetID, rng string, values [][]string) error {
	_, err := c.srv.Spreadsheets.Values.Update(spreadsheetID, rng, toValueRange(values)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (c *apiClient) Append(ctx context.Context, spreadsheetID, rng string, values [][]string) error {
	_, err := c.srv.Spreadsheets.Values.Append(spreadsheetID, rng, toValueRange(values)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *apiClient) DeleteRow(ctx context.Context, spreadsheetID string, sheetID int64, row int) error {
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			DeleteDimension: &gsheets.DeleteDimensionRequest{
				Range: &gsheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row - 1),
					EndIndex:        int64(row),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err := c.srv.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (c *apiClient) SheetID(ctx context.Context, spreadsheetID, title string) (int64, error) {
	resp, err := c.srv.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, sh := range resp.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("worksheet %q not found", title)
}

func toValueRange(values [][]string) *gsheets.ValueRange {
	rows := make([][]interface{}, len(values))
	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		rows[i] = cells
	}
	return &gsheets.ValueRange{Values: rows}
}
