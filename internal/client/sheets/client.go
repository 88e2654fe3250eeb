package sheets

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/lifecycle"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

const (
	DefaultEndpoint  = "https://sheets.googleapis.com/"
	DefaultSheetName = "Sheet1"
)

// Storage is the part of the storage client the importer relies on. It
// shares its authorized transport and authentication checks.
type Storage interface {
	lifecycle.Readier
	HTTPClient() *http.Client
	EnsureAuthenticated(ctx context.Context) (*identity.Principal, error)
	MoveFile(ctx context.Context, id, newParentID string, removeParents []string) (*storage.File, error)
	ListFiles(ctx context.Context, q string) ([]storage.File, error)
}

type Options struct {
	Endpoint string
}

// ImportOptions controls a single import. Zero Title and SheetName get
// dated and "Sheet1" defaults; an empty FolderID leaves the spreadsheet in
// the Drive root.
type ImportOptions struct {
	Title           string
	SheetName       string
	FolderID        string
	ApplyFormatting bool
}

// ImportResult describes a spreadsheet created by ImportJSON.
type ImportResult struct {
	SpreadsheetID   string `json:"spreadsheetId"`
	SpreadsheetURL  string `json:"spreadsheetUrl"`
	Title           string `json:"title"`
	RowsImported    int    `json:"rowsImported"`
	ColumnsImported int    `json:"columnsImported"`
	SheetName       string `json:"sheetName"`
}

// Client imports JSON payloads into new spreadsheets.
type Client struct {
	store Storage
	svc   *sheets.Service
	retry *retry.Policy
	log   logging.Logger
	now   func() time.Time

	gate lifecycle.Gate
}

func New(ctx context.Context, store Storage, policy *retry.Policy, log logging.Logger, opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(store.HTTPClient()), option.WithEndpoint(opts.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		store: store,
		svc:   svc,
		retry: policy,
		log:   log.With("component", "sheets"),
		now:   time.Now,
	}, nil
}

// Start waits up to timeout for the storage client and then marks the
// importer ready.
func (c *Client) Start(ctx context.Context, timeout time.Duration) error {
	if err := lifecycle.WaitFor(ctx, timeout, lifecycle.Dependency{Name: "storage", Readier: c.store}); err != nil {
		return err
	}
	c.gate.Open()
	c.log.Info(ctx, "sheets client ready")
	return nil
}

func (c *Client) Ready() <-chan struct{} {
	return c.gate.Ready()
}

// SpreadsheetURL is the browser link for a spreadsheet.
func SpreadsheetURL(id string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", id)
}

func (c *Client) withDefaults(opts ImportOptions, prefix string) ImportOptions {
	if opts.Title == "" {
		opts.Title = fmt.Sprintf("%s %s", prefix, c.now().Format(time.DateOnly))
	}
	if opts.SheetName == "" {
		opts.SheetName = DefaultSheetName
	}
	return opts
}

// ImportJSON converts data and writes it into a new spreadsheet whose first
// sheet is named opts.SheetName. Moving into the folder and formatting are
// best effort; their failures are logged and do not fail the import.
func (c *Client) ImportJSON(ctx context.Context, data []byte, opts ImportOptions) (*ImportResult, error) {
	opts = c.withDefaults(opts, "JSON Import")

	grid, err := Convert(data)
	if err != nil {
		return nil, err
	}
	if len(grid.Rows) == 0 {
		return nil, common.Validationf("no data to import")
	}
	for _, w := range Validate(data).Warnings {
		c.log.Warn(ctx, "JSON conversion warning", "warning", w)
	}

	if _, err := c.store.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	ss, err := c.createSpreadsheet(ctx, opts.Title, opts.SheetName, opts.FolderID)
	if err != nil {
		return nil, err
	}
	sheetID := firstSheetID(ss)

	if err := c.writeValues(ctx, ss.SpreadsheetId, opts.SheetName, grid); err != nil {
		return nil, err
	}
	if opts.ApplyFormatting {
		c.format(ctx, ss.SpreadsheetId, sheetID, len(grid.Headers))
	}

	res := &ImportResult{
		SpreadsheetID:   ss.SpreadsheetId,
		SpreadsheetURL:  SpreadsheetURL(ss.SpreadsheetId),
		Title:           opts.Title,
		RowsImported:    len(grid.Rows),
		ColumnsImported: len(grid.Headers),
		SheetName:       opts.SheetName,
	}
	if ss.Properties != nil && ss.Properties.Title != "" {
		res.Title = ss.Properties.Title
	}
	c.log.Info(ctx, "JSON import completed", "spreadsheet", res.SpreadsheetID, "rows", res.RowsImported, "columns", res.ColumnsImported)
	return res, nil
}

func (c *Client) createSpreadsheet(ctx context.Context, title, sheetName, folderID string) (*sheets.Spreadsheet, error) {
	ss, err := retry.Value(ctx, c.retry, "create spreadsheet", func(ctx context.Context) (*sheets.Spreadsheet, error) {
		s, err := c.svc.Spreadsheets.Create(&sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{Title: title},
			Sheets:     []*sheets.Sheet{{Properties: &sheets.SheetProperties{Title: sheetName}}},
		}).Fields("spreadsheetId,spreadsheetUrl,properties.title,sheets.properties(sheetId,title)").Context(ctx).Do()
		return s, storage.WrapError("create spreadsheet", err)
	})
	if err != nil {
		return nil, err
	}
	c.log.Info(ctx, "spreadsheet created", "title", title, "id", ss.SpreadsheetId)

	if folderID != "" && folderID != common.RootFolderID {
		if _, err := c.store.MoveFile(ctx, ss.SpreadsheetId, folderID, []string{common.RootFolderID}); err != nil {
			c.log.Warn(ctx, "failed to move spreadsheet to folder", "id", ss.SpreadsheetId, "folder", folderID, "error", err)
		}
	}
	return ss, nil
}

func firstSheetID(ss *sheets.Spreadsheet) int64 {
	if len(ss.Sheets) > 0 && ss.Sheets[0].Properties != nil {
		return ss.Sheets[0].Properties.SheetId
	}
	return 0
}

// a1Range addresses the top-left cell of a sheet, quoting the sheet name.
func a1Range(sheetName string) string {
	return "'" + strings.ReplaceAll(sheetName, "'", "''") + "'!A1"
}

func (c *Client) writeValues(ctx context.Context, id, sheetName string, g Grid) error {
	return c.retry.Do(ctx, "write values", func(ctx context.Context) error {
		_, err := c.svc.Spreadsheets.Values.Update(id, a1Range(sheetName), &sheets.ValueRange{Values: g.Values()}).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return storage.WrapError("write values", err)
	})
}

func (c *Client) batchUpdate(ctx context.Context, op, id string, reqs ...*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	return retry.Value(ctx, c.retry, op, func(ctx context.Context) (*sheets.BatchUpdateSpreadsheetResponse, error) {
		resp, err := c.svc.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
		return resp, storage.WrapError(op, err)
	})
}

// format makes the header row bold, shaded and centered, fits the column
// widths and freezes the header.
func (c *Client) format(ctx context.Context, id string, sheetID int64, columns int) {
	if _, err := c.batchUpdate(ctx, "format sheet", id, formatRequests(sheetID, int64(columns))...); err != nil {
		c.log.Warn(ctx, "failed to format sheet", "id", id, "sheet", sheetID, "error", err)
	}
}

func formatRequests(sheetID, columns int64) []*sheets.Request {
	return []*sheets.Request{
		{RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    0,
				EndRowIndex:      1,
				StartColumnIndex: 0,
				EndColumnIndex:   columns,
				ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
			},
			Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
				BackgroundColor:     &sheets.Color{Red: 0.8, Green: 0.8, Blue: 0.8},
				TextFormat:          &sheets.TextFormat{Bold: true},
				HorizontalAlignment: "CENTER",
			}},
			Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
		}},
		{AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
			Dimensions: &sheets.DimensionRange{
				SheetId:         sheetID,
				Dimension:       "COLUMNS",
				StartIndex:      0,
				EndIndex:        columns,
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
		}},
		{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				GridProperties:  &sheets.GridProperties{FrozenRowCount: 1},
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "gridProperties.frozenRowCount",
		}},
	}
}

// ListSpreadsheets returns the spreadsheets stored directly in folderID.
func (c *Client) ListSpreadsheets(ctx context.Context, folderID string) ([]storage.File, error) {
	return c.store.ListFiles(ctx, storage.ChildrenQuery(folderID, common.SpreadsheetMimeType))
}
