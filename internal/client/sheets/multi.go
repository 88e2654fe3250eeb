package sheets

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	sheets "google.golang.org/api/sheets/v4"
)

// NamedJSON is one payload of a multi-sheet import. An empty Name becomes
// "Sheet<n>".
type NamedJSON struct {
	Name string
	Data []byte
}

// SheetResult is the outcome for one sheet of a multi-sheet import.
type SheetResult struct {
	SheetName       string `json:"sheetName"`
	Success         bool   `json:"success"`
	RowsImported    int    `json:"rowsImported,omitempty"`
	ColumnsImported int    `json:"columnsImported,omitempty"`
	Error           string `json:"error,omitempty"`
}

// MultiImportResult describes a spreadsheet created by ImportMultiple.
type MultiImportResult struct {
	SpreadsheetID  string        `json:"spreadsheetId"`
	SpreadsheetURL string        `json:"spreadsheetUrl"`
	Title          string        `json:"title"`
	Sheets         []SheetResult `json:"sheets"`
	SuccessCount   int           `json:"successCount"`
	TotalSheets    int           `json:"totalSheets"`
}

// ImportMultiple writes each payload to its own sheet of one new
// spreadsheet. A payload that fails is reported in its SheetResult and the
// remaining ones are still imported. opts.SheetName is ignored.
func (c *Client) ImportMultiple(ctx context.Context, items []NamedJSON, opts ImportOptions) (*MultiImportResult, error) {
	if len(items) == 0 {
		return nil, common.Validationf("at least one JSON payload is required")
	}
	opts = c.withDefaults(opts, "Multi-JSON Import")

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("Sheet%d", i+1)
		}
	}

	if _, err := c.store.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	ss, err := c.createSpreadsheet(ctx, opts.Title, names[0], opts.FolderID)
	if err != nil {
		return nil, err
	}

	res := &MultiImportResult{
		SpreadsheetID:  ss.SpreadsheetId,
		SpreadsheetURL: SpreadsheetURL(ss.SpreadsheetId),
		Title:          opts.Title,
	}
	if ss.Properties != nil && ss.Properties.Title != "" {
		res.Title = ss.Properties.Title
	}

	for i, it := range items {
		sr := SheetResult{SheetName: names[i]}
		var sheetID int64
		if i == 0 {
			sheetID = firstSheetID(ss)
		}
		rows, cols, err := c.importSheet(ctx, ss.SpreadsheetId, names[i], sheetID, i > 0, it.Data, opts.ApplyFormatting)
		if err != nil {
			c.log.Error(ctx, "failed to import sheet", "sheet", names[i], "error", err)
			sr.Error = err.Error()
		} else {
			sr.Success = true
			sr.RowsImported, sr.ColumnsImported = rows, cols
			res.SuccessCount++
		}
		res.Sheets = append(res.Sheets, sr)
	}
	res.TotalSheets = len(res.Sheets)
	return res, nil
}

func (c *Client) importSheet(ctx context.Context, id, name string, sheetID int64, add bool, data []byte, format bool) (int, int, error) {
	grid, err := Convert(data)
	if err != nil {
		return 0, 0, err
	}
	if add {
		sheetID, err = c.addSheet(ctx, id, name)
		if err != nil {
			return 0, 0, err
		}
	}
	if err := c.writeValues(ctx, id, name, grid); err != nil {
		return 0, 0, err
	}
	if format {
		c.format(ctx, id, sheetID, len(grid.Headers))
	}
	return len(grid.Rows), len(grid.Headers), nil
}

func (c *Client) addSheet(ctx context.Context, id, title string) (int64, error) {
	resp, err := c.batchUpdate(ctx, "add sheet", id, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, errors.New("add sheet: empty reply")
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// RenameSheet changes the title of a sheet.
func (c *Client) RenameSheet(ctx context.Context, id string, sheetID int64, title string) error {
	if _, err := c.store.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	_, err := c.batchUpdate(ctx, "rename sheet", id, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{SheetId: sheetID, Title: title, ForceSendFields: []string{"SheetId"}},
			Fields:     "title",
		},
	})
	return err
}
