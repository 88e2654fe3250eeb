package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/lifecycle"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type move struct {
	ID, Parent string
	Remove     []string
}

type fakeStorage struct {
	gate    lifecycle.Gate
	http    *http.Client
	authErr error
	moveErr error

	mu        sync.Mutex
	authCalls int
	moves     []move
	lastQuery string
}

func (s *fakeStorage) Ready() <-chan struct{}   { return s.gate.Ready() }
func (s *fakeStorage) HTTPClient() *http.Client { return s.http }

func (s *fakeStorage) EnsureAuthenticated(context.Context) (*identity.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCalls++
	if s.authErr != nil {
		return nil, s.authErr
	}
	return &identity.Principal{Email: "ann@example.org"}, nil
}

func (s *fakeStorage) MoveFile(_ context.Context, id, parent string, remove []string) (*storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, move{id, parent, remove})
	if s.moveErr != nil {
		return nil, s.moveErr
	}
	return &storage.File{ID: id, Parents: []string{parent}}, nil
}

func (s *fakeStorage) ListFiles(_ context.Context, q string) ([]storage.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = q
	return []storage.File{{ID: "ss-9", Name: "old import"}}, nil
}

type valuesWrite struct {
	Range  string
	Option string
	Values [][]any
}

// fakeSheets records the Sheets API calls it receives.
type fakeSheets struct {
	srv *httptest.Server

	mu          sync.Mutex
	created     []map[string]any
	writes      []valuesWrite
	batches     [][]map[string]any
	batchStatus int
	writeStatus map[string]int
	nextSheetID int
}

func newFakeSheets(t *testing.T) *fakeSheets {
	fs := &fakeSheets{batchStatus: http.StatusOK, writeStatus: map[string]int{}, nextSheetID: 100}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v4/spreadsheets", fs.create)
	mux.HandleFunc("PUT /v4/spreadsheets/{id}/values/{range}", fs.values)
	mux.HandleFunc("POST /v4/spreadsheets/{call}", fs.batch)

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSheets) snapshot() (created []map[string]any, writes []valuesWrite, batches [][]map[string]any) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append(created, fs.created...), append(writes, fs.writes...), append(batches, fs.batches...)
}

func (s *fakeStorage) recorded() (authCalls int, moves []move) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCalls, append(moves, s.moves...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fs *fakeSheets) create(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	fs.mu.Lock()
	fs.created = append(fs.created, body)
	fs.mu.Unlock()

	title := body["properties"].(map[string]any)["title"]
	sheetTitle := body["sheets"].([]any)[0].(map[string]any)["properties"].(map[string]any)["title"]
	writeJSON(w, http.StatusOK, map[string]any{
		"spreadsheetId":  "ss-1",
		"spreadsheetUrl": "https://docs.google.com/spreadsheets/d/ss-1/edit",
		"properties":     map[string]any{"title": title},
		"sheets":         []any{map[string]any{"properties": map[string]any{"sheetId": 7, "title": sheetTitle}}},
	})
}

func (fs *fakeSheets) values(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Values [][]any `json:"values"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	rng := r.PathValue("range")

	fs.mu.Lock()
	fs.writes = append(fs.writes, valuesWrite{Range: rng, Option: r.URL.Query().Get("valueInputOption"), Values: body.Values})
	status := fs.writeStatus[rng]
	fs.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": "bad range"}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updatedRows": len(body.Values)})
}

func (fs *fakeSheets) batch(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.PathValue("call"), ":batchUpdate") {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Requests []map[string]any `json:"requests"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	fs.mu.Lock()
	fs.batches = append(fs.batches, body.Requests)
	status := fs.batchStatus
	fs.nextSheetID++
	id := fs.nextSheetID
	fs.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": "format failed"}})
		return
	}
	replies := make([]any, len(body.Requests))
	for i, req := range body.Requests {
		replies[i] = map[string]any{}
		if add, ok := req["addSheet"].(map[string]any); ok {
			props := add["properties"].(map[string]any)
			replies[i] = map[string]any{"addSheet": map[string]any{"properties": map[string]any{"sheetId": id, "title": props["title"]}}}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"spreadsheetId": "ss-1", "replies": replies})
}

func newTestClient(t *testing.T) (*Client, *fakeStorage, *fakeSheets) {
	t.Helper()
	fs := newFakeSheets(t)
	st := &fakeStorage{http: fs.srv.Client()}
	st.gate.Open()

	c, err := New(context.Background(), st, retry.New(3, time.Millisecond, logging.Discard()), logging.Discard(),
		Options{Endpoint: fs.srv.URL + "/"})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }
	return c, st, fs
}

func TestImportJSON(t *testing.T) {
	c, st, fs := newTestClient(t)

	res, err := c.ImportJSON(context.Background(), []byte(`[{"b":2,"a":1},{"a":3}]`), ImportOptions{
		Title:           "page-1",
		SheetName:       "Annotations",
		FolderID:        "json-folder",
		ApplyFormatting: true,
	})
	require.NoError(t, err)

	assert.Equal(t, &ImportResult{
		SpreadsheetID:   "ss-1",
		SpreadsheetURL:  "https://docs.google.com/spreadsheets/d/ss-1/edit",
		Title:           "page-1",
		RowsImported:    2,
		ColumnsImported: 2,
		SheetName:       "Annotations",
	}, res)

	created, writes, batches := fs.snapshot()
	_, moves := st.recorded()
	require.Len(t, created, 1)
	assert.Equal(t, []move{{"ss-1", "json-folder", []string{"root"}}}, moves)

	require.Len(t, writes, 1)
	assert.Equal(t, "'Annotations'!A1", writes[0].Range)
	assert.Equal(t, "USER_ENTERED", writes[0].Option)
	assert.Equal(t, [][]any{{"a", "b"}, {"1", "2"}, {"3", ""}}, writes[0].Values)

	require.Len(t, batches, 1)
	reqs := batches[0]
	require.Len(t, reqs, 3)
	rng := reqs[0]["repeatCell"].(map[string]any)["range"].(map[string]any)
	assert.EqualValues(t, 7, rng["sheetId"])
	assert.EqualValues(t, 0, rng["startRowIndex"])
	assert.EqualValues(t, 1, rng["endRowIndex"])
	assert.EqualValues(t, 2, rng["endColumnIndex"])
	assert.Contains(t, reqs[1], "autoResizeDimensions")
	frozen := reqs[2]["updateSheetProperties"].(map[string]any)["properties"].(map[string]any)["gridProperties"].(map[string]any)
	assert.EqualValues(t, 1, frozen["frozenRowCount"])
}

func TestImportJSON_Defaults(t *testing.T) {
	c, st, fs := newTestClient(t)

	res, err := c.ImportJSON(context.Background(), []byte(`{"a":1}`), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, "JSON Import 2025-03-14", res.Title)
	assert.Equal(t, "Sheet1", res.SheetName)

	_, writes, batches := fs.snapshot()
	_, moves := st.recorded()
	assert.Empty(t, moves)
	assert.Empty(t, batches)
	require.Len(t, writes, 1)
	assert.Equal(t, "'Sheet1'!A1", writes[0].Range)
}

func TestImportJSON_FormattingFailureIsTolerated(t *testing.T) {
	c, _, fs := newTestClient(t)
	fs.batchStatus = http.StatusBadRequest

	res, err := c.ImportJSON(context.Background(), []byte(`{"a":1}`), ImportOptions{ApplyFormatting: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsImported)
	_, _, batches := fs.snapshot()
	assert.Len(t, batches, 3)
}

func TestImportJSON_MoveFailureIsTolerated(t *testing.T) {
	c, st, _ := newTestClient(t)
	st.moveErr = errors.New("forbidden")

	res, err := c.ImportJSON(context.Background(), []byte(`[1]`), ImportOptions{FolderID: "json-folder"})
	require.NoError(t, err)
	assert.Equal(t, "ss-1", res.SpreadsheetID)
	_, moves := st.recorded()
	assert.Len(t, moves, 1)
}

func TestImportJSON_ValidationBeforeNetwork(t *testing.T) {
	c, st, fs := newTestClient(t)

	_, err := c.ImportJSON(context.Background(), []byte(`null`), ImportOptions{})
	require.ErrorIs(t, err, common.ErrorValidation)
	authCalls, _ := st.recorded()
	created, _, _ := fs.snapshot()
	assert.Zero(t, authCalls)
	assert.Empty(t, created)
}

func TestImportJSON_AuthFailure(t *testing.T) {
	c, st, fs := newTestClient(t)
	st.authErr = common.Unauthorizedf("missing role")

	_, err := c.ImportJSON(context.Background(), []byte(`{"a":1}`), ImportOptions{})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	created, _, _ := fs.snapshot()
	assert.Empty(t, created)
}

func TestImportMultiple(t *testing.T) {
	c, _, fs := newTestClient(t)
	fs.writeStatus["'broken'!A1"] = http.StatusBadRequest

	res, err := c.ImportMultiple(context.Background(), []NamedJSON{
		{Name: "first", Data: []byte(`{"a":1}`)},
		{Name: "invalid", Data: []byte(`[]`)},
		{Data: []byte(`[1,2,3]`)},
		{Name: "broken", Data: []byte(`{"b":2}`)},
	}, ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Multi-JSON Import 2025-03-14", res.Title)
	assert.Equal(t, 4, res.TotalSheets)
	assert.Equal(t, 2, res.SuccessCount)

	assert.Equal(t, SheetResult{SheetName: "first", Success: true, RowsImported: 1, ColumnsImported: 2}, res.Sheets[0])
	assert.False(t, res.Sheets[1].Success)
	assert.Contains(t, res.Sheets[1].Error, "Array is empty")
	assert.Equal(t, SheetResult{SheetName: "Sheet3", Success: true, RowsImported: 3, ColumnsImported: 2}, res.Sheets[2])
	assert.False(t, res.Sheets[3].Success)
	assert.Contains(t, res.Sheets[3].Error, "400")

	created, _, batches := fs.snapshot()
	first := created[0]["sheets"].([]any)[0].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "first", first["title"])

	var added []string
	for _, b := range batches {
		if add, ok := b[0]["addSheet"].(map[string]any); ok {
			added = append(added, add["properties"].(map[string]any)["title"].(string))
		}
	}
	assert.Equal(t, []string{"Sheet3", "broken"}, added)
}

func TestImportMultiple_Empty(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.ImportMultiple(context.Background(), nil, ImportOptions{})
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestListSpreadsheets(t *testing.T) {
	c, st, _ := newTestClient(t)
	files, err := c.ListSpreadsheets(context.Background(), "json-folder")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, "'json-folder' in parents and mimeType='application/vnd.google-apps.spreadsheet' and trashed=false", st.lastQuery)

	_, err = c.ListSpreadsheets(context.Background(), `it's\x`)
	require.NoError(t, err)
	assert.Equal(t, `'it\'s\\x' in parents and mimeType='application/vnd.google-apps.spreadsheet' and trashed=false`, st.lastQuery)
}

func TestRenameSheet(t *testing.T) {
	c, st, fs := newTestClient(t)
	require.NoError(t, c.RenameSheet(context.Background(), "ss-1", 0, "Summary"))

	_, _, batches := fs.snapshot()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	upd := batches[0][0]["updateSheetProperties"].(map[string]any)
	assert.Equal(t, "title", upd["fields"])
	props := upd["properties"].(map[string]any)
	assert.EqualValues(t, 0, props["sheetId"])
	assert.Equal(t, "Summary", props["title"])
	calls, _ := st.recorded()
	assert.Equal(t, 1, calls)
}

func TestRenameSheet_AuthFailure(t *testing.T) {
	c, st, fs := newTestClient(t)
	st.authErr = common.ErrorUnauthorized
	err := c.RenameSheet(context.Background(), "ss-1", 7, "Summary")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	_, _, batches := fs.snapshot()
	assert.Empty(t, batches)
}

func TestA1Range_QuotesSheetName(t *testing.T) {
	assert.Equal(t, "'Sheet1'!A1", a1Range("Sheet1"))
	assert.Equal(t, "'Ann''s data'!A1", a1Range("Ann's data"))
}

func TestStart(t *testing.T) {
	fs := newFakeSheets(t)
	st := &fakeStorage{http: fs.srv.Client()}
	c, err := New(context.Background(), st, retry.New(1, 0, nil), logging.Discard(), Options{Endpoint: fs.srv.URL + "/"})
	require.NoError(t, err)

	err = c.Start(context.Background(), 20*time.Millisecond)
	var dte *lifecycle.DependencyTimeoutError
	require.ErrorAs(t, err, &dte)
	assert.Equal(t, "storage", dte.Dependency)

	st.gate.Open()
	require.NoError(t, c.Start(context.Background(), time.Second))
	select {
	case <-c.Ready():
	default:
		t.Fatal("sheets client not ready after Start")
	}
}
