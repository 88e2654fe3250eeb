package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/migrations"
	"github.com/dmitrijs2005/gophdrive/internal/client/provision"
	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/history"
	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophdrive/internal/client/sheets"
	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/lifecycle"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeUploader struct {
	gate      lifecycle.Gate
	principal *identity.Principal
	authErr   error
	uploadErr error

	mu      sync.Mutex
	uploads []storage.UploadRequest
}

func (f *fakeUploader) Ready() <-chan struct{} { return f.gate.Ready() }

func (f *fakeUploader) EnsureAuthenticated(context.Context) (*identity.Principal, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.principal, nil
}

func (f *fakeUploader) UploadFile(_ context.Context, req storage.UploadRequest) (*storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	id := fmt.Sprintf("pdf-%d", len(f.uploads))
	return &storage.UploadResult{
		ID:            id,
		Name:          req.Name,
		Size:          int64(len(req.Data)),
		WebViewLink:   "https://drive.google.com/file/d/" + id + "/view?usp=drivesdk",
		DriveViewLink: storage.FileViewURL(id),
		FolderID:      req.ParentID,
		Method:        storage.MethodMultipart,
	}, nil
}

func (f *fakeUploader) recorded() []storage.UploadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.UploadRequest(nil), f.uploads...)
}

type importCall struct {
	Data []byte
	Opts sheets.ImportOptions
}

type fakeImporter struct {
	gate lifecycle.Gate
	err  error

	mu    sync.Mutex
	calls []importCall
}

func (f *fakeImporter) Ready() <-chan struct{} { return f.gate.Ready() }

func (f *fakeImporter) ImportJSON(_ context.Context, data []byte, opts sheets.ImportOptions) (*sheets.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, importCall{Data: data, Opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("ss-%d", len(f.calls))
	return &sheets.ImportResult{
		SpreadsheetID:   id,
		SpreadsheetURL:  sheets.SpreadsheetURL(id),
		Title:           opts.Title,
		RowsImported:    2,
		ColumnsImported: 3,
		SheetName:       opts.SheetName,
	}, nil
}

func (f *fakeImporter) recorded() []importCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]importCall(nil), f.calls...)
}

type fakeFolders struct {
	err error

	mu      sync.Mutex
	ready   bool
	ensures int
}

var testStructure = provision.Structure{ProjectFolderID: "proj", JSONFolderID: "json", PDFFolderID: "pdf"}

func (f *fakeFolders) Ensure(context.Context) (provision.Structure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	if f.err != nil {
		return provision.Structure{}, f.err
	}
	f.ready = true
	return testStructure, nil
}

func (f *fakeFolders) Structure() (provision.Structure, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return provision.Structure{}, false
	}
	return testStructure, true
}

func (f *fakeFolders) Names() provision.Names { return provision.DefaultNames }

type failingHistory struct{ err error }

func (h failingHistory) Append(context.Context, history.Record) (history.Record, error) {
	return history.Record{}, h.err
}
func (h failingHistory) List(context.Context) ([]history.Record, error) { return nil, h.err }
func (h failingHistory) Clear(context.Context) error                    { return h.err }

func newHistory(t *testing.T) history.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return history.NewKVRepository(metadata.NewSQLiteRepository(db), 0)
}

type harness struct {
	svc      *annotationService
	uploader *fakeUploader
	importer *fakeImporter
	folders  *fakeFolders
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		uploader: &fakeUploader{principal: &identity.Principal{Email: "ann@example.org", Roles: []string{"admin"}}},
		importer: &fakeImporter{},
		folders:  &fakeFolders{},
	}
	h.uploader.gate.Open()
	h.importer.gate.Open()

	svc := NewAnnotationService(h.uploader, h.importer, h.folders, newHistory(t), logging.Discard(), Options{
		UserAgent:    "gophdrive-test",
		ReadyTimeout: 50 * time.Millisecond,
	})
	h.svc = svc.(*annotationService)
	h.svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /Resources << >> /MediaBox [0 0 612 792] >>", kids, pages))
	for range pages {
		obj("<< /Type /Page /Parent 2 0 R >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
