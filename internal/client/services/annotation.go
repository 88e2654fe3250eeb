package services

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/provision"
	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/history"
	"github.com/dmitrijs2005/gophdrive/internal/client/sheets"
	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/lifecycle"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/result"
)

const (
	annotationsSheet = "Annotations"
	defaultReadyWait = 15 * time.Second
)

// Uploader is the storage client as seen by the orchestrator.
type Uploader interface {
	lifecycle.Readier
	EnsureAuthenticated(ctx context.Context) (*identity.Principal, error)
	UploadFile(ctx context.Context, req storage.UploadRequest) (*storage.UploadResult, error)
}

// Importer is the spreadsheet client as seen by the orchestrator.
type Importer interface {
	lifecycle.Readier
	ImportJSON(ctx context.Context, data []byte, opts sheets.ImportOptions) (*sheets.ImportResult, error)
}

// Folders provides the provisioned folder structure.
type Folders interface {
	Ensure(ctx context.Context) (provision.Structure, error)
	Structure() (provision.Structure, bool)
	Names() provision.Names
}

// AnnotationSet is one JSON payload and one PDF uploaded together.
type AnnotationSet struct {
	SetName  string
	JSON     []byte
	PDF      PDFFile
	Metadata map[string]string
}

// SheetUpload is a JSON payload imported into a spreadsheet.
type SheetUpload struct {
	sheets.ImportResult
	FolderID   string            `json:"folderId"`
	FolderName string            `json:"folderName"`
	DataType   string            `json:"dataType"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PDFUpload is a PDF stored in Drive.
type PDFUpload struct {
	storage.UploadResult
	PageCount int               `json:"pageCount,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SetResult reports both artifacts of an annotation set. Success is true
// only when both were uploaded; Errors lists failures JSON first.
type SetResult struct {
	SetName   string            `json:"setName"`
	Timestamp time.Time         `json:"timestamp"`
	Success   bool              `json:"success"`
	Errors    []string          `json:"errors"`
	JSONSheet *SheetUpload      `json:"jsonSheet,omitempty"`
	PDFFile   *PDFUpload        `json:"pdfFile,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

// FolderInfo describes the folder structure for display.
type FolderInfo struct {
	Initialized      bool   `json:"initialized"`
	ProjectFolderID  string `json:"projectFolderId,omitempty"`
	JSONFolderID     string `json:"jsonFolderId,omitempty"`
	PDFFolderID      string `json:"pdfFolderId,omitempty"`
	ProjectFolderURL string `json:"projectFolderUrl,omitempty"`
	JSONFolderURL    string `json:"jsonFolderUrl,omitempty"`
	PDFFolderURL     string `json:"pdfFolderUrl,omitempty"`
}

type Options struct {
	UserAgent    string
	MaxPDFSize   int64
	PDFWarnSize  int64
	ReadyTimeout time.Duration
}

// AnnotationService uploads annotation sets and keeps their history.
//
// Contract:
//   - Initialize: wait for the storage and sheets clients, then provision folders.
//   - UploadSet: auth and folder errors are returned; artifact errors are
//     recorded in the SetResult.
//   - UploadPDF, SaveJSON: upload a single artifact.
//   - History, ClearHistory: the local upload log, newest first.
type AnnotationService interface {
	Initialize(ctx context.Context) error
	Ready() <-chan struct{}
	UploadSet(ctx context.Context, set AnnotationSet) (*SetResult, error)
	UploadPDF(ctx context.Context, file PDFFile, name string, metadata map[string]string) (*PDFUpload, error)
	SaveJSON(ctx context.Context, data []byte, filename string, metadata map[string]string) (*SheetUpload, error)
	History(ctx context.Context) ([]history.Record, error)
	ClearHistory(ctx context.Context) error
	FolderStructure() FolderInfo
}

type annotationService struct {
	storage Uploader
	sheets  Importer
	folders Folders
	history history.Repository
	log     logging.Logger
	opts    Options
	now     func() time.Time

	gate lifecycle.Gate
}

func NewAnnotationService(up Uploader, imp Importer, folders Folders, hist history.Repository, log logging.Logger, opts Options) AnnotationService {
	if opts.MaxPDFSize <= 0 {
		opts.MaxPDFSize = DefaultMaxPDFSize
	}
	if opts.PDFWarnSize <= 0 {
		opts.PDFWarnSize = DefaultPDFWarnSize
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyWait
	}
	return &annotationService{
		storage: up,
		sheets:  imp,
		folders: folders,
		history: hist,
		log:     log.With("component", "annotations"),
		opts:    opts,
		now:     time.Now,
	}
}

func (s *annotationService) Initialize(ctx context.Context) error {
	if s.gate.IsOpen() {
		return nil
	}
	err := lifecycle.WaitFor(ctx, s.opts.ReadyTimeout,
		lifecycle.Dependency{Name: "storage", Readier: s.storage},
		lifecycle.Dependency{Name: "sheets", Readier: s.sheets},
	)
	if err != nil {
		return err
	}
	if _, err := s.folders.Ensure(ctx); err != nil {
		return fmt.Errorf("provision folders: %w", err)
	}
	s.gate.Open()
	s.log.Info(ctx, "annotation service initialized")
	return nil
}

func (s *annotationService) Ready() <-chan struct{} {
	return s.gate.Ready()
}

// prepare authenticates and resolves the folders every upload needs.
func (s *annotationService) prepare(ctx context.Context) (*identity.Principal, provision.Structure, error) {
	p, err := s.storage.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, provision.Structure{}, err
	}
	st, err := s.folders.Ensure(ctx)
	if err != nil {
		return nil, provision.Structure{}, err
	}
	return p, st, nil
}

func (s *annotationService) UploadSet(ctx context.Context, set AnnotationSet) (*SetResult, error) {
	p, st, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	name := strings.TrimSpace(set.SetName)
	if name == "" {
		name = "Annotation Set " + now.Format(time.DateOnly)
	}
	s.log.Info(ctx, "uploading annotation set", "set", name)

	jsonRes := result.Of[*SheetUpload](s.saveJSON(ctx, st, set.JSON, name+".json",
		withEntries(set.Metadata, "setName", name, "type", "json_annotations")))
	pdfRes := result.Of[*PDFUpload](s.uploadPDF(ctx, st, set.PDF, name+".pdf",
		withEntries(set.Metadata, "setName", name, "type", "pdf_annotation")))

	res := &SetResult{
		SetName:   name,
		Timestamp: now,
		Success:   jsonRes.OK() && pdfRes.OK(),
		Errors:    []string{},
	}
	if jsonRes.OK() {
		res.JSONSheet = jsonRes.Value
	} else {
		s.log.Error(ctx, "JSON upload failed", "set", name, "error", jsonRes.Err)
		res.Errors = append(res.Errors, "JSON upload failed: "+jsonRes.Err.Error())
	}
	if pdfRes.OK() {
		res.PDFFile = pdfRes.Value
	} else {
		s.log.Error(ctx, "PDF upload failed", "set", name, "error", pdfRes.Err)
		res.Errors = append(res.Errors, "PDF upload failed: "+pdfRes.Err.Error())
	}

	uploadedBy := "unknown"
	if p != nil && p.Email != "" {
		uploadedBy = p.Email
	}
	res.Metadata = withEntries(set.Metadata,
		"projectFolderId", st.ProjectFolderID,
		"jsonFolderId", st.JSONFolderID,
		"pdfFolderId", st.PDFFolderID,
		"uploadedBy", uploadedBy,
		"userAgent", s.opts.UserAgent,
	)

	if _, err := s.history.Append(ctx, recordOf(res)); err != nil {
		s.log.Warn(ctx, "failed to save annotation set record", "set", name, "error", err)
	}
	s.log.Info(ctx, "annotation set upload completed", "set", name, "success", res.Success, "errors", len(res.Errors))
	return res, nil
}

func recordOf(r *SetResult) history.Record {
	rec := history.Record{
		SetName:   r.SetName,
		Timestamp: r.Timestamp,
		Success:   r.Success,
		Errors:    r.Errors,
		Metadata:  r.Metadata,
	}
	if r.JSONSheet != nil {
		rec.JSONSheetID = r.JSONSheet.SpreadsheetID
		rec.JSONSheetURL = r.JSONSheet.SpreadsheetURL
	}
	if r.PDFFile != nil {
		rec.PDFFileID = r.PDFFile.ID
		rec.PDFFileURL = r.PDFFile.WebViewLink
		if rec.PDFFileURL == "" {
			rec.PDFFileURL = r.PDFFile.DriveViewLink
		}
	}
	return rec
}

func (s *annotationService) SaveJSON(ctx context.Context, data []byte, filename string, metadata map[string]string) (*SheetUpload, error) {
	_, st, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return s.saveJSON(ctx, st, data, filename, metadata)
}

func (s *annotationService) saveJSON(ctx context.Context, st provision.Structure, data []byte, filename string, metadata map[string]string) (*SheetUpload, error) {
	title := "Annotations " + s.now().UTC().Format(time.DateOnly)
	if filename != "" {
		title = trimSuffixFold(filename, ".json") + " - Annotations"
	}

	imp, err := s.sheets.ImportJSON(ctx, data, sheets.ImportOptions{
		Title:           title,
		SheetName:       annotationsSheet,
		FolderID:        st.JSONFolderID,
		ApplyFormatting: true,
	})
	if err != nil {
		return nil, err
	}
	return &SheetUpload{
		ImportResult: *imp,
		FolderID:     st.JSONFolderID,
		FolderName:   s.folders.Names().JSON,
		DataType:     "json_annotations",
		Metadata:     metadata,
	}, nil
}

func (s *annotationService) UploadPDF(ctx context.Context, file PDFFile, name string, metadata map[string]string) (*PDFUpload, error) {
	_, st, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return s.uploadPDF(ctx, st, file, name, metadata)
}

func (s *annotationService) uploadPDF(ctx context.Context, st provision.Structure, file PDFFile, name string, metadata map[string]string) (*PDFUpload, error) {
	if name == "" {
		name = file.Name
	}
	if name == "" {
		name = "annotation.pdf"
	}
	file.Name = name

	v := ValidatePDF(file, s.opts.MaxPDFSize, s.opts.PDFWarnSize)
	if err := v.err(); err != nil {
		return nil, err
	}
	for _, w := range v.Warnings {
		s.log.Warn(ctx, "PDF validation warning", "file", name, "warning", w)
	}

	pages, err := PageCount(file.Data)
	if err != nil {
		s.log.Warn(ctx, "could not read PDF page count", "file", name, "error", err)
	} else {
		metadata = withEntries(metadata, "pageCount", strconv.Itoa(pages))
	}

	description := metadata["description"]
	if description == "" {
		description = "Uploaded PDF annotation file"
	}

	up, err := s.storage.UploadFile(ctx, storage.UploadRequest{
		Name:        name,
		Data:        file.Data,
		MimeType:    common.PDFMimeType,
		ParentID:    st.PDFFolderID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	up.FolderName = s.folders.Names().PDF
	return &PDFUpload{UploadResult: *up, PageCount: pages, Metadata: metadata}, nil
}

func (s *annotationService) History(ctx context.Context) ([]history.Record, error) {
	return s.history.List(ctx)
}

func (s *annotationService) ClearHistory(ctx context.Context) error {
	return s.history.Clear(ctx)
}

func (s *annotationService) FolderStructure() FolderInfo {
	st, ok := s.folders.Structure()
	if !ok {
		return FolderInfo{Initialized: s.gate.IsOpen()}
	}
	return FolderInfo{
		Initialized:      s.gate.IsOpen(),
		ProjectFolderID:  st.ProjectFolderID,
		JSONFolderID:     st.JSONFolderID,
		PDFFolderID:      st.PDFFolderID,
		ProjectFolderURL: st.ProjectURL(),
		JSONFolderURL:    st.JSONURL(),
		PDFFolderURL:     st.PDFURL(),
	}
}

// withEntries returns a copy of m with the given key/value pairs set.
func withEntries(m map[string]string, kv ...string) map[string]string {
	out := make(map[string]string, len(m)+len(kv)/2)
	maps.Copy(out, m)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func trimSuffixFold(s, suffix string) string {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)]
	}
	return s
}
