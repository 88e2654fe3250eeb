package services

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/klauspost/compress/gzip"
)

const (
	AnnotationsFolderName = "annotations"
	InputsFolderName      = "inputs"
	ProgressFileName      = "user_progress.json"

	annotationPrefix = "annotations_"
	csvSuffix        = ".csv.json.gz"
	gzipMimeType     = "application/gzip"
	appVersion       = "1.0.0"
)

// DataStore is the storage client as seen by the user data service.
type DataStore interface {
	EnsureAuthenticated(ctx context.Context) (*identity.Principal, error)
	FindFolderByNameInParent(ctx context.Context, name, parentID string) (*storage.Folder, error)
	CreateFolder(ctx context.Context, name, parentID string) (*storage.Folder, error)
	ListFiles(ctx context.Context, q string) ([]storage.File, error)
	CreateFile(ctx context.Context, name string, content any, mimeType, parentID string) (*storage.File, error)
	UpdateFile(ctx context.Context, id string, content any, mimeType string) (*storage.File, error)
	GetFileContent(ctx context.Context, id string) ([]byte, error)
	DeleteFile(ctx context.Context, id string) error
}

// AnnotationDoc is a saved annotation file.
type AnnotationDoc struct {
	Annotations json.RawMessage `json:"annotations"`
	Metadata    map[string]any  `json:"metadata"`
}

// AnnotationFile is an AnnotationDoc together with its Drive file.
type AnnotationFile struct {
	AnnotationDoc
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	FolderID     string `json:"folderId"`
	CreatedTime  string `json:"createdTime,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// CSVRecord is a CSV file kept in the inputs folder, stored as gzipped JSON.
type CSVRecord struct {
	FileName    string    `json:"fileName"`
	ContentHash string    `json:"contentHash"`
	UploadDate  time.Time `json:"uploadDate"`
	FileSize    int       `json:"fileSize"`
	RowCount    int       `json:"rowCount"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content,omitempty"`
}

// CSVInfo lists a stored CSV file without its content.
type CSVInfo struct {
	CSVRecord
	FileID        string `json:"fileId"`
	DriveFileName string `json:"driveFileName"`
	CreatedTime   string `json:"createdTime,omitempty"`
	ModifiedTime  string `json:"modifiedTime,omitempty"`
}

// CSVSaveResult reports a SaveCSV call. Saved is false when a file with
// the same content already exists; FileID then names that file.
type CSVSaveResult struct {
	Saved          bool   `json:"saved"`
	Reason         string `json:"reason,omitempty"`
	FileID         string `json:"fileId"`
	FileName       string `json:"fileName"`
	OriginalSize   int    `json:"originalSize"`
	CompressedSize int    `json:"compressedSize,omitempty"`
}

// Export is everything the service stores for a user.
type Export struct {
	Annotations []AnnotationFile `json:"annotations"`
	Progress    map[string]any   `json:"progress"`
	CSVFiles    []CSVInfo        `json:"csvFiles"`
	ExportedAt  time.Time        `json:"exportedAt"`
	UserID      string           `json:"userId"`
}

// UserDataService keeps per-user annotation documents, progress and CSV
// inputs in Drive next to the uploaded artifacts.
//
// Annotation files and the progress file are upserted by name. CSV files
// are keyed by the SHA-256 of their content and never stored twice.
// Missing documents are reported as common.ErrorNotFound.
type UserDataService interface {
	SaveAnnotations(ctx context.Context, key string, annotations json.RawMessage, metadata map[string]any) (*storage.File, error)
	LoadAnnotations(ctx context.Context, key string) (*AnnotationDoc, error)
	UserAnnotations(ctx context.Context) ([]AnnotationFile, error)

	SaveProgress(ctx context.Context, fields map[string]any) error
	Progress(ctx context.Context) (map[string]any, error)

	SaveCSV(ctx context.Context, name, content string) (*CSVSaveResult, error)
	CSVExists(ctx context.Context, content string) (*storage.File, error)
	LoadCSV(ctx context.Context, fileID string) (*CSVRecord, error)
	ListCSV(ctx context.Context) ([]CSVInfo, error)

	Export(ctx context.Context) (*Export, error)
	DeleteAll(ctx context.Context) (int, error)
}

type userDataService struct {
	store   DataStore
	folders Folders
	log     logging.Logger
	now     func() time.Time

	mu  sync.Mutex
	ids map[string]string
}

func NewUserDataService(store DataStore, folders Folders, log logging.Logger) UserDataService {
	return &userDataService{
		store:   store,
		folders: folders,
		log:     log.With("component", "userdata"),
		now:     time.Now,
		ids:     map[string]string{},
	}
}

// folder returns the id of a data folder under the project folder,
// creating it on first use.
func (s *userDataService) folder(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	st, err := s.folders.Ensure(ctx)
	if err != nil {
		return "", err
	}
	f, err := s.store.FindFolderByNameInParent(ctx, name, st.ProjectFolderID)
	if err != nil {
		return "", fmt.Errorf("find folder %q: %w", name, err)
	}
	if f == nil {
		if f, err = s.store.CreateFolder(ctx, name, st.ProjectFolderID); err != nil {
			return "", fmt.Errorf("create folder %q: %w", name, err)
		}
		s.log.Info(ctx, "data folder created", "name", name, "id", f.ID)
	}

	s.mu.Lock()
	s.ids[name] = f.ID
	s.mu.Unlock()
	return f.ID, nil
}

func (s *userDataService) userID(ctx context.Context) (string, error) {
	p, err := s.store.EnsureAuthenticated(ctx)
	if err != nil {
		return "", err
	}
	return p.Email, nil
}

// findByName returns the first file called name in parentID, or nil.
func (s *userDataService) findByName(ctx context.Context, name, parentID string) (*storage.File, error) {
	files, err := s.store.ListFiles(ctx, storage.FileQuery(name, parentID, ""))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

// upsert replaces the content of the file called name in parentID, or
// creates it.
func (s *userDataService) upsert(ctx context.Context, name, parentID string, content any) (*storage.File, error) {
	existing, err := s.findByName(ctx, name, parentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		f, err := s.store.UpdateFile(ctx, existing.ID, content, common.JSONMimeType)
		if err == nil {
			s.log.Info(ctx, "file updated", "name", name, "id", f.ID)
		}
		return f, err
	}
	f, err := s.store.CreateFile(ctx, name, content, common.JSONMimeType, parentID)
	if err == nil {
		s.log.Info(ctx, "file created", "name", name, "id", f.ID)
	}
	return f, err
}

func annotationFileName(key string) string {
	return annotationPrefix + key + ".json"
}

// SaveAnnotations stores annotations under annotations_<key>.json. An empty
// key uses the current time in milliseconds.
func (s *userDataService) SaveAnnotations(ctx context.Context, key string, annotations json.RawMessage, metadata map[string]any) (*storage.File, error) {
	if !json.Valid(annotations) {
		return nil, common.Validationf("annotations must be valid JSON")
	}
	user, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := s.folder(ctx, AnnotationsFolderName)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key = strings.TrimSpace(key)
	if key == "" {
		key = strconv.FormatInt(now.UnixMilli(), 10)
	}
	meta := make(map[string]any, len(metadata)+3)
	maps.Copy(meta, metadata)
	meta["userId"] = user
	meta["timestamp"] = now.Format(time.RFC3339Nano)
	meta["appVersion"] = appVersion

	doc, err := json.MarshalIndent(AnnotationDoc{Annotations: annotations, Metadata: meta}, "", "  ")
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, annotationFileName(key), dir, doc)
}

func (s *userDataService) LoadAnnotations(ctx context.Context, key string) (*AnnotationDoc, error) {
	if strings.TrimSpace(key) == "" {
		return nil, common.Validationf("annotation key cannot be empty")
	}
	dir, err := s.folder(ctx, AnnotationsFolderName)
	if err != nil {
		return nil, err
	}
	name := annotationFileName(key)
	f, err := s.findByName(ctx, name, dir)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%s: %w", name, common.ErrorNotFound)
	}

	raw, err := s.store.GetFileContent(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	var doc AnnotationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &doc, nil
}

// UserAnnotations loads every annotation file, newest first. Files that
// cannot be read or decoded are skipped.
func (s *userDataService) UserAnnotations(ctx context.Context) ([]AnnotationFile, error) {
	dir, err := s.folder(ctx, AnnotationsFolderName)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, storage.ChildrenQuery(dir, "")+" and name contains '"+annotationPrefix+"'")
	if err != nil {
		return nil, err
	}

	out := make([]AnnotationFile, 0, len(files))
	for _, f := range files {
		raw, err := s.store.GetFileContent(ctx, f.ID)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable annotation file", "name", f.Name, "error", err)
			continue
		}
		var doc AnnotationDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			s.log.Warn(ctx, "skipping malformed annotation file", "name", f.Name, "error", err)
			continue
		}
		out = append(out, AnnotationFile{
			AnnotationDoc: doc,
			ID:            f.ID,
			FileName:      f.Name,
			FolderID:      dir,
			CreatedTime:   f.CreatedTime,
			ModifiedTime:  f.ModifiedTime,
		})
	}
	// RFC 3339 timestamps from Drive sort lexically.
	slices.SortStableFunc(out, func(a, b AnnotationFile) int { return cmp.Compare(b.ModifiedTime, a.ModifiedTime) })
	return out, nil
}

// SaveProgress merges fields into the stored progress document.
func (s *userDataService) SaveProgress(ctx context.Context, fields map[string]any) error {
	user, err := s.userID(ctx)
	if err != nil {
		return err
	}
	st, err := s.folders.Ensure(ctx)
	if err != nil {
		return err
	}

	doc, err := s.loadProgress(ctx, st.ProjectFolderID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	maps.Copy(doc, fields)
	doc["lastUpdated"] = s.now().UTC().Format(time.RFC3339Nano)
	doc["userId"] = user

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return common.Validationf("progress cannot be serialized: %v", err)
	}
	_, err = s.upsert(ctx, ProgressFileName, st.ProjectFolderID, b)
	return err
}

func (s *userDataService) Progress(ctx context.Context) (map[string]any, error) {
	st, err := s.folders.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadProgress(ctx, st.ProjectFolderID)
}

func (s *userDataService) loadProgress(ctx context.Context, parentID string) (map[string]any, error) {
	f, err := s.findByName(ctx, ProgressFileName, parentID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%s: %w", ProgressFileName, common.ErrorNotFound)
	}
	raw, err := s.store.GetFileContent(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ProgressFileName, err)
	}
	return doc, nil
}

// ContentHash is the hex SHA-256 of a CSV file's content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// csvFileName embeds a hash prefix so duplicates can be found by name.
func csvFileName(name, hash string) string {
	base := strings.TrimSuffix(strings.TrimSpace(name), ".csv")
	if base == "" {
		base = "input"
	}
	return base + "_" + hash[:16] + csvSuffix
}

func (s *userDataService) SaveCSV(ctx context.Context, name, content string) (*CSVSaveResult, error) {
	if content == "" {
		return nil, common.Validationf("CSV content cannot be empty")
	}
	user, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	if f, err := s.CSVExists(ctx, content); err != nil {
		return nil, err
	} else if f != nil {
		s.log.Info(ctx, "CSV already stored, skipping", "name", f.Name, "id", f.ID)
		return &CSVSaveResult{Reason: "duplicate", FileID: f.ID, FileName: f.Name, OriginalSize: len(content)}, nil
	}

	dir, err := s.folder(ctx, InputsFolderName)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(content)
	rec := CSVRecord{
		FileName:    name,
		ContentHash: hash,
		UploadDate:  s.now().UTC(),
		FileSize:    len(content),
		RowCount:    strings.Count(content, "\n") + 1,
		UserID:      user,
		Content:     content,
	}
	packed, err := compress(rec)
	if err != nil {
		return nil, err
	}

	fileName := csvFileName(name, hash)
	f, err := s.store.CreateFile(ctx, fileName, packed, gzipMimeType, dir)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "CSV stored", "name", fileName, "bytes", len(content), "compressed", len(packed))
	return &CSVSaveResult{
		Saved:          true,
		FileID:         f.ID,
		FileName:       fileName,
		OriginalSize:   len(content),
		CompressedSize: len(packed),
	}, nil
}

// CSVExists returns the stored file holding content, or nil.
func (s *userDataService) CSVExists(ctx context.Context, content string) (*storage.File, error) {
	dir, err := s.folder(ctx, InputsFolderName)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(content)
	files, err := s.store.ListFiles(ctx, storage.ChildrenQuery(dir, "")+" and name contains '_"+hash[:16]+"'")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		rec, err := s.LoadCSV(ctx, f.ID)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable CSV file", "name", f.Name, "error", err)
			continue
		}
		if rec.ContentHash == hash {
			return &f, nil
		}
	}
	return nil, nil
}

func (s *userDataService) LoadCSV(ctx context.Context, fileID string) (*CSVRecord, error) {
	raw, err := s.store.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, err
	}
	var rec CSVRecord
	if err := decompress(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode CSV %s: %w", fileID, err)
	}
	return &rec, nil
}

// ListCSV describes every stored CSV file, newest upload first.
func (s *userDataService) ListCSV(ctx context.Context) ([]CSVInfo, error) {
	dir, err := s.folder(ctx, InputsFolderName)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, storage.ChildrenQuery(dir, "")+" and name contains '"+csvSuffix+"'")
	if err != nil {
		return nil, err
	}

	out := make([]CSVInfo, 0, len(files))
	for _, f := range files {
		rec, err := s.LoadCSV(ctx, f.ID)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable CSV file", "name", f.Name, "error", err)
			continue
		}
		rec.Content = ""
		out = append(out, CSVInfo{
			CSVRecord:     *rec,
			FileID:        f.ID,
			DriveFileName: f.Name,
			CreatedTime:   f.CreatedTime,
			ModifiedTime:  f.ModifiedTime,
		})
	}
	slices.SortStableFunc(out, func(a, b CSVInfo) int { return b.UploadDate.Compare(a.UploadDate) })
	return out, nil
}

func (s *userDataService) Export(ctx context.Context) (*Export, error) {
	user, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	annotations, err := s.UserAnnotations(ctx)
	if err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}
	progress, err := s.Progress(ctx)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("progress: %w", err)
	}
	csvFiles, err := s.ListCSV(ctx)
	if err != nil {
		return nil, fmt.Errorf("csv files: %w", err)
	}
	return &Export{
		Annotations: annotations,
		Progress:    progress,
		CSVFiles:    csvFiles,
		ExportedAt:  s.now().UTC(),
		UserID:      user,
	}, nil
}

// DeleteAll removes the annotation files, the stored CSV files and the
// progress file. Uploaded PDFs and spreadsheets are kept. A failed delete
// does not stop the rest; the failures are returned joined.
func (s *userDataService) DeleteAll(ctx context.Context) (int, error) {
	if _, err := s.userID(ctx); err != nil {
		return 0, err
	}
	st, err := s.folders.Ensure(ctx)
	if err != nil {
		return 0, err
	}

	var targets []storage.File
	for _, name := range []string{AnnotationsFolderName, InputsFolderName} {
		dir, err := s.folder(ctx, name)
		if err != nil {
			return 0, err
		}
		files, err := s.store.ListFiles(ctx, storage.ChildrenQuery(dir, ""))
		if err != nil {
			return 0, err
		}
		targets = append(targets, files...)
	}
	if f, err := s.findByName(ctx, ProgressFileName, st.ProjectFolderID); err != nil {
		return 0, err
	} else if f != nil {
		targets = append(targets, *f)
	}

	deleted := 0
	var errs []error
	for _, f := range targets {
		if err := s.store.DeleteFile(ctx, f.ID); err != nil {
			s.log.Warn(ctx, "could not delete file", "name", f.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	s.log.Info(ctx, "user data deleted", "files", deleted, "failed", len(errs))
	return deleted, errors.Join(errs...)
}

func compress(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte, v any) error {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer zr.Close()
	b, err := io.ReadAll(zr)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
