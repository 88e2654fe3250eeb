package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testEmail = "ann@example.org"

type upload struct {
	Method   string
	Meta     map[string]any
	Content  []byte
	MimeType string
	Headers  http.Header
}

// fakeDrive is a minimal stand-in for the Drive, userinfo and upload
// endpoints.
type fakeDrive struct {
	t   *testing.T
	srv *httptest.Server

	mu              sync.Mutex
	calls           map[string]int
	userinfoStatus  int
	userinfoEmail   string
	aboutStatus     int
	aboutEmail      string
	createFailures  int
	listed          []map[string]any
	lastQuery       string
	uploads         []upload
	ranges          []string
	sessionFailures int
	parents         map[string][]string
	content         map[string][]byte
	nextID          int
}

func newFakeDrive(t *testing.T) *fakeDrive {
	fd := &fakeDrive{
		t:              t,
		calls:          map[string]int{},
		userinfoStatus: http.StatusOK,
		userinfoEmail:  testEmail,
		aboutStatus:    http.StatusOK,
		aboutEmail:     testEmail,
		parents:        map[string][]string{},
		content:        map[string][]byte{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /userinfo", fd.userinfo)
	mux.HandleFunc("GET /drive/v3/about", fd.about)
	mux.HandleFunc("GET /drive/v3/files", fd.list)
	mux.HandleFunc("POST /drive/v3/files", fd.createFolder)
	mux.HandleFunc("GET /drive/v3/files/{id}", fd.get)
	mux.HandleFunc("PATCH /drive/v3/files/{id}", fd.patch)
	mux.HandleFunc("DELETE /drive/v3/files/{id}", fd.delete)
	mux.HandleFunc("POST /upload/drive/v3/files", fd.upload)
	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", fd.upload)
	mux.HandleFunc("PUT /session/{id}", fd.session)

	fd.srv = httptest.NewServer(mux)
	t.Cleanup(fd.srv.Close)
	return fd
}

func (fd *fakeDrive) count(key string) int {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.calls[key]
}

func (fd *fakeDrive) setListed(files ...map[string]any) {
	fd.mu.Lock()
	fd.listed = files
	fd.mu.Unlock()
}

func (fd *fakeDrive) hit(key string) {
	fd.mu.Lock()
	fd.calls[key]++
	fd.mu.Unlock()
}

func (fd *fakeDrive) newID(prefix string) string {
	fd.nextID++
	return fmt.Sprintf("%s-%d", prefix, fd.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func (fd *fakeDrive) userinfo(w http.ResponseWriter, r *http.Request) {
	fd.hit("userinfo")
	if fd.userinfoStatus != http.StatusOK {
		apiError(w, fd.userinfoStatus, "insufficient scope")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": fd.userinfoEmail})
}

func (fd *fakeDrive) about(w http.ResponseWriter, r *http.Request) {
	fd.hit("about")
	if fd.aboutStatus != http.StatusOK {
		apiError(w, fd.aboutStatus, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"emailAddress": fd.aboutEmail}})
}

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	fd.hit("list")
	fd.mu.Lock()
	fd.lastQuery = r.URL.Query().Get("q")
	files := fd.listed
	fd.mu.Unlock()
	if files == nil {
		files = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (fd *fakeDrive) createFolder(w http.ResponseWriter, r *http.Request) {
	fd.hit("createFolder")
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.createFailures > 0 {
		fd.createFailures--
		apiError(w, http.StatusBadRequest, "bad request")
		return
	}
	var meta map[string]any
	require.NoError(fd.t, json.NewDecoder(r.Body).Decode(&meta))
	meta["id"] = fd.newID("folder")
	meta["capabilities"] = map[string]any{"canAddChildren": true, "canListChildren": true}
	writeJSON(w, http.StatusOK, meta)
}

func (fd *fakeDrive) get(w http.ResponseWriter, r *http.Request) {
	fd.hit("get")
	id := r.PathValue("id")
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if id == "missing" {
		apiError(w, http.StatusNotFound, "File not found: missing")
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(fd.content[id])
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": id, "name": "Annotations Project", "parents": fd.parents[id],
		"capabilities": map[string]any{"canAddChildren": true},
		"trashed":      id == "trashed",
	})
}

func (fd *fakeDrive) patch(w http.ResponseWriter, r *http.Request) {
	fd.hit("patch")
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.lastQuery = r.URL.RawQuery
	id := r.PathValue("id")
	q := r.URL.Query()
	parents := []string{q.Get("addParents")}
	fd.parents[id] = parents
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "parents": parents})
}

func (fd *fakeDrive) delete(w http.ResponseWriter, r *http.Request) {
	fd.hit("delete")
	w.WriteHeader(http.StatusNoContent)
}

func (fd *fakeDrive) upload(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("uploadType") {
	case "multipart":
		fd.hit("multipart")
		fd.multipart(w, r)
	case "resumable":
		fd.hit("resumable")
		var meta map[string]any
		require.NoError(fd.t, json.NewDecoder(r.Body).Decode(&meta))
		fd.mu.Lock()
		fd.uploads = append(fd.uploads, upload{Method: "resumable", Meta: meta, Headers: r.Header.Clone()})
		fd.mu.Unlock()
		w.Header().Set("Location", fd.srv.URL+"/session/1")
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "unexpected upload type", http.StatusBadRequest)
	}
}

func (fd *fakeDrive) multipart(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(fd.t, err)
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	require.NoError(fd.t, err)
	var meta map[string]any
	require.NoError(fd.t, json.NewDecoder(metaPart).Decode(&meta))

	mediaPart, err := mr.NextPart()
	require.NoError(fd.t, err)
	content, err := io.ReadAll(mediaPart)
	require.NoError(fd.t, err)

	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.uploads = append(fd.uploads, upload{
		Method: "multipart", Meta: meta, Content: content,
		MimeType: mediaPart.Header.Get("Content-Type"),
	})
	id := r.PathValue("id")
	if id == "" {
		id = fd.newID("file")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": id, "name": meta["name"], "mimeType": meta["mimeType"],
		"size": fmt.Sprint(len(content)), "webViewLink": "https://drive.example/" + id,
	})
}

// session accepts content PUTs and status queries for the upload session.
// While sessionFailures is positive a PUT keeps only the first half of its
// body and fails with 503.
func (fd *fakeDrive) session(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(r.Body)
	require.NoError(fd.t, err)
	fd.mu.Lock()
	defer fd.mu.Unlock()
	last := &fd.uploads[len(fd.uploads)-1]
	rng := r.Header.Get("Content-Range")

	if strings.HasPrefix(rng, "bytes */") {
		fd.calls["status"]++
		if len(last.Content) > 0 {
			w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(last.Content)-1))
		}
		w.WriteHeader(http.StatusPermanentRedirect)
		return
	}

	fd.calls["put"]++
	if rng != "" {
		fd.ranges = append(fd.ranges, rng)
	}
	if fd.sessionFailures > 0 {
		fd.sessionFailures--
		last.Content = append(last.Content, content[:len(content)/2]...)
		apiError(w, http.StatusServiceUnavailable, "backend error")
		return
	}
	last.Content = append(last.Content, content...)
	last.MimeType = r.Header.Get("Content-Type")
	writeJSON(w, http.StatusOK, map[string]any{
		"id": "big-1", "name": last.Meta["name"], "size": fmt.Sprint(len(last.Content)),
	})
}

type clientOpts struct {
	principal *identity.Principal
	token     *oauth2.Token
	threshold int64
}

func newTestClient(t *testing.T, fd *fakeDrive, o clientOpts) (*Client, *identity.Auditor) {
	t.Helper()
	if o.principal == nil {
		o.principal = &identity.Principal{Email: testEmail, Roles: []string{"admin"}, AccessToken: "id-token"}
	}
	if o.token == nil {
		o.token = &oauth2.Token{AccessToken: "ya29.test", Expiry: time.Now().Add(time.Hour)}
	}
	if o.threshold == 0 {
		o.threshold = 16
	}

	aud := identity.NewAuditor(0, nil)
	guard := &identity.Guard{
		Provider:   identity.StaticProvider{P: o.principal},
		Authorizer: identity.NewAuthorizer(identity.DefaultRoles, nil),
		Auditor:    aud,
	}

	c, err := New(context.Background(), guard, oauth2.StaticTokenSource(o.token),
		retry.New(3, time.Millisecond, logging.Discard()), logging.Discard(),
		Options{
			DriveEndpoint:      fd.srv.URL + "/drive/v3/",
			UserinfoURL:        fd.srv.URL + "/userinfo",
			MultipartThreshold: o.threshold,
			BaseClient:         fd.srv.Client(),
		})
	require.NoError(t, err)
	return c, aud
}
