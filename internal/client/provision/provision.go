// Package provision makes sure the project folder and its two children
// exist in Drive before anything is uploaded.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"golang.org/x/sync/singleflight"
)

// CacheKey is the local metadata key holding the last known structure.
const CacheKey = "folder_structure"

type State string

const (
	StateUninitialized State = "uninitialized"
	StateProvisioning  State = "provisioning"
	StateReady         State = "ready"
)

// Names are the folder names to provision.
type Names struct {
	Project string
	JSON    string
	PDF     string
}

// DefaultNames is the standard hierarchy.
var DefaultNames = Names{Project: "Annotations Project", JSON: "JSON Sheets", PDF: "PDF Files"}

// Structure holds the ids of the provisioned folders.
type Structure struct {
	ProjectFolderID string `json:"projectFolderId"`
	JSONFolderID    string `json:"jsonFolderId"`
	PDFFolderID     string `json:"pdfFolderId"`
}

func (s Structure) ProjectURL() string { return storage.FolderURL(s.ProjectFolderID) }
func (s Structure) JSONURL() string    { return storage.FolderURL(s.JSONFolderID) }
func (s Structure) PDFURL() string     { return storage.FolderURL(s.PDFFolderID) }

func (s Structure) complete() bool {
	return s.ProjectFolderID != "" && s.JSONFolderID != "" && s.PDFFolderID != ""
}

// FolderStore is the subset of the storage client used here.
type FolderStore interface {
	FindFolderByNameInParent(ctx context.Context, name, parentID string) (*storage.Folder, error)
	CreateFolder(ctx context.Context, name, parentID string) (*storage.Folder, error)
	GetFolder(ctx context.Context, id string) (*storage.Folder, error)
}

// Cache persists the structure between runs. metadata.Repository satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Provisioner finds or creates the folder hierarchy. Concurrent Ensure
// calls in one process share a single provisioning run; separate processes
// can still race and create duplicate folders.
type Provisioner struct {
	store FolderStore
	cache Cache
	names Names
	log   logging.Logger

	group singleflight.Group

	mu        sync.Mutex
	state     State
	structure Structure
}

// New returns a provisioner. cache may be nil.
func New(store FolderStore, cache Cache, names Names, log logging.Logger) *Provisioner {
	if names.Project == "" {
		names.Project = DefaultNames.Project
	}
	if names.JSON == "" {
		names.JSON = DefaultNames.JSON
	}
	if names.PDF == "" {
		names.PDF = DefaultNames.PDF
	}
	return &Provisioner{
		store: store,
		cache: cache,
		names: names,
		log:   log.With("component", "provision"),
		state: StateUninitialized,
	}
}

func (p *Provisioner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Structure returns the provisioned structure and whether it is ready.
func (p *Provisioner) Structure() (Structure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.structure, p.state == StateReady
}

func (p *Provisioner) Names() Names {
	return p.names
}

// Ensure returns the folder structure, provisioning it on first use.
func (p *Provisioner) Ensure(ctx context.Context) (Structure, error) {
	if s, ok := p.Structure(); ok {
		return s, nil
	}

	// The shared run must not inherit one caller's cancellation; each
	// caller stops waiting on its own ctx instead.
	ch := p.group.DoChan("provision", func() (any, error) {
		return p.provision(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Structure{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Structure{}, r.Err
		}
		return r.Val.(Structure), nil
	}
}

// Reset forgets the structure in memory and in the cache.
func (p *Provisioner) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.state = StateUninitialized
	p.structure = Structure{}
	p.mu.Unlock()

	if p.cache == nil {
		return nil
	}
	return p.cache.Delete(ctx, CacheKey)
}

func (p *Provisioner) provision(ctx context.Context) (Structure, error) {
	p.mu.Lock()
	if p.state == StateReady {
		s := p.structure
		p.mu.Unlock()
		return s, nil
	}
	p.state = StateProvisioning
	p.mu.Unlock()

	s, err := p.resolve(ctx)

	p.mu.Lock()
	if err != nil {
		p.state = StateUninitialized
		p.mu.Unlock()
		p.log.Error(ctx, "folder provisioning failed", "error", err)
		return Structure{}, err
	}
	p.state = StateReady
	p.structure = s
	p.mu.Unlock()

	p.log.Info(ctx, "folder structure ready",
		"project", s.ProjectFolderID, "json", s.JSONFolderID, "pdf", s.PDFFolderID)
	return s, nil
}

func (p *Provisioner) resolve(ctx context.Context) (Structure, error) {
	if s, ok, err := p.fromCache(ctx); err != nil {
		return Structure{}, err
	} else if ok {
		return s, nil
	}

	project, err := p.findOrCreate(ctx, p.names.Project, common.RootFolderID)
	if err != nil {
		return Structure{}, err
	}
	jsonFolder, err := p.findOrCreate(ctx, p.names.JSON, project.ID)
	if err != nil {
		return Structure{}, err
	}
	pdfFolder, err := p.findOrCreate(ctx, p.names.PDF, project.ID)
	if err != nil {
		return Structure{}, err
	}

	s := Structure{ProjectFolderID: project.ID, JSONFolderID: jsonFolder.ID, PDFFolderID: pdfFolder.ID}
	p.saveCache(ctx, s)
	return s, nil
}

func (p *Provisioner) findOrCreate(ctx context.Context, name, parentID string) (*storage.Folder, error) {
	f, err := p.store.FindFolderByNameInParent(ctx, name, parentID)
	if err != nil {
		return nil, fmt.Errorf("find folder %q: %w", name, err)
	}
	if f != nil {
		p.log.Debug(ctx, "folder exists", "name", name, "id", f.ID)
		return f, nil
	}

	f, err = p.store.CreateFolder(ctx, name, parentID)
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	return f, nil
}

// fromCache loads a cached structure and confirms all three folders still
// exist. A 404 (GetFolder reports trashed folders as 404) discards the
// cache; unreadable cache entries are ignored.
func (p *Provisioner) fromCache(ctx context.Context) (Structure, bool, error) {
	if p.cache == nil {
		return Structure{}, false, nil
	}

	raw, err := p.cache.Get(ctx, CacheKey)
	if err != nil || raw == nil {
		if err != nil {
			p.log.Warn(ctx, "folder cache unreadable", "error", err)
		}
		return Structure{}, false, nil
	}

	var s Structure
	if err := json.Unmarshal(raw, &s); err != nil || !s.complete() {
		p.log.Warn(ctx, "folder cache corrupt, discarding")
		p.dropCache(ctx)
		return Structure{}, false, nil
	}

	for _, id := range []string{s.ProjectFolderID, s.JSONFolderID, s.PDFFolderID} {
		if _, err := p.store.GetFolder(ctx, id); err != nil {
			if common.StatusCode(err) == 404 {
				p.log.Warn(ctx, "cached folder is gone, reprovisioning", "id", id)
				p.dropCache(ctx)
				return Structure{}, false, nil
			}
			return Structure{}, false, fmt.Errorf("check cached folder %s: %w", id, err)
		}
	}
	return s, true, nil
}

func (p *Provisioner) saveCache(ctx context.Context, s Structure) {
	if p.cache == nil {
		return
	}
	b, err := json.Marshal(s)
	if err == nil {
		err = p.cache.Set(ctx, CacheKey, b)
	}
	if err != nil {
		p.log.Warn(ctx, "could not cache folder structure", "error", err)
	}
}

func (p *Provisioner) dropCache(ctx context.Context) {
	if err := p.cache.Delete(ctx, CacheKey); err != nil {
		p.log.Warn(ctx, "could not drop folder cache", "error", err)
	}
}
