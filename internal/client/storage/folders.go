package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	drive "google.golang.org/api/drive/v3"
)

const folderFields = "id, name, mimeType, parents, capabilities(canAddChildren, canListChildren)"

// CreateFolder creates a folder under parentID (root when empty). It is not
// idempotent: two calls create two folders with the same name.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.Validationf("folder name cannot be empty")
	}
	if parentID == "" {
		parentID = common.RootFolderID
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	meta := &drive.File{Name: name, MimeType: common.FolderMimeType, Parents: []string{parentID}}
	f, err := retry.Value(ctx, c.retry, "create folder", func(ctx context.Context) (*drive.File, error) {
		f, err := c.drive.Files.Create(meta).Fields(folderFields).Context(ctx).Do()
		return f, WrapError(fmt.Sprintf("create folder %q", name), err)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info(ctx, "folder created", "name", name, "id", f.Id, "parent", parentID)
	return folderFromDrive(f, parentID), nil
}

// FindFolderByNameInParent returns the first non-trashed folder called name
// directly under parentID, or nil if there is none. Names are not unique, so
// which of several duplicates is returned is up to Drive.
func (c *Client) FindFolderByNameInParent(ctx context.Context, name, parentID string) (*Folder, error) {
	if parentID == "" {
		parentID = common.RootFolderID
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	q := FolderQuery(name, parentID)
	list, err := retry.Value(ctx, c.retry, "find folder", func(ctx context.Context) (*drive.FileList, error) {
		l, err := c.drive.Files.List().Q(q).Fields("files(" + folderFields + ")").PageSize(10).Context(ctx).Do()
		return l, WrapError(fmt.Sprintf("find folder %q", name), err)
	})
	if err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	if len(list.Files) > 1 {
		c.log.Warn(ctx, "duplicate folders found, using first", "name", name, "parent", parentID, "count", len(list.Files))
	}
	return folderFromDrive(list.Files[0], parentID), nil
}

// GetFolder fetches a folder's metadata and capabilities. A missing folder
// yields a *common.HTTPError with status 404.
func (c *Client) GetFolder(ctx context.Context, id string) (*Folder, error) {
	if strings.TrimSpace(id) == "" {
		return nil, common.Validationf("folder id cannot be empty")
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	f, err := retry.Value(ctx, c.retry, "get folder", func(ctx context.Context) (*drive.File, error) {
		f, err := c.drive.Files.Get(id).Fields(folderFields + ", trashed").Context(ctx).Do()
		return f, WrapError("get folder "+id, err)
	})
	if err != nil {
		return nil, err
	}
	if f.Trashed {
		return nil, fmt.Errorf("get folder %s: %w", id, &common.HTTPError{StatusCode: 404, Body: "folder is trashed"})
	}
	return folderFromDrive(f, ""), nil
}

// FolderQuery builds the Drive search expression for a folder by name and
// parent.
func FolderQuery(name, parentID string) string {
	return FileQuery(name, parentID, common.FolderMimeType)
}

// FileQuery matches a non-trashed item by name, parent and MIME type.
func FileQuery(name, parentID, mimeType string) string {
	return fmt.Sprintf("name='%s' and %s", escapeQuery(name), ChildrenQuery(parentID, mimeType))
}

// ChildrenQuery matches the non-trashed items of one MIME type directly
// inside parentID. An empty mimeType matches any type.
func ChildrenQuery(parentID, mimeType string) string {
	q := fmt.Sprintf("'%s' in parents", escapeQuery(parentID))
	if mimeType != "" {
		q += fmt.Sprintf(" and mimeType='%s'", escapeQuery(mimeType))
	}
	return q + " and trashed=false"
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
