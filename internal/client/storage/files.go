package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const fileFields = "id, name, mimeType, parents, size, webViewLink, createdTime, modifiedTime"

// encodeContent turns arbitrary content into upload bytes: nil becomes
// empty, strings and byte slices pass through, anything else is JSON.
func encodeContent(content any) ([]byte, error) {
	switch v := content.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, common.Validationf("content cannot be serialized: %v", err)
		}
		return b, nil
	}
}

func media(data []byte, mimeType string) (io.Reader, []googleapi.MediaOption) {
	return bytes.NewReader(data), []googleapi.MediaOption{googleapi.ContentType(mimeType), googleapi.ChunkSize(0)}
}

// CreateFile uploads content as a new file under parentID with a single
// multipart request.
func (c *Client) CreateFile(ctx context.Context, name string, content any, mimeType, parentID string) (*File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.Validationf("file name cannot be empty")
	}
	if mimeType == "" {
		mimeType = common.JSONMimeType
	}
	if parentID == "" {
		parentID = common.RootFolderID
	}
	data, err := encodeContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	f, err := c.createMultipart(ctx, &drive.File{Name: name, MimeType: mimeType, Parents: []string{parentID}}, data)
	if err != nil {
		return nil, err
	}
	c.log.Info(ctx, "file created", "name", name, "id", f.Id, "bytes", len(data))
	return fileFromDrive(f), nil
}

func (c *Client) createMultipart(ctx context.Context, meta *drive.File, data []byte) (*drive.File, error) {
	return retry.Value(ctx, c.retry, "create file", func(ctx context.Context) (*drive.File, error) {
		r, opts := media(data, meta.MimeType)
		f, err := c.drive.Files.Create(meta).Media(r, opts...).Fields(fileFields).Context(ctx).Do()
		return f, WrapError(fmt.Sprintf("create file %q", meta.Name), err)
	})
}

// UpdateFile replaces the content of an existing file.
func (c *Client) UpdateFile(ctx context.Context, id string, content any, mimeType string) (*File, error) {
	if strings.TrimSpace(id) == "" {
		return nil, common.Validationf("file id cannot be empty")
	}
	if mimeType == "" {
		mimeType = common.JSONMimeType
	}
	data, err := encodeContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	f, err := retry.Value(ctx, c.retry, "update file", func(ctx context.Context) (*drive.File, error) {
		r, opts := media(data, mimeType)
		f, err := c.drive.Files.Update(id, &drive.File{}).Media(r, opts...).Fields(fileFields).Context(ctx).Do()
		return f, WrapError("update file "+id, err)
	})
	if err != nil {
		return nil, err
	}
	return fileFromDrive(f), nil
}

// ListFiles returns every file matching the Drive query q, following pages.
func (c *Client) ListFiles(ctx context.Context, q string) ([]File, error) {
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var out []File
	pageToken := ""
	for {
		list, err := retry.Value(ctx, c.retry, "list files", func(ctx context.Context) (*drive.FileList, error) {
			call := c.drive.Files.List().Fields("nextPageToken, files("+fileFields+")").PageSize(100).Context(ctx)
			if q != "" {
				call = call.Q(q)
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			l, err := call.Do()
			return l, WrapError("list files", err)
		})
		if err != nil {
			return nil, err
		}
		for _, f := range list.Files {
			out = append(out, *fileFromDrive(f))
		}
		if list.NextPageToken == "" {
			return out, nil
		}
		pageToken = list.NextPageToken
	}
}

// GetFileContent downloads a file's bytes.
func (c *Client) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, common.Validationf("file id cannot be empty")
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	return retry.Value(ctx, c.retry, "get file content", func(ctx context.Context) ([]byte, error) {
		resp, err := c.drive.Files.Get(id).Context(ctx).Download()
		if err != nil {
			return nil, WrapError("download "+id, err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}
		return b, nil
	})
}

// DeleteFile permanently removes a file or folder.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return common.Validationf("file id cannot be empty")
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return err
	}

	return c.retry.Do(ctx, "delete file", func(ctx context.Context) error {
		return WrapError("delete "+id, c.drive.Files.Delete(id).Context(ctx).Do())
	})
}

// MoveFile adds newParentID to a file's parents and removes removeParents.
// With no removeParents the file's current parents are removed, so the
// file ends up only in newParentID.
func (c *Client) MoveFile(ctx context.Context, id, newParentID string, removeParents []string) (*File, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(newParentID) == "" {
		return nil, common.Validationf("file id and target folder are required")
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	if len(removeParents) == 0 {
		cur, err := retry.Value(ctx, c.retry, "get parents", func(ctx context.Context) (*drive.File, error) {
			f, err := c.drive.Files.Get(id).Fields("parents").Context(ctx).Do()
			return f, WrapError("get parents "+id, err)
		})
		if err != nil {
			return nil, err
		}
		for _, p := range cur.Parents {
			if p != newParentID {
				removeParents = append(removeParents, p)
			}
		}
	}

	f, err := retry.Value(ctx, c.retry, "move file", func(ctx context.Context) (*drive.File, error) {
		call := c.drive.Files.Update(id, &drive.File{}).AddParents(newParentID).Fields(fileFields).Context(ctx)
		if len(removeParents) > 0 {
			call = call.RemoveParents(strings.Join(removeParents, ","))
		}
		f, err := call.Do()
		return f, WrapError("move "+id, err)
	})
	if err != nil {
		return nil, err
	}
	return fileFromDrive(f), nil
}
