package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	drive "google.golang.org/api/drive/v3"
)

const (
	uploadPath = "/upload/drive/v3/files"
	maxResumes = 3
)

// UploadFile uploads req.Data into req.ParentID, choosing multipart or
// resumable by size.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, common.Validationf("file name cannot be empty")
	}
	if req.MimeType == "" {
		req.MimeType = "application/octet-stream"
	}
	if req.ParentID == "" {
		req.ParentID = common.RootFolderID
	}
	if _, err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	meta := &drive.File{
		Name:        req.Name,
		MimeType:    req.MimeType,
		Parents:     []string{req.ParentID},
		Description: req.Description,
	}

	size := int64(len(req.Data))
	method := SelectUploadMethod(size, c.opts.MultipartThreshold)
	c.log.Info(ctx, "uploading file", "name", req.Name, "size", size, "method", method)

	var (
		f   *drive.File
		err error
	)
	switch method {
	case MethodMultipart:
		f, err = c.createMultipart(ctx, meta, req.Data)
	default:
		f, err = retry.Value(ctx, c.retry, "resumable upload", func(ctx context.Context) (*drive.File, error) {
			return c.uploadResumable(ctx, meta, req.Data)
		})
	}
	if err != nil {
		return nil, err
	}

	res := &UploadResult{
		ID:            f.Id,
		Name:          f.Name,
		Size:          f.Size,
		CreatedTime:   f.CreatedTime,
		WebViewLink:   f.WebViewLink,
		DriveViewLink: FileViewURL(f.Id),
		FolderID:      req.ParentID,
		Method:        method,
	}
	if res.Size == 0 {
		res.Size = size
	}
	return res, nil
}

// uploadResumable opens an upload session and then sends the bytes to the
// session URL returned in the Location header.
func (c *Client) uploadResumable(ctx context.Context, meta *drive.File, data []byte) (*drive.File, error) {
	initURL, err := c.uploadURL("resumable")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, initURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", meta.MimeType)
	req.Header.Set("X-Upload-Content-Length", strconv.Itoa(len(data)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initiate resumable upload: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("initiate resumable upload: %w", err)
	}
	resp.Body.Close()

	session := resp.Header.Get("Location")
	if session == "" {
		return nil, fmt.Errorf("initiate resumable upload: no session location returned")
	}

	return c.sendSession(ctx, session, meta.MimeType, data)
}

// sendSession PUTs data to an upload session. When the transfer breaks
// with a transient error, the committed offset is read back and only the
// remainder is sent again.
func (c *Client) sendSession(ctx context.Context, session, mimeType string, data []byte) (*drive.File, error) {
	var offset int64
	for resumes := 0; ; resumes++ {
		f, err := c.putSession(ctx, session, mimeType, data, offset)
		if err == nil {
			return f, nil
		}
		if resumes == maxResumes || common.IsPermanent(err) {
			return nil, err
		}

		p, perr := c.uploadProgress(ctx, session, int64(len(data)))
		if perr != nil {
			c.log.Warn(ctx, "upload status unavailable", "error", perr)
			return nil, err
		}
		if p.file != nil {
			return p.file, nil
		}
		c.log.Info(ctx, "resuming upload", "offset", p.committed, "size", len(data))
		offset = p.committed
	}
}

func (c *Client) putSession(ctx context.Context, session, mimeType string, data []byte, offset int64) (*drive.File, error) {
	put, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(data[offset:]))
	if err != nil {
		return nil, err
	}
	put.Header.Set("Content-Type", mimeType)
	put.ContentLength = int64(len(data)) - offset
	if offset > 0 {
		put.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(data)-1, len(data)))
	}

	resp, err := c.http.Do(put)
	if err != nil {
		return nil, fmt.Errorf("upload content: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("upload content: %w", err)
	}

	var f drive.File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &f, nil
}

// uploadProgress asks a resumable session how many bytes the server has
// committed. total is the full upload size.
func (c *Client) uploadProgress(ctx context.Context, session string, total int64) (progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, http.NoBody)
	if err != nil {
		return progress{}, err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := c.http.Do(req)
	if err != nil {
		return progress{}, fmt.Errorf("upload status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPermanentRedirect {
		return progress{committed: committedBytes(resp.Header.Get("Range"))}, nil
	}
	if err := checkResponse(resp); err != nil {
		return progress{}, fmt.Errorf("upload status: %w", err)
	}

	var f drive.File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return progress{}, fmt.Errorf("decode upload response: %w", err)
	}
	return progress{committed: total, file: &f}, nil
}

// committedBytes parses a "bytes=0-N" Range header. No header means nothing
// was committed.
func committedBytes(rng string) int64 {
	last, ok := strings.CutPrefix(rng, "bytes=0-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n + 1
}

func (c *Client) uploadURL(uploadType string) (string, error) {
	base, err := url.Parse(c.opts.DriveEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse drive endpoint: %w", err)
	}
	u := base.ResolveReference(&url.URL{Path: uploadPath})
	q := url.Values{}
	q.Set("uploadType", uploadType)
	q.Set("fields", strings.ReplaceAll(fileFields, " ", ""))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// progress is the state of a resumable session. file is set once the
// upload has completed.
type progress struct {
	committed int64
	file      *drive.File
}
