package storage

import (
	"fmt"

	drive "google.golang.org/api/drive/v3"
)

// Folder is a Drive folder together with what the caller may do with it.
type Folder struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ParentID        string `json:"parentId,omitempty"`
	CanAddChildren  bool   `json:"canAddChildren"`
	CanListChildren bool   `json:"canListChildren"`
}

// File is a Drive file descriptor.
type File struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	Parents      []string `json:"parents,omitempty"`
	Size         int64    `json:"size,omitempty"`
	WebViewLink  string   `json:"webViewLink,omitempty"`
	CreatedTime  string   `json:"createdTime,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
}

// Method is the upload protocol used for a file.
type Method string

const (
	MethodMultipart Method = "multipart"
	MethodResumable Method = "resumable"
)

// SelectUploadMethod picks multipart for payloads of at most threshold
// bytes and resumable above it.
func SelectUploadMethod(size, threshold int64) Method {
	if size <= threshold {
		return MethodMultipart
	}
	return MethodResumable
}

// UploadRequest describes a file to upload.
type UploadRequest struct {
	Name        string
	Data        []byte
	MimeType    string
	ParentID    string
	Description string
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	CreatedTime   string `json:"createdTime,omitempty"`
	WebViewLink   string `json:"webViewLink,omitempty"`
	DriveViewLink string `json:"driveViewLink"`
	FolderID      string `json:"folderId"`
	FolderName    string `json:"folderName,omitempty"`
	Method        Method `json:"uploadMethod"`
}

// FileViewURL is the browser link for a Drive file.
func FileViewURL(id string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", id)
}

// FolderURL is the browser link for a Drive folder.
func FolderURL(id string) string {
	return fmt.Sprintf("https://drive.google.com/drive/folders/%s", id)
}

func folderFromDrive(f *drive.File, parentID string) *Folder {
	out := &Folder{ID: f.Id, Name: f.Name, ParentID: parentID}
	if len(f.Parents) > 0 {
		out.ParentID = f.Parents[0]
	}
	if f.Capabilities != nil {
		out.CanAddChildren = f.Capabilities.CanAddChildren
		out.CanListChildren = f.Capabilities.CanListChildren
	}
	return out
}

func fileFromDrive(f *drive.File) *File {
	return &File{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Parents:      f.Parents,
		Size:         f.Size,
		WebViewLink:  f.WebViewLink,
		CreatedTime:  f.CreatedTime,
		ModifiedTime: f.ModifiedTime,
	}
}
