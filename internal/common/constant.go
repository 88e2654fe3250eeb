package common

// Drive mime types and well-known ids.
const (
	FolderMimeType      = "application/vnd.google-apps.folder"
	SpreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	PDFMimeType         = "application/pdf"
	JSONMimeType        = "application/json"

	// RootFolderID addresses the top of the user's My Drive.
	RootFolderID = "root"
)
