// Package sheets turns JSON payloads into spreadsheet grids and imports
// them into Google Sheets through the storage client's authorized
// transport.
package sheets
