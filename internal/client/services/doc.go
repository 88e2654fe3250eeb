// Package services holds the annotation upload orchestrator: it pairs a JSON
// import into Google Sheets with a PDF upload into Drive, records partial
// failures per artifact and keeps the local upload history.
package services
