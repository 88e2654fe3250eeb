// Package cli provides the gophdrive command-line client.
//
// It loads configuration, assembles the client graph, and either runs a
// single command given on the command line or an interactive REPL.
//
// Commands:
//   - upload <json> <pdf> [set name]: upload an annotation set and print
//     the category breakdown of the JSON
//   - history, clear-history: the local upload log
//   - folders: the provisioned Drive folders
//   - events: recent security events
package cli
