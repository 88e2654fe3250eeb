// Package client assembles the gophdrive client: it opens the local state
// database, builds the OAuth token source, the Drive and Sheets clients,
// the folder provisioner and the annotation service, and starts them in
// dependency order.
//
// The graph is built once by New and handed to consumers; nothing in it is
// a package-level singleton.
package client
