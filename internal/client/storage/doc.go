// Package storage is the authenticated Google Drive client.
//
// Every exported operation first runs EnsureAuthenticated (role check,
// token refresh, identity validation) and then performs its request under
// the shared retry policy. Non-2xx responses surface as *common.HTTPError;
// interpreting particular status codes is left to the caller.
//
// Uploads up to the multipart threshold are sent as one multipart request;
// larger payloads use a two-phase resumable session.
package storage
