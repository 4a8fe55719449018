// Package client implements the HTTP client for the Mergin server API.
//
// The client wraps a stdlib http.Client and speaks the server's v1 JSON
// API: authentication, project listing and management, raw file download
// (with HTTP Range support for parallel transfers) and the chunked push
// transaction protocol (start → upload chunks → finish/cancel).
//
// Transient failures (network errors, 5xx responses) on read-only
// requests are retried with exponential backoff and jitter. Client-side
// errors (4xx) are never retried and are mapped to sentinel errors so
// callers can branch on them with errors.Is.
package client
