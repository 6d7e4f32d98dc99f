// Package ipc implements daemon control over JSON-RPC on a Unix domain
// socket. The CLI is the primary client; the HTTP API covers remote
// callers.
package ipc
