// Package timeouts defines shared timeout constants used across the chat
// service. Centralizing these values prevents drift between boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StorageDrain caps the wait for queued log writes when the background
// pool closes.
const StorageDrain = 10 * time.Second
