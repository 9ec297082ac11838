// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// CacheOp caps the wait time for a single cache round trip. The query path
// fails open on expiry, so this stays short.
const CacheOp = 250 * time.Millisecond

// CacheProbe caps the set-get-delete health probe against the cache service.
const CacheProbe = 1 * time.Second

// ProjectionCatchUp caps a single projection catch-up pass.
const ProjectionCatchUp = 30 * time.Second

// Shutdown limits how long the runtime waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
