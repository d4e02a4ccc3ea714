// Package metrics defines the build metrics surface. Components receive a
// Recorder through dependency injection; the default NoopRecorder makes
// metrics collection opt-in with zero overhead.
package metrics

import "time"

// Recorder receives build observations.
type Recorder interface {
	// FileHashed counts a file whose digests were recomputed.
	FileHashed()
	// CacheHit counts a checksum served from the cache.
	CacheHit()
	// PageRendered counts one written output page.
	PageRendered()
	// EntryDropped counts a document entry dropped for a missing file.
	EntryDropped()
	// BuildDuration records the wall time of a completed build.
	BuildDuration(d time.Duration)
}

// NoopRecorder ignores every observation.
type NoopRecorder struct{}

func (NoopRecorder) FileHashed()                 {}
func (NoopRecorder) CacheHit()                   {}
func (NoopRecorder) PageRendered()               {}
func (NoopRecorder) EntryDropped()               {}
func (NoopRecorder) BuildDuration(time.Duration) {}
