// Package plan decides which outputs a build run must regenerate, driven by
// the persisted last-successful-build marker.
package plan

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Marker is the single persisted timestamp of the last successful build.
// Its absence, or explicit deletion, forces full regeneration.
type Marker struct {
	Path string
}

// Read returns the recorded timestamp. ok is false when no marker exists.
func (m *Marker) Read() (t time.Time, ok bool, err error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read build marker: %w", err)
	}
	t, err = time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		// An unreadable marker is treated like a deleted one.
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Write commits the timestamp via temp-then-rename. It is called only after
// the full pipeline has succeeded, so an interrupted run redoes the same
// window instead of silently skipping changes.
func (m *Marker) Write(t time.Time) error {
	tmp := m.Path + ".tmp"
	data := t.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write build marker: %w", err)
	}
	if err := os.Rename(tmp, m.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit build marker: %w", err)
	}
	return nil
}

// Delete removes the marker, forcing the next run to rebuild everything.
func (m *Marker) Delete() error {
	err := os.Remove(m.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
