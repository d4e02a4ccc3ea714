package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another build holds the lock. The build
// never waits: concurrent invocations are an operational mistake and the
// second one should fail loudly.
var ErrLockHeld = errors.New("another build is running")

// lockInfo is what a build writes into the lock file, so a stuck lock can
// be diagnosed by hand.
type lockInfo struct {
	BuildID string    `json:"build_id"`
	PID     int       `json:"pid"`
	Host    string    `json:"host"`
	Started time.Time `json:"started"`
}

// Lock is an exclusive filesystem lock on the build state.
type Lock struct {
	path string
	id   string
}

// AcquireLock takes the build lock at path, failing immediately if it is
// already held. The returned lock's ID tags every log line of the run.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, describeHolder(path))
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	info := lockInfo{
		BuildID: uuid.NewString(),
		PID:     os.Getpid(),
		Started: time.Now().UTC(),
	}
	info.Host, _ = os.Hostname()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock: %w", err)
	}
	return &Lock{path: path, id: info.BuildID}, nil
}

// ID returns the unique id of the build holding this lock.
func (l *Lock) ID() string { return l.id }

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// describeHolder reads the existing lock file for the error message. A
// corrupt or unreadable file still names the path so an operator can act.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("lock file %s unreadable", path)
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.BuildID == "" {
		return fmt.Sprintf("lock file %s has no readable holder", path)
	}
	return fmt.Sprintf("held by build %s (pid %d on %s, started %s, age %s)",
		info.BuildID, info.PID, info.Host,
		info.Started.Format(time.RFC3339), time.Since(info.Started).Round(time.Second))
}
