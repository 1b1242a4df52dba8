// Package lockfile implements subtrans.lock — a pid lock that keeps two
// subtrans processes from competing for the same translation device.
//
// The model server's device is a serially-reusable exclusive resource;
// in-process callers are serialized by the backend adapter, and this lock
// extends the same exclusion across processes. A lock whose owning process
// is gone is treated as stale and taken over.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the default lock file name.
const LockFileName = "subtrans.lock"

// Lock is a held lock file.
type Lock struct {
	path string
	pid  int
}

// Acquire takes the lock in dir. It fails if another live process holds it;
// stale locks from dead processes are replaced.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)
	pid := os.Getpid()

	data, err := os.ReadFile(path)
	if err == nil {
		owner, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && owner != pid && processAlive(owner) {
			return nil, fmt.Errorf("another subtrans run (pid %d) holds %s", owner, path)
		}
		// Stale or unreadable lock: take it over.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	owner, perr := strconv.Atoi(strings.TrimSpace(string(data)))
	if perr == nil && owner != l.pid {
		// Someone took over a lock we thought we held; leave it alone.
		return nil
	}
	return os.Remove(l.path)
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// processAlive reports whether a pid refers to a running process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs the permission/existence check without signaling.
	return proc.Signal(syscall.Signal(0)) == nil
}
