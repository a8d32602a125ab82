package dedup

import (
	"fmt"
	"os"
	"syscall"

	"github.com/perimetra/vulnfeed/internal/errors"
)

// acquireLock creates lockPath with O_EXCL and writes the holder pid. A lock
// whose owning process no longer exists is taken over; a lock held by a live
// process fails with ErrStoreLocked.
func acquireLock(lockPath string) error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil {
				return errors.NewTransientf("failed to write lock file: %w", werr)
			}
			return cerr
		}
		if !os.IsExist(err) {
			return errors.NewTransientf("failed to create lock file: %w", err)
		}

		data, readErr := os.ReadFile(lockPath)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				// Holder released between attempts, retry the create
				continue
			}
			return errors.NewTransientf("failed to read lock file: %w", readErr)
		}

		var pid int
		if _, scanErr := fmt.Sscanf(string(data), "%d", &pid); scanErr != nil || pid <= 0 {
			return errors.NewPermanentf("lock file %s is unreadable: %w", lockPath, errors.ErrStoreLocked)
		}

		if processAlive(pid) {
			return errors.NewPermanentf("lock held by running process %d: %w", pid, errors.ErrStoreLocked)
		}

		// Stale lock from a dead process, take it over
		if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return errors.NewTransientf("failed to remove stale lock: %w", rmErr)
		}
	}

	return errors.NewPermanentf("lock contention on %s: %w", lockPath, errors.ErrStoreLocked)
}

// releaseLock removes the lock file; a missing file is not an error
func releaseLock(lockPath string) error {
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// processAlive reports whether a process with the given pid exists. Signal 0
// probes without delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
