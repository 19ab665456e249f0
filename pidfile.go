package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o700
)

// errWatcherRunning is returned when another watcher holds the PID file.
var errWatcherRunning = errors.New("another ircup watch is already running")

// writePIDFile writes the current process ID to path and holds an exclusive
// flock on it. The returned cleanup removes the file and releases the lock.
// The lock is what enforces a single watcher per data directory; the PID
// inside is only for "kill -HUP".
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty; data_dir is not set")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, readErr := readPIDFile(path); readErr == nil {
				return nil, fmt.Errorf("%w (PID %d, lock %s)", errWatcherRunning, pid, path)
			}

			return nil, fmt.Errorf("%w (lock %s)", errWatcherRunning, path)
		}

		return nil, fmt.Errorf("locking PID file: %w", err)
	}

	if err := writePID(f); err != nil {
		f.Close()
		return nil, err
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing PID file: %w", err)
	}

	return nil
}

// readPIDFile reads the PID from path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// sendSIGHUP asks the watcher recorded in pidPath to reload its config.
// A PID file left behind by a dead process is removed.
func sendSIGHUP(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no running watcher found (no PID file at %s)", pidPath)
		}

		return err
	}

	// Signal 0 probes for existence without delivering anything.
	if err := unix.Kill(pid, 0); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("watcher (PID %d) is not running; removed stale PID file", pid)
	}

	if err := unix.Kill(pid, unix.SIGHUP); err != nil {
		return fmt.Errorf("sending SIGHUP to watcher (PID %d): %w", pid, err)
	}

	return nil
}
