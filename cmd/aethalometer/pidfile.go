package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// writePIDFile records the current process ID in path. The returned func
// removes the file again. An empty path disables the PID file.
func writePIDFile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove pid file", "path", path, "error", err)
		}
	}, nil
}
