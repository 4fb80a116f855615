package resource

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace hands out build directories.
type Workspace interface {
	// Dir returns the directory owner should build in, creating it.
	Dir(owner string) (string, error)
}

// SharedWorkspace gives every build the same directory under Root, so
// concurrent builds overwrite each other's artifacts.
type SharedWorkspace struct {
	Root string
}

func (w SharedWorkspace) Dir(string) (string, error) {
	dir := filepath.Join(w.Root, "build")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create build dir: %w", err)
	}
	return dir, nil
}

// PrivateWorkspace gives each build a fresh temporary directory under Root.
type PrivateWorkspace struct {
	Root string
}

func (w PrivateWorkspace) Dir(owner string) (string, error) {
	dir, err := os.MkdirTemp(w.Root, "build-"+owner+"-")
	if err != nil {
		return "", fmt.Errorf("create build dir for %s: %w", owner, err)
	}
	return dir, nil
}
