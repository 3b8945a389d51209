package vault

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
)

// OpenDir returns the host directory dir as a hackpadfs.FS rooted at dir.
func OpenDir(dir string) (hackpadfs.FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	root := osfs.NewFS()

	// hackpadfs paths are slash separated and relative to the root
	rel := strings.TrimPrefix(filepath.ToSlash(abs), "/")
	if rel == "" {
		return root, nil
	}
	sub, err := root.Sub(rel)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault %s: %w", dir, err)
	}
	return sub, nil
}
