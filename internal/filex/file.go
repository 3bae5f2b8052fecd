package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureSubDir creates base/name (base defaults to the working directory)
// and returns its absolute path. An absolute name ignores base.
// Existing directories are reused.
func EnsureSubDir(base, name string) (string, error) {
	dir := filepath.Clean(name)

	if !filepath.IsAbs(dir) {
		if base == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("getwd: %w", err)
			}
			base = cwd
		}
		abs, err := filepath.Abs(filepath.Join(base, name))
		if err != nil {
			return "", fmt.Errorf("abs %s: %w", name, err)
		}
		dir = abs
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
