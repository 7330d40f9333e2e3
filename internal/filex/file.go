// Package filex holds small filesystem helpers shared by the storage layers.
package filex

import (
	"fmt"
	"os"
)

// PrivateDirPerm is the mode of directories holding vault data.
const PrivateDirPerm os.FileMode = 0o700

// EnsurePrivateDir creates dir and its parents with PrivateDirPerm if they
// are missing. Existing directories keep their mode; an existing
// non-directory is an error.
func EnsurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, PrivateDirPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
