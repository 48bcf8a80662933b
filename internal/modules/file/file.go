// Package file places files on the local filesystem.
package file

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultMode is used when Place is called with a zero mode.
const DefaultMode os.FileMode = 0o644

// Place makes dest a copy of src with the given mode. It reports whether
// anything changed. A dest that already has the same content only gets its
// mode fixed. Placing a file onto itself is a no-op.
func Place(src, dest string, mode os.FileMode) (bool, error) {
	if mode == 0 {
		mode = DefaultMode
	}

	src, err := filepath.Abs(src)
	if err != nil {
		return false, err
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return false, err
	}
	if src == dest {
		return false, nil
	}

	srcSum, err := checksum(src)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", src, err)
	}

	info, err := os.Lstat(dest)
	switch {
	case os.IsNotExist(err):
		return true, copyFile(src, dest, mode)
	case err != nil:
		return false, err
	case info.IsDir():
		return false, fmt.Errorf("'%s' exists but is a directory", dest)
	}

	destSum, err := checksum(dest)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dest, err)
	}
	if bytes.Equal(srcSum, destSum) {
		return ensureMode(dest, info.Mode().Perm(), mode)
	}
	return true, copyFile(src, dest, mode)
}

func checksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile applies the umask; set the mode explicitly.
	return os.Chmod(dest, mode)
}

func ensureMode(path string, current, want os.FileMode) (bool, error) {
	if current == want {
		return false, nil
	}
	if err := os.Chmod(path, want); err != nil {
		return false, err
	}
	return true, nil
}
