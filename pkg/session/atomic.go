package session

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// cryptoRead fills b with random bytes for session id disambiguation.
func cryptoRead(b []byte) (int, error) {
	return rand.Read(b)
}

// writeFileAtomic writes data through a temp file in the same directory
// followed by a rename, so readers observe either the old content or the
// new content, never a torn write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
