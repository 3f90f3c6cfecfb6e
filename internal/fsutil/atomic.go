// Package fsutil holds filesystem helpers shared by the persistence layers.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conn-castle/patchmirror/internal/messages"
)

// WriteFileAtomic replaces path with data. The content is written to a
// temporary file in the same directory, synced, then renamed over path, so a
// reader sees either the old or the new content and never a partial file.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf(messages.FsutilCreateDirFmt, dir, err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf(messages.FsutilCreateTempFmt, path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf(messages.FsutilWriteTempFmt, path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf(messages.FsutilSyncTempFmt, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf(messages.FsutilCloseTempFmt, path, err)
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf(messages.FsutilChmodFmt, path, err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf(messages.FsutilRenameFmt, path, err)
	}
	committed = true
	return nil
}

// Exists reports whether path exists; errors other than not-exist are returned.
func Exists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
