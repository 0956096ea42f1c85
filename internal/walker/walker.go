// Package walker enumerates candidate record files under a dump directory.
package walker

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

// Walk returns every regular file beneath root, sorted lexically so that
// reporting is reproducible. Symlinks are followed to their target when it is
// a regular file, or when the target cannot be resolved so the failure shows
// up for that file. Only an unreadable root is fatal and reported as
// *ingest.DirectoryUnreadableError; unreadable subdirectories are logged and
// skipped.
func Walk(root string, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ingest.DirectoryUnreadableError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ingest.DirectoryUnreadableError{Root: root, Err: errors.New("not a directory")}
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		switch {
		case d.Type().IsRegular():
			files = append(files, path)
		case d.Type()&fs.ModeSymlink != 0:
			if includeSymlink(path) {
				files = append(files, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &ingest.DirectoryUnreadableError{Root: root, Err: err}
	}
	sort.Strings(files)
	return files, nil
}

// includeSymlink keeps links to regular files and dangling links. Links to
// directories are not descended, and links to devices or pipes are skipped.
func includeSymlink(path string) bool {
	target, err := os.Stat(path)
	if err != nil {
		return true
	}
	return target.Mode().IsRegular()
}
