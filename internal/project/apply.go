package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// ApplyPullChanges updates the project directory according to a change
// set pulled from the server. Downloaded file content is read from
// tempDir, laid out under the same project-relative paths.
//
// When a pulled file collides with a local modification (the file is in
// the local push change set and its incoming checksum differs from what
// is on disk), the local version is first preserved as a _conflict_copy
// sibling. The returned slice lists the backup paths created, in the
// order the conflicts were found.
//
// Renames and removals operate on the files already in the project;
// added and updated files are copied in from tempDir.
func (p *Project) ApplyPullChanges(changes model.Changes, tempDir string) ([]string, error) {
	localChanges, err := p.PushChanges()
	if err != nil {
		return nil, err
	}

	// Paths the user has touched since the last sync. Renamed entries are
	// tracked under their new path, which is where a collision would occur.
	modified := make(map[string]bool)
	for _, f := range localChanges.Added {
		modified[f.Path] = true
	}
	for _, f := range localChanges.Updated {
		modified[f.Path] = true
	}
	for _, f := range localChanges.Renamed {
		modified[f.NewPath] = true
	}

	local, err := p.InspectFiles()
	if err != nil {
		return nil, err
	}
	localMap := make(map[string]model.FileInfo, len(local))
	for _, f := range local {
		localMap[f.Path] = f
	}

	var conflicts []string

	backupIfConflicted := func(path, incomingChecksum string) error {
		if !modified[path] {
			return nil
		}
		lf, ok := localMap[path]
		if !ok || lf.Checksum == incomingChecksum {
			return nil
		}
		backup, err := p.BackupFile(path)
		if err != nil {
			return err
		}
		if backup != "" {
			conflicts = append(conflicts, backup)
			p.log.Info("local edits preserved as conflict copy",
				zap.String("path", path), zap.String("backup", backup))
		}
		return nil
	}

	for _, f := range changes.Renamed {
		src, err := p.AbsPath(f.Path)
		if err != nil {
			return conflicts, err
		}
		dst, err := p.AbsPath(f.NewPath)
		if err != nil {
			return conflicts, err
		}
		if err := backupIfConflicted(f.NewPath, f.Checksum); err != nil {
			return conflicts, err
		}
		if err := moveFile(src, dst); err != nil {
			return conflicts, errors.Wrapf(err, "rename %q to %q", f.Path, f.NewPath)
		}
	}

	for _, f := range changes.Removed {
		dst, err := p.AbsPath(f.Path)
		if err != nil {
			return conflicts, err
		}
		if err := backupIfConflicted(f.Path, f.Checksum); err != nil {
			return conflicts, err
		}
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return conflicts, errors.Wrapf(err, "remove %q", f.Path)
		}
	}

	for _, group := range [][]model.FileInfo{changes.Added, changes.Updated} {
		for _, f := range group {
			// The download dir is read-only here; a missing source means the
			// fetch did not deliver the file and must surface as an error.
			src := filepath.Join(tempDir, filepath.FromSlash(f.Path))
			dst, err := p.AbsPath(f.Path)
			if err != nil {
				return conflicts, err
			}
			if err := backupIfConflicted(f.Path, f.Checksum); err != nil {
				return conflicts, err
			}
			if err := copyFile(src, dst); err != nil {
				return conflicts, errors.Wrapf(err, "apply %q", f.Path)
			}
		}
	}

	return conflicts, nil
}

// BackupFile copies a project file to a _conflict_copy sibling and
// returns the backup's project-relative path. When such a backup already
// exists, an incrementing index is appended (_conflict_copy2, ...).
// A missing source file yields no backup and no error.
func (p *Project) BackupFile(rel string) (string, error) {
	src, err := p.AbsPath(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "stat %q", rel)
	}

	backupRel := rel + "_conflict_copy"
	for index := 2; ; index++ {
		abs, err := p.AbsPath(backupRel)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			if err := copyFile(src, abs); err != nil {
				return "", err
			}
			return backupRel, nil
		}
		backupRel = fmt.Sprintf("%s_conflict_copy%d", rel, index)
	}
}
