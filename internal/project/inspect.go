package project

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// IgnoreFile reports whether a file name is excluded from synchronization.
// Matching is by exact name or by suffix against the ignore lists in the
// project options.
func (p *Project) IgnoreFile(name string) bool {
	base := filepath.Base(name)
	for _, f := range p.opts.IgnoreFiles {
		if base == f {
			return true
		}
	}
	for _, ext := range p.opts.IgnoreExt {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

// InspectFiles walks the project directory and returns metadata for every
// synchronized file: POSIX path, SHA-1 checksum, size and mtime. The
// .mergin meta directory and ignored files are skipped. Results are
// sorted by path so output and metadata snapshots are deterministic.
func (p *Project) InspectFiles() ([]model.FileInfo, error) {
	var files []model.FileInfo

	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == p.metaDir {
				return filepath.SkipDir
			}
			return nil
		}
		if p.IgnoreFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(p.dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		checksum, err := Checksum(path)
		if err != nil {
			return err
		}

		files = append(files, model.FileInfo{
			Path:     filepath.ToSlash(rel),
			Checksum: checksum,
			Size:     info.Size(),
			Mtime:    info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "inspect project files")
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	p.log.Debug("inspected project files", zap.String("dir", p.dir), zap.Int("count", len(files)))
	return files, nil
}

// Checksum computes the SHA-1 hex digest of a file's content. SHA-1 is
// the server's file identity format, not a security boundary.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "open %q for checksum", path)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "checksum %q", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile copies src to dst, truncating dst if it exists. Permissions of
// the source file are preserved.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %q", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %q", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "create %q", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %q to %q", src, dst)
	}
	return out.Close()
}

// moveFile renames src to dst, falling back to copy+remove when the
// rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
