package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// MetaDirName is the name of the per-project metadata directory.
const MetaDirName = ".mergin"

// metadataFileName is the snapshot file inside the meta directory.
const metadataFileName = "mergin.json"

// Project represents a local mergin project directory and provides all
// local-side sync operations: file inspection, change detection, and
// applying pulled changes.
//
// Usage:
//
//	p, err := project.Open(dir, logger)
//	if err != nil { /* not a usable directory */ }
//	changes, err := p.PushChanges()
type Project struct {
	// dir is the absolute path of the project directory.
	dir string

	// metaDir is the absolute path of the .mergin directory.
	metaDir string

	// opts holds per-project tuning loaded from .mergin/client.json,
	// falling back to defaults when the file is absent.
	opts Options

	// log receives engine-level debug output. Never nil.
	log *zap.Logger
}

// Open binds a Project to an existing directory, creating the .mergin
// meta directory if it does not exist yet. The directory itself must
// exist; a missing directory returns model.ErrInvalidProject.
//
// A nil logger is replaced with a no-op logger, so library callers that
// do not care about logging can pass nil.
func Open(dir string, logger *zap.Logger) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve project path %q", dir)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrapf(model.ErrInvalidProject, "directory %q does not exist", abs)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Project{
		dir:     abs,
		metaDir: filepath.Join(abs, MetaDirName),
		log:     logger,
	}
	if err := os.MkdirAll(p.metaDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create meta directory")
	}

	opts, err := LoadOptions(p.metaDir)
	if err != nil {
		return nil, err
	}
	p.opts = opts

	return p, nil
}

// Dir returns the absolute path of the project directory.
func (p *Project) Dir() string {
	return p.dir
}

// Options returns the effective per-project options.
func (p *Project) Options() Options {
	return p.opts
}

// AbsPath returns the absolute path of a project-relative POSIX path,
// creating parent directories as needed so the returned path can be
// written to immediately. This mirrors the behavior the sync engine
// relies on when materializing downloaded files.
func (p *Project) AbsPath(rel string) (string, error) {
	return ensuredPath(p.dir, rel)
}

// MetaPath is AbsPath for the .mergin meta directory. Base-file backups
// and in-flight sync artifacts live there under their project paths.
func (p *Project) MetaPath(rel string) (string, error) {
	return ensuredPath(p.metaDir, rel)
}

// ensuredPath joins root and a POSIX-relative path and makes sure the
// parent directory of the result exists.
func ensuredPath(root, rel string) (string, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", errors.Wrapf(err, "create parent directories for %q", rel)
	}
	return abs, nil
}

// Metadata reads the mergin.json snapshot. A project directory without
// the snapshot (never downloaded or initialized) returns
// model.ErrInvalidProject.
func (p *Project) Metadata() (model.Metadata, error) {
	var md model.Metadata
	data, err := os.ReadFile(filepath.Join(p.metaDir, metadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return md, errors.Wrap(model.ErrInvalidProject, "project metadata has not been created yet")
		}
		return md, errors.Wrap(err, "read project metadata")
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, errors.Wrap(err, "parse project metadata")
	}
	return md, nil
}

// SaveMetadata writes the mergin.json snapshot atomically: the new
// content is written to a temp file in the meta directory and renamed
// over the old snapshot, so a crash mid-write cannot leave a truncated
// metadata file behind.
func (p *Project) SaveMetadata(md model.Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode project metadata")
	}

	target := filepath.Join(p.metaDir, metadataFileName)
	tmp, err := os.CreateTemp(p.metaDir, metadataFileName+".*")
	if err != nil {
		return errors.Wrap(err, "create metadata temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write project metadata")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close metadata temp file")
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace project metadata")
	}

	p.log.Debug("metadata saved",
		zap.String("project", md.Name),
		zap.String("version", md.Version),
		zap.Int("files", len(md.Files)))
	return nil
}

// Inspect loads just enough of a directory to identify the project it
// holds, without constructing a full Project. Used by commands that need
// the project name before talking to the server (e.g. remove).
func Inspect(dir string) (model.Metadata, error) {
	var md model.Metadata
	data, err := os.ReadFile(filepath.Join(dir, MetaDirName, metadataFileName))
	if err != nil {
		return md, errors.Wrap(model.ErrInvalidProject, dir)
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, errors.Wrap(model.ErrInvalidProject, dir)
	}
	return md, nil
}
