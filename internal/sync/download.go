package sync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lutraconsulting/mergin-go/internal/client"
	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
)

// DownloadJob fetches the latest version of a server project into a
// fresh local directory and initializes its .mergin metadata.
type DownloadJob struct {
	progress

	client      *client.Client
	info        model.ProjectInfo
	dir         string
	parallelism int
	chunkSize   int64
	log         *zap.Logger
}

// PlanDownload queries the server for the project state and prepares a
// download into dir. The directory must not already contain a project;
// an existing non-empty directory is rejected so a failed command cannot
// clobber user data.
func PlanDownload(ctx context.Context, c *client.Client, fullName, dir string, parallel bool, log *zap.Logger) (*DownloadJob, error) {
	namespace, name, err := model.ParseProjectName(fullName)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return nil, errors.Errorf("directory %q already exists and is not empty", dir)
	}

	info, err := c.ProjectInfo(ctx, namespace, name, "")
	if err != nil {
		return nil, err
	}

	opts := project.Options{}.Normalize()
	parallelism := opts.Parallelism
	if !parallel {
		parallelism = 1
	}

	j := &DownloadJob{
		client:      c,
		info:        info,
		dir:         dir,
		parallelism: parallelism,
		chunkSize:   opts.DownloadChunkSize,
		log:         log,
	}
	for _, f := range info.Files {
		j.total += f.Size
	}

	log.Info("download planned",
		zap.String("project", info.FullName()),
		zap.String("version", info.Version),
		zap.Int("files", len(info.Files)),
		zap.Int64("bytes", j.total))
	return j, nil
}

// Run downloads all project files and writes the metadata snapshot.
// On error or cancellation the partially created directory is left in
// place for inspection; it carries no metadata, so it is not mistaken
// for a valid project by later commands.
func (j *DownloadJob) Run(ctx context.Context) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return errors.Wrap(err, "create project directory")
	}

	if err := downloadFiles(ctx, j.client, &j.progress, j.info, j.info.Files, j.dir, j.chunkSize, j.parallelism); err != nil {
		return err
	}

	p, err := project.Open(j.dir, j.log)
	if err != nil {
		return err
	}
	md := model.Metadata{
		Name:    j.info.FullName(),
		Version: j.info.Version,
		Files:   j.info.Files,
	}
	if err := p.SaveMetadata(md); err != nil {
		return err
	}

	j.log.Info("download complete", zap.String("project", j.info.FullName()))
	return nil
}

// downloadFiles fetches the given files at the project's version into
// destDir, preserving project-relative paths. Files larger than
// chunkSize are fetched as parallel ranged requests into a preallocated
// file. Shared by DownloadJob and PullJob.
func downloadFiles(ctx context.Context, c *client.Client, prog *progress, info model.ProjectInfo, files []model.FileInfo, destDir string, chunkSize int64, parallelism int) error {
	chunks := planChunks(files, chunkSize)

	// Preallocate targets up front; WriteAt from multiple workers into
	// the same file is then safe because their ranges are disjoint.
	for _, f := range files {
		abs := filepath.Join(destDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return errors.Wrapf(err, "create directories for %q", f.Path)
		}
		fh, err := os.Create(abs)
		if err != nil {
			return errors.Wrapf(err, "create %q", f.Path)
		}
		if err := fh.Truncate(f.Size); err != nil {
			fh.Close()
			return errors.Wrapf(err, "preallocate %q", f.Path)
		}
		if err := fh.Close(); err != nil {
			return errors.Wrapf(err, "close %q", f.Path)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, ch := range chunks {
		ch := ch
		if ch.length == 0 {
			continue // empty file, already materialized by preallocation
		}
		g.Go(func() error {
			abs := filepath.Join(destDir, filepath.FromSlash(ch.file.Path))
			fh, err := os.OpenFile(abs, os.O_WRONLY, 0)
			if err != nil {
				return errors.Wrapf(err, "open %q", ch.file.Path)
			}
			defer fh.Close()

			w := &countingWriter{w: &sectionWriter{f: fh, off: ch.offset}, p: prog}

			// Whole-file chunks skip the Range header so servers without
			// range support can still serve small files.
			length := ch.length
			if ch.offset == 0 && ch.length == ch.file.Size {
				length = 0
			}
			n, err := c.DownloadFile(gctx, info.Namespace, info.Name, info.Version, ch.file.Path, w, ch.offset, length)
			if err != nil {
				return err
			}
			if n != ch.length {
				return errors.Errorf("short download of %q: got %d bytes, want %d", ch.file.Path, n, ch.length)
			}
			return nil
		})
	}

	return g.Wait()
}
