package sync

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lutraconsulting/mergin-go/internal/client"
	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
)

// PushJob uploads local changes to the server through a push transaction.
type PushJob struct {
	progress

	client  *client.Client
	proj    *project.Project
	md      model.Metadata
	changes model.Changes

	namespace string
	name      string

	parallelism int
	log         *zap.Logger
}

// PlanPush computes local changes and prepares the upload. Before
// planning, the server's current version is compared with the local
// snapshot: pushing from a stale copy is rejected so the user pulls
// first instead of producing a version conflict mid-transaction.
// A job with no changes (Changes().Empty()) needs no Run call.
func PlanPush(ctx context.Context, c *client.Client, p *project.Project, parallel bool, log *zap.Logger) (*PushJob, error) {
	if log == nil {
		log = zap.NewNop()
	}

	md, err := p.Metadata()
	if err != nil {
		return nil, err
	}
	namespace, name, err := model.ParseProjectName(md.Name)
	if err != nil {
		return nil, err
	}

	info, err := c.ProjectInfo(ctx, namespace, name, "")
	if err != nil {
		return nil, err
	}
	if info.Version != md.Version {
		return nil, errors.Errorf(
			"project is at server version %s but local copy is at %s: pull first",
			info.Version, md.Version)
	}

	changes, err := p.PushChanges()
	if err != nil {
		return nil, err
	}

	parallelism := p.Options().Parallelism
	if !parallel {
		parallelism = 1
	}

	j := &PushJob{
		client:      c,
		proj:        p,
		md:          md,
		changes:     changes,
		namespace:   namespace,
		name:        name,
		parallelism: parallelism,
		log:         log,
	}
	j.total = changes.TotalSize()

	log.Info("push planned",
		zap.String("project", md.Name),
		zap.String("version", md.Version),
		zap.Int("changes", changes.Count()),
		zap.Int64("bytes", j.total))
	return j, nil
}

// Changes returns the local changes the push will upload.
func (j *PushJob) Changes() model.Changes {
	return j.changes
}

// Run opens the transaction, uploads all chunks concurrently, finalizes
// the transaction and advances the local metadata to the version the
// server created. Any failure or cancellation rolls the transaction
// back so no half-pushed version exists on the server.
func (j *PushJob) Run(ctx context.Context) error {
	if j.changes.Empty() {
		return nil
	}

	tx, err := j.client.PushStart(ctx, j.namespace, j.name, j.md.Version, j.changes)
	if err != nil {
		return err
	}

	if err := j.uploadChunks(ctx, tx); err != nil {
		// Roll back with a fresh context: the job context may already be
		// cancelled, and the cancel request must still reach the server.
		cancelCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if cerr := j.client.PushCancel(cancelCtx, tx); cerr != nil {
			j.log.Warn("push transaction rollback failed",
				zap.String("transaction", tx), zap.Error(cerr))
		}
		return err
	}

	info, err := j.client.PushFinish(ctx, tx)
	if err != nil {
		return err
	}

	md := model.Metadata{
		Name:    j.md.Name,
		Version: info.Version,
		Files:   info.Files,
	}
	if err := j.proj.SaveMetadata(md); err != nil {
		return err
	}

	j.log.Info("push complete",
		zap.String("project", md.Name),
		zap.String("version", md.Version))
	return nil
}

// uploadChunks sends every declared chunk of every added and updated
// file on a bounded worker pool. Chunk boundaries follow the chunk IDs
// assigned by PushChanges: chunk i of a file covers bytes
// [i*chunkSize, (i+1)*chunkSize).
func (j *PushJob) uploadChunks(ctx context.Context, tx string) error {
	chunkSize := j.proj.Options().UploadChunkSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism)

	upload := make([]model.FileInfo, 0, len(j.changes.Added)+len(j.changes.Updated))
	upload = append(upload, j.changes.Added...)
	upload = append(upload, j.changes.Updated...)

	for _, f := range upload {
		f := f
		for i, chunkID := range f.Chunks {
			i, chunkID := i, chunkID
			g.Go(func() error {
				abs, err := j.proj.AbsPath(f.Path)
				if err != nil {
					return err
				}
				fh, err := os.Open(abs)
				if err != nil {
					return errors.Wrapf(err, "open %q for upload", f.Path)
				}
				defer fh.Close()

				offset := int64(i) * chunkSize
				length := chunkSize
				if offset+length > f.Size {
					length = f.Size - offset
				}

				section := io.NewSectionReader(fh, offset, length)
				body := &countingReader{r: section, p: &j.progress}
				if err := j.client.PushChunk(gctx, tx, chunkID, body, length); err != nil {
					return errors.Wrapf(err, "upload chunk %d of %q", i, f.Path)
				}
				return nil
			})
		}
	}

	return g.Wait()
}
