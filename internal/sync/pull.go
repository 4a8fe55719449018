package sync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/client"
	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
)

// PullJob brings an existing local project up to date with the server.
type PullJob struct {
	progress

	client  *client.Client
	proj    *project.Project
	info    model.ProjectInfo
	changes model.Changes

	// Conflicts lists the conflict-copy backups created while applying
	// changes. Populated by Run.
	Conflicts []string

	parallelism int
	log         *zap.Logger
}

// PlanPull compares the local project against the server and prepares
// the pull. A job with no changes (Changes().Empty()) needs no Run call.
func PlanPull(ctx context.Context, c *client.Client, p *project.Project, parallel bool, log *zap.Logger) (*PullJob, error) {
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

	info, err := c.ProjectInfo(ctx, namespace, name, md.Version)
	if err != nil {
		return nil, err
	}
	changes, err := p.PullChanges(info.Files)
	if err != nil {
		return nil, err
	}

	parallelism := p.Options().Parallelism
	if !parallel {
		parallelism = 1
	}

	j := &PullJob{
		client:      c,
		proj:        p,
		info:        info,
		changes:     changes,
		parallelism: parallelism,
		log:         log,
	}
	j.total = changes.TotalSize()

	log.Info("pull planned",
		zap.String("project", md.Name),
		zap.String("local_version", md.Version),
		zap.String("server_version", info.Version),
		zap.Int("changes", changes.Count()))
	return j, nil
}

// Changes returns the server changes the pull will apply.
func (j *PullJob) Changes() model.Changes {
	return j.changes
}

// Run downloads changed files into a temporary fetch directory inside
// .mergin, applies them to the project (backing up conflicting local
// edits) and advances the metadata snapshot to the server version.
func (j *PullJob) Run(ctx context.Context) error {
	if j.changes.Empty() {
		return nil
	}

	// The fetch directory lives under .mergin so a crash leaves no
	// half-applied files among the user's data.
	tempDir, err := os.MkdirTemp(filepath.Join(j.proj.Dir(), project.MetaDirName), "fetch_"+j.info.Version+"_*")
	if err != nil {
		return errors.Wrap(err, "create fetch directory")
	}
	defer os.RemoveAll(tempDir)

	toFetch := make([]model.FileInfo, 0, len(j.changes.Added)+len(j.changes.Updated))
	toFetch = append(toFetch, j.changes.Added...)
	toFetch = append(toFetch, j.changes.Updated...)

	chunkSize := j.proj.Options().DownloadChunkSize
	if err := downloadFiles(ctx, j.client, &j.progress, j.info, toFetch, tempDir, chunkSize, j.parallelism); err != nil {
		return err
	}

	conflicts, err := j.proj.ApplyPullChanges(j.changes, tempDir)
	j.Conflicts = conflicts
	if err != nil {
		return err
	}

	md := model.Metadata{
		Name:    j.info.FullName(),
		Version: j.info.Version,
		Files:   j.info.Files,
	}
	if err := j.proj.SaveMetadata(md); err != nil {
		return err
	}

	j.log.Info("pull complete",
		zap.String("project", md.Name),
		zap.String("version", md.Version),
		zap.Int("conflicts", len(conflicts)))
	return nil
}
