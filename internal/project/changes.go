package project

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// CompareFileSets computes the difference between two file listings.
// origin is the reference state, current is the state being compared
// against it.
//
// Classification rules:
//   - added: path present only in current
//   - removed: path present only in origin
//   - updated: path present in both with differing checksum; the entry
//     is the current file annotated with OriginChecksum
//   - renamed: a removed file whose content (checksum + size) reappears
//     at another current path; each target path is consumed at most once
//
// Rename detection runs after add/remove classification and moves
// matched entries out of both lists, so a plain move shows up as a
// single rename rather than a remove + add pair.
func CompareFileSets(origin, current []model.FileInfo) model.Changes {
	originMap := make(map[string]model.FileInfo, len(origin))
	for _, f := range origin {
		originMap[f.Path] = f
	}
	currentMap := make(map[string]model.FileInfo, len(current))
	for _, f := range current {
		currentMap[f.Path] = f
	}

	var removed []model.FileInfo
	for _, f := range origin {
		if _, ok := currentMap[f.Path]; !ok {
			removed = append(removed, f)
		}
	}

	var added []model.FileInfo
	for _, f := range current {
		if _, ok := originMap[f.Path]; !ok {
			added = append(added, f)
		}
	}

	// Rename detection: match each removed file to a current file with
	// identical content that has not already been claimed as a target.
	var renamed []model.FileInfo
	claimed := make(map[string]bool)
	for _, rf := range removed {
		for _, cf := range current {
			if cf.Checksum == rf.Checksum && cf.Size == rf.Size && !claimed[cf.Path] {
				entry := rf
				entry.NewPath = cf.Path
				renamed = append(renamed, entry)
				claimed[cf.Path] = true
				break
			}
		}
	}

	if len(renamed) > 0 {
		added = filterFiles(added, func(f model.FileInfo) bool { return !claimed[f.Path] })
		removed = filterFiles(removed, func(f model.FileInfo) bool {
			for _, mf := range renamed {
				if f.Path == mf.Path {
					return false
				}
			}
			return true
		})
	}

	var updated []model.FileInfo
	for _, f := range current {
		of, ok := originMap[f.Path]
		if !ok || f.Checksum == of.Checksum {
			continue
		}
		entry := f
		entry.OriginChecksum = of.Checksum
		updated = append(updated, entry)
	}

	return model.Changes{
		Added:   added,
		Removed: removed,
		Updated: updated,
		Renamed: renamed,
	}
}

// filterFiles returns the entries of files for which keep returns true.
func filterFiles(files []model.FileInfo, keep func(model.FileInfo) bool) []model.FileInfo {
	out := files[:0:0]
	for _, f := range files {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// PullChanges computes the changes needed to bring the local copy up to
// date with the server: the difference between the metadata snapshot and
// the server's file listing.
func (p *Project) PullChanges(serverFiles []model.FileInfo) (model.Changes, error) {
	md, err := p.Metadata()
	if err != nil {
		return model.Changes{}, err
	}
	changes := CompareFileSets(md.Files, serverFiles)
	p.log.Debug("computed pull changes",
		zap.String("project", md.Name),
		zap.Int("count", changes.Count()))
	return changes, nil
}

// PushChanges computes the changes needed to bring the server up to date
// with the local copy: the difference between the metadata snapshot and
// the files on disk. Added and updated files get their upload chunk IDs
// assigned here, one UUID per UploadChunkSize bytes.
func (p *Project) PushChanges() (model.Changes, error) {
	md, err := p.Metadata()
	if err != nil {
		return model.Changes{}, err
	}
	local, err := p.InspectFiles()
	if err != nil {
		return model.Changes{}, err
	}

	changes := CompareFileSets(md.Files, local)
	for i := range changes.Added {
		changes.Added[i].Chunks = chunkIDs(changes.Added[i].Size, p.opts.UploadChunkSize)
	}
	for i := range changes.Updated {
		changes.Updated[i].Chunks = chunkIDs(changes.Updated[i].Size, p.opts.UploadChunkSize)
	}

	p.log.Debug("computed push changes",
		zap.String("project", md.Name),
		zap.Int("count", changes.Count()))
	return changes, nil
}

// chunkIDs generates one upload chunk UUID per chunkSize bytes. An empty
// file gets no chunks: the server creates it from metadata alone.
func chunkIDs(size, chunkSize int64) []string {
	n := int(math.Ceil(float64(size) / float64(chunkSize)))
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids
}
