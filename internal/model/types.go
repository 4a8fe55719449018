package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FileInfo describes a single project file as known to the server and to
// the local metadata snapshot. Paths are always project-relative POSIX
// paths ("/" separated), regardless of the host platform.
type FileInfo struct {
	// Path is the project-relative POSIX path of the file.
	Path string `json:"path"`

	// Checksum is the SHA-1 hex digest of the file content. File identity
	// across versions is determined by checksum + size, not by mtime.
	Checksum string `json:"checksum"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// Mtime is the file's last modification time. It is informational;
	// change detection never relies on it.
	Mtime time.Time `json:"mtime"`

	// NewPath is set only on rename entries and holds the path the file
	// was moved to.
	NewPath string `json:"new_path,omitempty"`

	// OriginChecksum is set only on update entries and holds the checksum
	// the file had in the last synced version. The server uses it to match
	// the base file for versioned formats.
	OriginChecksum string `json:"origin_checksum,omitempty"`

	// Chunks lists the upload chunk IDs assigned to this file for a push
	// transaction. Populated only for added/updated files about to be
	// uploaded; each chunk is a UUID string.
	Chunks []string `json:"chunks,omitempty"`

	// Diffs lists server-side diff file paths to download instead of the
	// full file. Populated only when the server provides usable history
	// for a versioned file; empty when diff support is disabled.
	Diffs []string `json:"diffs,omitempty"`

	// History maps version tags (e.g. "v3") to the file state at that
	// version. Provided by the server on project info requests with a
	// "since" version; unused otherwise.
	History map[string]FileHistory `json:"history,omitempty"`
}

// FileHistory describes one historical version of a file as reported by
// the server. Only the fields needed for pull planning are kept.
type FileHistory struct {
	// Change is the change type recorded for this version:
	// "added", "updated", "removed" or "renamed".
	Change string `json:"change"`

	// Checksum and Size describe the file content at this version.
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`

	// Diff, when present, points at a server-side changeset that converts
	// the previous version into this one.
	Diff *DiffInfo `json:"diff,omitempty"`
}

// DiffInfo describes a server-side changeset file for a versioned file.
type DiffInfo struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// Changes groups file differences between two project states by change
// type. It is the result shape of every comparison in the project engine
// and the payload shape of a push transaction.
type Changes struct {
	// Added lists files present in the current state but not the origin.
	Added []FileInfo `json:"added"`

	// Removed lists files present in the origin but not the current state.
	Removed []FileInfo `json:"removed"`

	// Updated lists files present in both states with differing checksums.
	// Each entry carries OriginChecksum.
	Updated []FileInfo `json:"updated"`

	// Renamed lists files whose content (checksum + size) reappeared under
	// a different path. Each entry carries NewPath.
	Renamed []FileInfo `json:"renamed"`
}

// Count returns the total number of changed files across all change types.
func (c Changes) Count() int {
	return len(c.Added) + len(c.Removed) + len(c.Updated) + len(c.Renamed)
}

// Empty reports whether the change set contains no changes at all.
func (c Changes) Empty() bool {
	return c.Count() == 0
}

// TotalSize returns the number of bytes that need to be transferred to
// apply the change set: full sizes of added and updated files. Removed
// and renamed files transfer no content.
func (c Changes) TotalSize() int64 {
	var total int64
	for _, f := range c.Added {
		total += f.Size
	}
	for _, f := range c.Updated {
		total += f.Size
	}
	return total
}

// ProjectInfo describes a project as reported by the server.
type ProjectInfo struct {
	// Namespace is the owning user or organisation name.
	Namespace string `json:"namespace"`

	// Name is the project name, unique within its namespace.
	Name string `json:"name"`

	// Version is the current project version tag, e.g. "v42".
	// An empty project that was never pushed to reports "v0".
	Version string `json:"version"`

	// DiskUsage is the total size of the project on the server, in bytes.
	DiskUsage int64 `json:"disk_usage"`

	// Files is the full file listing at Version. Omitted in list responses.
	Files []FileInfo `json:"files,omitempty"`
}

// FullName returns the "namespace/name" form used on the command line
// and in server URLs.
func (p *ProjectInfo) FullName() string {
	return p.Namespace + "/" + p.Name
}

// Metadata is the content of the local .mergin/mergin.json file: the
// snapshot of the project state at the last successful sync. All change
// detection compares against this snapshot.
type Metadata struct {
	// Name is the full project name ("namespace/name").
	Name string `json:"name"`

	// Version is the server version the local copy was last synced to.
	Version string `json:"version"`

	// Files is the file listing at Version.
	Files []FileInfo `json:"files"`
}

// ParseVersion converts a version tag like "v12" to its numeric value.
// Returns an error for anything that is not "v" followed by a
// non-negative integer. "v0" is valid and denotes a project with no
// versions yet.
func ParseVersion(tag string) (int, error) {
	s := strings.TrimPrefix(tag, "v")
	if s == tag || s == "" {
		return 0, fmt.Errorf("invalid version tag %q", tag)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid version tag %q", tag)
	}
	return n, nil
}

// FormatVersion converts a numeric version to its tag form, e.g. 12 → "v12".
func FormatVersion(n int) string {
	return "v" + strconv.Itoa(n)
}

// ParseProjectName splits a full project name into namespace and name.
// Accepts only the "namespace/name" form.
func ParseProjectName(full string) (namespace, name string, err error) {
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid project name %q: expected namespace/name", full)
	}
	return parts[0], parts[1], nil
}
