package sync

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutraconsulting/mergin-go/internal/client"
	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
)

// fakeServer simulates the Mergin server endpoints the sync jobs use:
// project info, raw file download with range support, and the push
// transaction sequence. State is a flat path to content map.
type fakeServer struct {
	t         *testing.T
	namespace string
	name      string
	srv       *httptest.Server

	mu      sync.Mutex
	version string
	files   map[string]string

	chunks       map[string]string
	pushChanges  model.Changes
	failChunks   bool
	cancelCalled bool
	finishCalled bool
}

const testTransaction = "tx-test"

func newFakeServer(t *testing.T, namespace, name, version string, files map[string]string) *fakeServer {
	fs := &fakeServer{
		t:         t,
		namespace: namespace,
		name:      name,
		version:   version,
		files:     files,
		chunks:    map[string]string{},
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

// setFiles replaces the server-side project state, simulating changes
// pushed by another client.
func (fs *fakeServer) setFiles(version string, files map[string]string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.version = version
	fs.files = files
}

// projectInfo builds the info response from the current state.
// Callers must hold fs.mu.
func (fs *fakeServer) projectInfo() model.ProjectInfo {
	paths := make([]string, 0, len(fs.files))
	for p := range fs.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]model.FileInfo, 0, len(paths))
	for _, p := range paths {
		sum := sha1.Sum([]byte(fs.files[p]))
		files = append(files, model.FileInfo{
			Path:     p,
			Checksum: hex.EncodeToString(sum[:]),
			Size:     int64(len(fs.files[p])),
		})
	}
	return model.ProjectInfo{
		Namespace: fs.namespace,
		Name:      fs.name,
		Version:   fs.version,
		Files:     files,
	}
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	full := fs.namespace + "/" + fs.name
	switch {
	case r.URL.Path == "/v1/project/"+full:
		_ = json.NewEncoder(w).Encode(fs.projectInfo())

	case r.URL.Path == "/v1/project/raw/"+full:
		content, ok := fs.files[r.URL.Query().Get("file")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		// ServeContent answers Range requests with 206 the way the real
		// server does.
		http.ServeContent(w, r, "", time.Time{}, strings.NewReader(content))

	case r.URL.Path == "/v1/project/push/"+full:
		var payload struct {
			Version string        `json:"version"`
			Changes model.Changes `json:"changes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload.Version != fs.version {
			w.WriteHeader(http.StatusConflict)
			return
		}
		fs.pushChanges = payload.Changes
		_ = json.NewEncoder(w).Encode(map[string]string{"transaction": testTransaction})

	case strings.HasPrefix(r.URL.Path, "/v1/project/push/chunk/"+testTransaction+"/"):
		if fs.failChunks {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		chunkID := strings.TrimPrefix(r.URL.Path, "/v1/project/push/chunk/"+testTransaction+"/")
		data, _ := io.ReadAll(r.Body)
		fs.chunks[chunkID] = string(data)

	case r.URL.Path == "/v1/project/push/finish/"+testTransaction:
		fs.finishCalled = true
		fs.applyPush()
		_ = json.NewEncoder(w).Encode(fs.projectInfo())

	case r.URL.Path == "/v1/project/push/cancel/"+testTransaction:
		fs.cancelCalled = true

	default:
		fs.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

// applyPush assembles uploaded chunks into the server state and bumps
// the version, mirroring what finishing a transaction does.
func (fs *fakeServer) applyPush() {
	for _, f := range append(fs.pushChanges.Added, fs.pushChanges.Updated...) {
		var b strings.Builder
		for _, id := range f.Chunks {
			b.WriteString(fs.chunks[id])
		}
		fs.files[f.Path] = b.String()
	}
	for _, f := range fs.pushChanges.Renamed {
		fs.files[f.NewPath] = fs.files[f.Path]
		delete(fs.files, f.Path)
	}
	for _, f := range fs.pushChanges.Removed {
		delete(fs.files, f.Path)
	}

	n, err := model.ParseVersion(fs.version)
	if err != nil {
		fs.t.Errorf("bad server version %q: %v", fs.version, err)
		return
	}
	fs.version = model.FormatVersion(n + 1)
}

func (fs *fakeServer) newClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(fs.srv.URL,
		client.WithRetry(2, time.Millisecond, 5*time.Millisecond))
	require.NoError(t, err)
	return c
}

// writeLocalFile writes a file under dir at a project-relative POSIX path.
func writeLocalFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

// newLocalProject creates an opened project whose metadata snapshot
// matches the given files at the given version.
func newLocalProject(t *testing.T, name, version string, files map[string]string) *project.Project {
	t.Helper()
	return newLocalProjectWithOptions(t, name, version, files, "")
}

// newLocalProjectWithOptions additionally seeds a .mergin/client.json
// before the project is opened, so tuning like the upload chunk size
// takes effect.
func newLocalProjectWithOptions(t *testing.T, name, version string, files map[string]string, optionsJSON string) *project.Project {
	t.Helper()

	dir := t.TempDir()
	if optionsJSON != "" {
		writeLocalFile(t, dir, project.MetaDirName+"/"+project.OptionsFileName, optionsJSON)
	}
	for rel, content := range files {
		writeLocalFile(t, dir, rel, content)
	}

	p, err := project.Open(dir, nil)
	require.NoError(t, err)

	inspected, err := p.InspectFiles()
	require.NoError(t, err)
	require.NoError(t, p.SaveMetadata(model.Metadata{Name: name, Version: version, Files: inspected}))
	return p
}

func readLocalFile(t *testing.T, p *project.Project, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.Dir(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// TestPlanChunks verifies the split of files into ranged pieces.
func TestPlanChunks(t *testing.T) {
	files := []model.FileInfo{
		{Path: "small.txt", Size: 3},
		{Path: "big.bin", Size: 10},
		{Path: "empty.txt", Size: 0},
	}

	chunks := planChunks(files, 4)

	require.Len(t, chunks, 5)
	assert.Equal(t, fileChunk{file: files[0], offset: 0, length: 3}, chunks[0])
	assert.Equal(t, fileChunk{file: files[1], offset: 0, length: 4}, chunks[1])
	assert.Equal(t, fileChunk{file: files[1], offset: 4, length: 4}, chunks[2])
	assert.Equal(t, fileChunk{file: files[1], offset: 8, length: 2}, chunks[3])
	assert.Equal(t, fileChunk{file: files[2], offset: 0, length: 0}, chunks[4])
}

// TestDownloadJob verifies a full project download: file content on
// disk, metadata snapshot written, progress counters consistent.
func TestDownloadJob(t *testing.T) {
	fs := newFakeServer(t, "alice", "survey", "v3", map[string]string{
		"test.qgs":        "project file",
		"data/points.txt": "point data",
		"empty.txt":       "",
	})

	dir := filepath.Join(t.TempDir(), "survey")
	job, err := PlanDownload(context.Background(), fs.newClient(t), "alice/survey", dir, true, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len("project file")+len("point data")), job.Total())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, job.Total(), job.Transferred())

	p, err := project.Open(dir, nil)
	require.NoError(t, err)
	md, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "alice/survey", md.Name)
	assert.Equal(t, "v3", md.Version)
	require.Len(t, md.Files, 3)

	assert.Equal(t, "project file", readLocalFile(t, p, "test.qgs"))
	assert.Equal(t, "point data", readLocalFile(t, p, "data/points.txt"))
	info, err := os.Stat(filepath.Join(dir, "empty.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// A freshly downloaded project has nothing to push.
	changes, err := p.PushChanges()
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

// TestPlanDownloadRejectsNonEmptyDir verifies that an existing directory
// with content is refused before anything touches the server state.
func TestPlanDownloadRejectsNonEmptyDir(t *testing.T) {
	fs := newFakeServer(t, "alice", "survey", "v1", map[string]string{"a.txt": "x"})

	dir := t.TempDir()
	writeLocalFile(t, dir, "precious.txt", "do not clobber")

	_, err := PlanDownload(context.Background(), fs.newClient(t), "alice/survey", dir, true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")
}

// TestDownloadFilesRanged verifies that files larger than the chunk
// size are fetched as ranged requests and reassembled intact.
func TestDownloadFilesRanged(t *testing.T) {
	payload := "0123456789abcdef"
	fs := newFakeServer(t, "alice", "survey", "v1", map[string]string{"big.bin": payload})

	fs.mu.Lock()
	info := fs.projectInfo()
	fs.mu.Unlock()

	dir := t.TempDir()
	var prog progress
	err := downloadFiles(context.Background(), fs.newClient(t), &prog, info, info.Files, dir, 4, 2)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, int64(len(payload)), prog.Transferred())
}

// TestPlanPullUpToDate verifies that a project matching the server
// plans an empty pull.
func TestPlanPullUpToDate(t *testing.T) {
	files := map[string]string{"a.txt": "same"}
	fs := newFakeServer(t, "alice", "survey", "v1", files)
	p := newLocalProject(t, "alice/survey", "v1", files)

	job, err := PlanPull(context.Background(), fs.newClient(t), p, true, nil)
	require.NoError(t, err)
	assert.True(t, job.Changes().Empty())
}

// TestPullJob verifies that server-side updates and additions land in
// the local project and the snapshot advances to the server version.
func TestPullJob(t *testing.T) {
	v1 := map[string]string{"keep.txt": "same", "notes.txt": "v1 notes"}
	fs := newFakeServer(t, "alice", "survey", "v1", v1)
	p := newLocalProject(t, "alice/survey", "v1", v1)

	fs.setFiles("v2", map[string]string{
		"keep.txt":  "same",
		"notes.txt": "v2 notes",
		"new.txt":   "fresh",
	})

	job, err := PlanPull(context.Background(), fs.newClient(t), p, true, nil)
	require.NoError(t, err)
	assert.Len(t, job.Changes().Updated, 1)
	assert.Len(t, job.Changes().Added, 1)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, job.Conflicts)
	assert.Equal(t, job.Total(), job.Transferred())

	assert.Equal(t, "v2 notes", readLocalFile(t, p, "notes.txt"))
	assert.Equal(t, "fresh", readLocalFile(t, p, "new.txt"))

	md, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "v2", md.Version)

	// The fetch directory must not linger inside .mergin.
	entries, err := os.ReadDir(filepath.Join(p.Dir(), project.MetaDirName))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "fetch_"), "leftover fetch dir %s", e.Name())
	}
}

// TestPullJobConflict verifies that a file edited both locally and on
// the server keeps the local edits in a conflict copy.
func TestPullJobConflict(t *testing.T) {
	v1 := map[string]string{"notes.txt": "base"}
	fs := newFakeServer(t, "alice", "survey", "v1", v1)
	p := newLocalProject(t, "alice/survey", "v1", v1)

	writeLocalFile(t, p.Dir(), "notes.txt", "local edit")
	fs.setFiles("v2", map[string]string{"notes.txt": "server edit"})

	job, err := PlanPull(context.Background(), fs.newClient(t), p, true, nil)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, job.Conflicts, 1)
	assert.Equal(t, "notes.txt_conflict_copy", job.Conflicts[0])
	assert.Equal(t, "server edit", readLocalFile(t, p, "notes.txt"))
	assert.Equal(t, "local edit", readLocalFile(t, p, "notes.txt_conflict_copy"))
}

// TestPushJob verifies a full push: chunked upload, server assembly and
// the local snapshot advancing to the version the server created.
func TestPushJob(t *testing.T) {
	v1 := map[string]string{"a.txt": "alpha"}
	fs := newFakeServer(t, "alice", "survey", "v1", v1)

	// A 4-byte chunk size makes the 16-byte addition span 4 chunks.
	p := newLocalProjectWithOptions(t, "alice/survey", "v1", v1, `{"uploadChunkSize": 4}`)

	writeLocalFile(t, p.Dir(), "a.txt", "alpha v2")
	writeLocalFile(t, p.Dir(), "b.bin", "0123456789abcdef")

	job, err := PlanPush(context.Background(), fs.newClient(t), p, true, nil)
	require.NoError(t, err)
	assert.Len(t, job.Changes().Added, 1)
	assert.Len(t, job.Changes().Updated, 1)
	assert.Equal(t, int64(len("alpha v2")+len("0123456789abcdef")), job.Total())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, job.Total(), job.Transferred())

	fs.mu.Lock()
	assert.True(t, fs.finishCalled)
	assert.Equal(t, "0123456789abcdef", fs.files["b.bin"])
	assert.Equal(t, "alpha v2", fs.files["a.txt"])
	assert.Equal(t, "v2", fs.version)
	fs.mu.Unlock()

	md, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "v2", md.Version)

	// After a successful push the project is clean again.
	changes, err := p.PushChanges()
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

// TestPushJobRemoval verifies that deleting a local file propagates as
// a removal on the server.
func TestPushJobRemoval(t *testing.T) {
	v1 := map[string]string{"a.txt": "alpha", "b.txt": "beta"}
	fs := newFakeServer(t, "alice", "survey", "v1", v1)
	p := newLocalProject(t, "alice/survey", "v1", v1)

	require.NoError(t, os.Remove(filepath.Join(p.Dir(), "b.txt")))

	job, err := PlanPush(context.Background(), fs.newClient(t), p, true, nil)
	require.NoError(t, err)
	require.Len(t, job.Changes().Removed, 1)

	require.NoError(t, job.Run(context.Background()))

	fs.mu.Lock()
	_, exists := fs.files["b.txt"]
	fs.mu.Unlock()
	assert.False(t, exists, "removed file should be gone from the server")
}

// TestPlanPushStaleCopy verifies that pushing from an outdated local
// copy is rejected before a transaction is opened.
func TestPlanPushStaleCopy(t *testing.T) {
	fs := newFakeServer(t, "alice", "survey", "v5", map[string]string{"a.txt": "newer"})
	p := newLocalProject(t, "alice/survey", "v3", map[string]string{"a.txt": "older"})

	_, err := PlanPush(context.Background(), fs.newClient(t), p, true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull first")
}

// TestPushJobRollback verifies that a failed chunk upload cancels the
// transaction and leaves local metadata untouched.
func TestPushJobRollback(t *testing.T) {
	v1 := map[string]string{"a.txt": "alpha"}
	fs := newFakeServer(t, "alice", "survey", "v1", v1)
	p := newLocalProject(t, "alice/survey", "v1", v1)

	writeLocalFile(t, p.Dir(), "a.txt", "changed")
	fs.mu.Lock()
	fs.failChunks = true
	fs.mu.Unlock()

	job, err := PlanPush(context.Background(), fs.newClient(t), p, true, nil)
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)

	fs.mu.Lock()
	assert.True(t, fs.cancelCalled, "failed push must cancel the transaction")
	assert.False(t, fs.finishCalled)
	fs.mu.Unlock()

	md, err := p.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "v1", md.Version, "failed push must not advance the snapshot")
}
