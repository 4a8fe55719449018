package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
)

// Default transfer tuning. The chunk sizes match the original client:
// uploads are split into 10 MiB chunks, downloads into ranged requests
// of at most 100 MiB.
const (
	DefaultUploadChunkSize   = 10 * 1024 * 1024
	DefaultDownloadChunkSize = 100 * 1024 * 1024
	DefaultParallelism       = 4
)

// defaultIgnoreExt lists filename suffixes that are never synchronized:
// SQLite write-ahead artifacts, editor backups and Python bytecode.
var defaultIgnoreExt = []string{"-shm", "-wal", "~", "pyc", "swap"}

// defaultIgnoreFiles lists exact file names that are never synchronized.
var defaultIgnoreFiles = []string{".DS_Store", ".directory"}

// OptionsFileName is the optional per-project options file inside the
// .mergin meta directory. The file is hand-edited, so it is parsed as
// JSONC and may contain comments.
const OptionsFileName = "client.json"

// Options holds per-project sync tuning. Zero values mean "use default";
// Normalize resolves them.
type Options struct {
	// IgnoreExt extends the built-in list of ignored filename suffixes.
	IgnoreExt []string `json:"ignoreExt,omitempty"`

	// IgnoreFiles extends the built-in list of ignored file names.
	IgnoreFiles []string `json:"ignoreFiles,omitempty"`

	// UploadChunkSize is the size in bytes of a single upload chunk.
	UploadChunkSize int64 `json:"uploadChunkSize,omitempty"`

	// DownloadChunkSize is the maximum size in bytes of a single ranged
	// download request.
	DownloadChunkSize int64 `json:"downloadChunkSize,omitempty"`

	// Parallelism bounds the number of concurrent transfer workers.
	Parallelism int `json:"parallelism,omitempty"`
}

// Normalize fills unset fields with defaults and merges user ignore
// lists with the built-in ones.
func (o Options) Normalize() Options {
	if o.UploadChunkSize <= 0 {
		o.UploadChunkSize = DefaultUploadChunkSize
	}
	if o.DownloadChunkSize <= 0 {
		o.DownloadChunkSize = DefaultDownloadChunkSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	o.IgnoreExt = append(append([]string{}, defaultIgnoreExt...), o.IgnoreExt...)
	o.IgnoreFiles = append(append([]string{}, defaultIgnoreFiles...), o.IgnoreFiles...)
	return o
}

// LoadOptions reads the optional client.json options file from the given
// meta directory. A missing file yields normalized defaults; a present
// but malformed file is an error.
//
// The file is JSONC: comments are stripped with tidwall/jsonc before
// parsing with encoding/json.
func LoadOptions(metaDir string) (Options, error) {
	var opts Options
	data, err := os.ReadFile(filepath.Join(metaDir, OptionsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return opts.Normalize(), nil
		}
		return opts, errors.Wrap(err, "read project options")
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &opts); err != nil {
		return opts, errors.Wrapf(err, "parse %s", OptionsFileName)
	}
	return opts.Normalize(), nil
}
