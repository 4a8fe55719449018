package sync

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// progress tracks transferred bytes across concurrent workers.
// Jobs embed it and expose Total/Transferred for progress polling.
type progress struct {
	total       int64
	transferred atomic.Int64
}

// Total returns the number of bytes the job will transfer in total.
// Known as soon as the job is planned, before Run is called.
func (p *progress) Total() int64 {
	return p.total
}

// Transferred returns the number of bytes moved so far. Safe to call
// concurrently with Run.
func (p *progress) Transferred() int64 {
	return p.transferred.Load()
}

// countingWriter forwards writes to w and adds their size to the
// job's transferred counter.
type countingWriter struct {
	w io.Writer
	p *progress
}

func (cw *countingWriter) Write(b []byte) (int, error) {
	n, err := cw.w.Write(b)
	cw.p.transferred.Add(int64(n))
	return n, err
}

// countingReader forwards reads from r and adds their size to the
// job's transferred counter. Used on the upload side.
type countingReader struct {
	r io.Reader
	p *progress
}

func (cr *countingReader) Read(b []byte) (int, error) {
	n, err := cr.r.Read(b)
	cr.p.transferred.Add(int64(n))
	return n, err
}

// sectionWriter writes into a file at a fixed offset, advancing as data
// arrives. It lets range-download workers fill disjoint regions of one
// preallocated file without coordinating.
type sectionWriter struct {
	f   *os.File
	off int64
}

func (sw *sectionWriter) Write(b []byte) (int, error) {
	n, err := sw.f.WriteAt(b, sw.off)
	sw.off += int64(n)
	return n, err
}

// fileChunk is one ranged piece of a file transfer.
type fileChunk struct {
	file   model.FileInfo
	offset int64
	length int64
}

// planChunks splits the files into ranged chunks of at most chunkSize
// bytes. Files no larger than chunkSize become a single chunk; empty
// files still get one zero-length chunk so they are materialized.
func planChunks(files []model.FileInfo, chunkSize int64) []fileChunk {
	var chunks []fileChunk
	for _, f := range files {
		if f.Size <= chunkSize {
			chunks = append(chunks, fileChunk{file: f, offset: 0, length: f.Size})
			continue
		}
		for off := int64(0); off < f.Size; off += chunkSize {
			length := chunkSize
			if off+length > f.Size {
				length = f.Size - off
			}
			chunks = append(chunks, fileChunk{file: f, offset: off, length: length})
		}
	}
	return chunks
}
