/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package packer is the pack scheduler: a fixed-size worker pool drains
// a shared FIFO of FileJobs, calls packjob for the heavy lifting, and
// serializes commit order through a single mutex and condition variable.
// Grounded in shape on soong_zip.go's "-j" worker count and a runner's
// startStop lifecycle idiom, with an ordered-commit mutex+condvar contract
// in place of soong_zip.go's sync.WaitGroup + channels.
package packer

import (
	"io"
	"os"

	"github.com/sasq64/fastzip/packjob"
	"github.com/sasq64/fastzip/zipfmt"
)

// closer is satisfied by both *os.File and the no-op wrapper used for
// section reads against a shared archive file descriptor.
type closer interface {
	io.Reader
	Close() error
}

type noopCloser struct{ io.Reader }

func (noopCloser) Close() error { return nil }

// FileJob is a scheduling unit, immutable after enqueue. Exactly one of DiskPath or SourceArchive is set.
type FileJob struct {
	ArchiveName string
	DiskPath    string

	SourceArchive *zipfmt.Reader
	SourceEntry   *zipfmt.IndexEntry

	Format     packjob.OutputFormat
	WantDigest bool
	EarlyOut   int

	Modified int64
	Mode     uint16
	UID      *uint32
	GID      *uint32

	IsSymlink bool
	IsDir     bool
}

// fromDisk reports whether this job reads from the filesystem rather than
// re-packing from an already-open source archive.
func (j *FileJob) fromDisk() bool { return j.SourceArchive == nil }

// skipReason returns a non-empty reason when the job must be skipped
// entirely rather than packed.
func (j *FileJob) skipReason(signing bool) string {
	switch {
	case j.IsSymlink:
		return "symbolic link, skipped"
	case j.IsDir:
		return "directory entry not recorded"
	case signing && hasMetaInfPrefix(j.ArchiveName):
		return "META-INF namespace reserved for the signer"
	default:
		return ""
	}
}

func hasMetaInfPrefix(name string) bool {
	const prefix = "META-INF"
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

// open returns a readable positioned at the payload start plus its declared
// byte count and current compression state.
// The returned reader is safe to use concurrently with other jobs' opens:
// disk jobs get their own *os.File, archive jobs get an independent
// io.SectionReader over the shared, positioned-read-only archive fd.
func (j *FileJob) open() (r closer, size int64, input packjob.InputFormat, crc uint32, uncSize uint64, err error) {
	if j.fromDisk() {
		f, ferr := os.Open(j.DiskPath)
		if ferr != nil {
			return nil, 0, packjob.Uncompressed, 0, 0, ferr
		}
		info, serr := f.Stat()
		if serr != nil {
			f.Close()
			return nil, 0, packjob.Uncompressed, 0, 0, serr
		}
		return f, info.Size(), packjob.Uncompressed, 0, 0, nil
	}

	lh, lerr := j.SourceArchive.ReadLocalHeader(j.SourceEntry)
	if lerr != nil {
		return nil, 0, packjob.Compressed, 0, 0, lerr
	}
	sr := io.NewSectionReader(j.SourceArchive.File(), lh.PayloadOffset, int64(lh.CompressedSize))

	if j.SourceEntry.Method == zipfmt.MethodStore {
		// A stored source entry's payload is already the original bytes, not
		// a deflate stream: feed it through the from-scratch path so the
		// configured Output format (store-copy or fresh deflate) is honored,
		// rather than the compressed-to-compressed re-pack path which would
		// otherwise mislabel raw bytes as a deflate stream.
		return noopCloser{sr}, int64(lh.CompressedSize), packjob.Uncompressed, j.SourceEntry.CRC32, lh.UncompressedSize, nil
	}
	return noopCloser{sr}, int64(lh.CompressedSize), packjob.Compressed, j.SourceEntry.CRC32, lh.UncompressedSize, nil
}
