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

package packjob

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/sasq64/fastzip/ferrors"
	"github.com/sasq64/fastzip/zipfmt"
)

// windowSize is the ZIP compression window, and the block granularity at
// which the early-out heuristic re-checks its ratio. Same value Soong's
// soong_zip.go calls windowSize.
const windowSize = 32 * 1024

// Request is one unit of work for the compression worker.
type Request struct {
	Source     io.Reader
	Size       int64
	Input      InputFormat
	Output     OutputFormat
	EarlyOut   int // percent, [0,100]
	WantDigest bool

	// Only meaningful when Input == Compressed: the existing local
	// header's trusted metadata.
	OriginalCRC32            uint32
	OriginalUncompressedSize uint64
	Name                     string
}

// Result is what the worker hands back to the scheduler.
type Result struct {
	Entry    *zipfmt.Entry
	Digest   []byte // SHA-1 of the original bytes, if WantDigest
	Warnings []string
}

// outputBufferSize computes the zero-copy buffer size the deflate worst
// case prescribes: size + ceil(size/16383)*5 + 64KiB.
func outputBufferSize(size int64) int64 {
	blocks := (size + 16382) / 16383
	return size + blocks*5 + 64*1024
}

// Pack implements the compression worker's public contract: pack(source,
// size, inputFormat, outputFormat, wantDigest) -> ZipEntry.
func Pack(req Request) (*Result, error) {
	if req.Input == Compressed {
		return packRecompressed(req)
	}
	return packFromScratch(req)
}

func packRecompressed(req Request) (*Result, error) {
	raw := make([]byte, req.Size)
	if _, err := io.ReadFull(req.Source, raw); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrReadFailed, err).WithEntry(req.Name)
	}

	res := &Result{}

	if !req.Output.Store {
		// Re-pack, compressed-to-compressed: copy the raw deflate stream
		// verbatim.
		res.Entry = &zipfmt.Entry{
			Name:             req.Name,
			Stored:           false,
			Data:             raw,
			DataSize:         uint64(len(raw)),
			UncompressedSize: req.OriginalUncompressedSize,
			CRC32:            req.OriginalCRC32,
		}
	} else {
		// outputFormat = UNCOMPRESSED while inputFormat = COMPRESSED:
		// re-inflate-then-restore is a non-goal - keep the original
		// compressed bytes and warn instead of honoring STORE.
		res.Entry = &zipfmt.Entry{
			Name:             req.Name,
			Stored:           false,
			Data:             raw,
			DataSize:         uint64(len(raw)),
			UncompressedSize: req.OriginalUncompressedSize,
			CRC32:            req.OriginalCRC32,
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%s: cannot store a previously deflated entry without re-inflating; keeping original compression", req.Name))
	}

	if req.WantDigest {
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		h := sha1.New()
		if _, err := io.Copy(h, fr); err != nil {
			return nil, ferrors.Wrap(ferrors.ErrReadFailed, err).WithEntry(req.Name)
		}
		res.Digest = h.Sum(nil)
	}

	return res, nil
}

func packFromScratch(req Request) (*Result, error) {
	if req.Size == 0 {
		// Zero-length inputs are always stored with empty payload.
		return &Result{Entry: &zipfmt.Entry{
			Name:   req.Name,
			Stored: true,
			Data:   []byte{},
		}, Digest: emptyDigest(req.WantDigest)}, nil
	}

	outSize := outputBufferSize(req.Size)
	outputBuffer := make([]byte, outSize)
	tailStart := outSize - req.Size
	original := outputBuffer[tailStart:]

	crcHasher := crc32.NewIEEE()
	var shaHasher hash.Hash
	var tee io.Writer = crcHasher
	if req.WantDigest {
		shaHasher = sha1.New()
		tee = io.MultiWriter(crcHasher, shaHasher)
	}

	if _, err := io.ReadFull(io.TeeReader(req.Source, tee), original); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrReadFailed, err).WithEntry(req.Name)
	}
	crc := crcHasher.Sum32()

	if req.Output.Store {
		return storedResult(req, original, crc, shaHasher), nil
	}

	data, ok, err := compressInPlace(req, outputBuffer[:tailStart], original)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCompressionFailed, err).WithEntry(req.Name)
	}
	if !ok {
		// Early-out (ratio threshold hit) or buffer overrun: fall back to
		// stored, recomputing nothing since the CRC above already covers
		// the original bytes.
		return storedResult(req, original, crc, shaHasher), nil
	}

	res := &Result{Entry: &zipfmt.Entry{
		Name:             req.Name,
		Stored:           false,
		Data:             data,
		DataSize:         uint64(len(data)),
		UncompressedSize: uint64(req.Size),
		CRC32:            crc,
	}}
	if shaHasher != nil {
		res.Digest = shaHasher.Sum(nil)
	}
	return res, nil
}

func storedResult(req Request, original []byte, crc uint32, shaHasher hash.Hash) *Result {
	// Copy the original bytes into a fresh slice sized to the payload, so
	// the entry does not keep the whole oversized outputBuffer alive.
	stored := make([]byte, len(original))
	copy(stored, original)

	res := &Result{Entry: &zipfmt.Entry{
		Name:             req.Name,
		Stored:           true,
		Data:             stored,
		DataSize:         uint64(len(stored)),
		UncompressedSize: uint64(len(stored)),
		CRC32:            crc,
	}}
	if shaHasher != nil {
		res.Digest = shaHasher.Sum(nil)
	}
	return res
}

// compressInPlace runs the configured compressor over original, writing
// into head (the portion of the shared output buffer before the tail
// where original itself lives). It returns ok=false when the early-out
// heuristic fires or the compressor would overrun into head's own
// capacity - both cases the caller treats as "fall back to stored".
func compressInPlace(req Request, head []byte, original []byte) (data []byte, ok bool, err error) {
	const safetyMargin = 32 * 1024

	cw := &capWriter{buf: head, limit: len(head) - safetyMargin}

	if req.Output.Fast {
		// FAST_DEFLATE: klauspost's stateless one-pass compressor has no
		// incremental Flush hook, so the early-out check runs once, after
		// the whole input has been compressed, rather than per block.
		sw := flate.NewStatelessWriter(cw)
		if _, werr := sw.Write(original); werr != nil {
			return nil, false, nil // ran out of buffer room: COMPRESSION_FAILED -> stored
		}
		if werr := sw.Close(); werr != nil {
			return nil, false, nil
		}
		if ratioExceeds(len(cw.buf[:cw.pos]), len(original), req.EarlyOut) {
			return nil, false, nil
		}
		out := make([]byte, cw.pos)
		copy(out, cw.buf[:cw.pos])
		return out, true, nil
	}

	level := req.Output.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	fw, ferr := flate.NewWriter(cw, level)
	if ferr != nil {
		return nil, false, ferr
	}

	consumed := 0
	for consumed < len(original) {
		end := consumed + windowSize
		if end > len(original) {
			end = len(original)
		}
		if _, werr := fw.Write(original[consumed:end]); werr != nil {
			return nil, false, nil
		}
		if werr := fw.Flush(); werr != nil {
			return nil, false, nil
		}
		consumed = end

		produced := cw.pos
		nearCollision := (len(head) - produced) <= windowSize
		if ratioExceeds(produced, consumed, req.EarlyOut) && nearCollision {
			return nil, false, nil
		}
		if cw.overran {
			return nil, false, nil
		}
	}

	if cerr := fw.Close(); cerr != nil {
		return nil, false, nil
	}
	if cw.overran {
		return nil, false, nil
	}

	if ratioExceeds(cw.pos, len(original), req.EarlyOut) {
		return nil, false, nil
	}

	out := make([]byte, cw.pos)
	copy(out, cw.buf[:cw.pos])
	return out, true, nil
}

// ratioExceeds reports whether produced*100/consumed >= earlyOut, i.e.
// compression is not paying for itself.
func ratioExceeds(produced, consumed, earlyOut int) bool {
	if consumed == 0 || earlyOut <= 0 {
		return false
	}
	return produced*100/consumed >= earlyOut
}

// capWriter writes into a fixed-size buffer and records whether it would
// have overrun its limit rather than ever doing so, modeling the "write
// cursor must not overtake the read cursor by less than a safety margin"
// invariant without literally aliasing memory a Go slice
// bounds-check would otherwise just panic on.
type capWriter struct {
	buf     []byte
	pos     int
	limit   int
	overran bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.overran {
		return 0, io.ErrShortBuffer
	}
	if w.pos+len(p) > w.limit {
		w.overran = true
		return 0, io.ErrShortBuffer
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func emptyDigest(want bool) []byte {
	if !want {
		return nil
	}
	h := sha1.New()
	return h.Sum(nil)
}
