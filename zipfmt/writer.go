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

package zipfmt

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// cdRecord is one fabricated central-directory entry, held in memory until
// Close writes the whole CD image.
type cdRecord struct {
	name      string
	method    uint16
	crc32     uint32
	compSize  uint64
	uncSize   uint64
	offset    uint64
	modified  int64
	extAttrs  uint32
	extra     []byte
	needZip64 bool
}

// Writer is the archive writer: appends entries sequentially to the
// output file, keeps the in-memory central-directory image, and finalizes
// with EOCD/EOCD64 on Close. Re-use after Close is not supported.
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	offset  uint64
	cd      []cdRecord
	align   bool
	force64 bool
	closed  bool
}

// New opens path for writing and pre-sizes the in-memory central-directory
// record list from the estimated entry count. estimatedNameBytes is
// accepted but not used.
func New(path string, estimatedEntries int, estimatedNameBytes int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		f:  f,
		bw: bufio.NewWriterSize(f, 256*1024),
		cd: make([]cdRecord, 0, estimatedEntries),
	}
	_ = estimatedNameBytes // sized in by cap() above; no separate byte buffer needed
	return w, nil
}

// SetAlign toggles 4-byte alignment padding for STORE entries.
func (w *Writer) SetAlign(v bool) { w.align = v }

// SetForce64 forces ZIP64 EOCD/locator emission regardless of size.
func (w *Writer) SetForce64(v bool) { w.force64 = v }

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.offset += uint64(n)
	return err
}

// Add commits a packed Entry: writes its local header, name, extras and
// payload, and fabricates the matching central-directory record. It
// consumes e.Data.
func (w *Writer) Add(e *Entry) error {
	method := uint16(MethodDeflate)
	if e.Stored {
		method = MethodStore
	}

	localOffset := w.offset
	needZip64 := w.force64 || e.DataSize > mask32-1 || e.UncompressedSize > mask32-1 || localOffset > mask32-1

	var padLen int
	if w.align && e.Stored {
		// Alignment padding lives in the extras field so that the payload
		// start (offset + fixed header + name + extras) is a multiple of 4.
		base := localOffset + localHeaderFixedLen + uint64(len(e.Name))
		if needZip64 {
			base += 4 + 24
		}
		if e.UID != nil || e.GID != nil {
			base += 4 + 1 + 1 + 4 + 1 + 4
		}
		padLen = int((4 - (base % 4)) % 4)
	}

	var localExtra []byte
	var cdExtra []byte
	if needZip64 {
		localExtra = zip64Extra(e.UncompressedSize, e.DataSize, localOffset)
		cdExtra = zip64Extra(e.UncompressedSize, e.DataSize, localOffset)
	}
	if e.UID != nil || e.GID != nil {
		var uid, gid uint32
		if e.UID != nil {
			uid = *e.UID
		}
		if e.GID != nil {
			gid = *e.GID
		}
		u := unix3Extra(uid, gid)
		localExtra = append(localExtra, u...)
		cdExtra = append(cdExtra, u...)
	}
	if padLen > 0 {
		localExtra = append(localExtra, make([]byte, padLen)...)
	}

	dosTime, dosDate := unixToDos(e.Modified)

	compSizeField := uint32(e.DataSize)
	uncSizeField := uint32(e.UncompressedSize)
	if needZip64 {
		compSizeField = mask32
		uncSizeField = mask32
	}

	hdr := make([]byte, localHeaderFixedLen)
	hb := writeBuf(hdr)
	hb.u32(sigLocalFile)
	if needZip64 {
		hb.u16(versionNeededZip64)
	} else {
		hb.u16(versionNeededDefault)
	}
	hb.u16(0) // flags
	hb.u16(method)
	hb.u16(dosTime)
	hb.u16(dosDate)
	hb.u32(e.CRC32)
	hb.u32(compSizeField)
	hb.u32(uncSizeField)
	hb.u16(uint16(len(e.Name)))
	hb.u16(uint16(len(localExtra)))

	if err := w.write(hdr); err != nil {
		return err
	}
	if err := w.write([]byte(e.Name)); err != nil {
		return err
	}
	if err := w.write(localExtra); err != nil {
		return err
	}
	if err := w.write(e.Data); err != nil {
		return err
	}
	e.Data = nil // ownership transferred; release for GC as soon as flushed

	extAttrs := uint32(e.Mode) << 16

	w.cd = append(w.cd, cdRecord{
		name:     e.Name,
		method:   method,
		crc32:    e.CRC32,
		compSize: e.DataSize,
		uncSize:  e.UncompressedSize,
		offset:    localOffset,
		modified:  e.Modified,
		extAttrs:  extAttrs,
		extra:     cdExtra,
		needZip64: needZip64,
	})

	return nil
}

// Write emits a pre-formed raw entry (used by the signer for
// MANIFEST.MF/CERT.SF/CERT.RSA). It is always written STORE.
func (w *Writer) Write(name string, data []byte, crc uint32, modified int64) error {
	e := &Entry{
		Name:             name,
		Stored:           true,
		Data:             data,
		DataSize:         uint64(len(data)),
		UncompressedSize: uint64(len(data)),
		CRC32:            crc,
		Modified:         modified,
	}
	return w.Add(e)
}

// Close finalizes the archive: emits the CD image, then (if needed) the
// ZIP64 EOCD + locator, then the standard EOCD.
func (w *Writer) Close() error {
	if w.closed {
		return fmt.Errorf("zipfmt: writer closed twice")
	}
	w.closed = true

	cdStart := w.offset
	var cdBuf bytes.Buffer

	for _, r := range w.cd {
		compField := uint32(r.compSize)
		uncField := uint32(r.uncSize)
		offField := uint32(r.offset)
		if r.needZip64 {
			compField = mask32
			uncField = mask32
			offField = mask32
		}

		dosTime, dosDate := unixToDos(r.modified)

		fixed := make([]byte, cdHeaderFixedLen)
		b := writeBuf(fixed)
		b.u32(sigCentralDir)
		b.u16(versionNeededDefault)
		if len(r.extra) > 0 {
			b.u16(versionNeededZip64)
		} else {
			b.u16(versionNeededDefault)
		}
		b.u16(0) // flags
		b.u16(r.method)
		b.u16(dosTime)
		b.u16(dosDate)
		b.u32(r.crc32)
		b.u32(compField)
		b.u32(uncField)
		b.u16(uint16(len(r.name)))
		b.u16(uint16(len(r.extra)))
		b.u16(0) // comment length
		b.u16(0) // disk number start
		b.u16(0) // internal attrs
		b.u32(r.extAttrs)
		b.u32(offField)

		cdBuf.Write(fixed)
		cdBuf.WriteString(r.name)
		cdBuf.Write(r.extra)
	}

	if err := w.write(cdBuf.Bytes()); err != nil {
		return err
	}

	cdSize := w.offset - cdStart
	records := uint64(len(w.cd))

	need64 := w.force64 || records > 0xFFFE || cdSize > mask32-1 || cdStart > mask32-1
	if need64 {
		eocd64 := make([]byte, eocd64FixedLen)
		b := writeBuf(eocd64)
		b.u32(sigEOCD64)
		b.u64(eocd64FixedLen - 12)
		b.u16(versionNeededZip64)
		b.u16(versionNeededZip64)
		b.u32(0)
		b.u32(0)
		b.u64(records)
		b.u64(records)
		b.u64(cdSize)
		b.u64(cdStart)

		locator := make([]byte, eocd64LocatorLen)
		lb := writeBuf(locator)
		lb.u32(sigEOCD64Locator)
		lb.u32(0)
		lb.u64(w.offset)
		lb.u32(1)

		if err := w.write(eocd64); err != nil {
			return err
		}
		if err := w.write(locator); err != nil {
			return err
		}
	}

	recordsField := uint16(records)
	sizeField := uint32(cdSize)
	offsetField := uint32(cdStart)
	if need64 {
		recordsField = 0xFFFF
		sizeField = mask32
		offsetField = mask32
	}

	eocd := make([]byte, eocdFixedLen)
	b := writeBuf(eocd)
	b.u32(sigEOCD)
	b.u16(0) // disk number
	b.u16(0) // disk with CD start
	b.u16(recordsField)
	b.u16(recordsField)
	b.u32(sizeField)
	b.u32(offsetField)
	b.u16(0) // comment length

	if err := w.write(eocd); err != nil {
		return err
	}

	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

// EntryCount returns the number of entries committed so far.
func (w *Writer) EntryCount() int { return len(w.cd) }
