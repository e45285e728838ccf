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
	"errors"
	"fmt"
	"os"
)

// IndexEntry is one record of the parsed central directory: enough to locate and interpret the matching local
// header without re-parsing the whole CD.
type IndexEntry struct {
	Name             string
	Method           uint16
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	LocalHeaderOffset uint64
	ExternalAttrs    uint32
	Modified         int64
	UID              uint32
	GID              uint32
	HasUnix          bool
}

// Reader is the archive reader: locates and parses the central
// directory (including ZIP64), exposing an indexable entry list.
type Reader struct {
	f       *os.File
	size    int64
	Entries []IndexEntry
	Comment string
}

var ErrNotZip = errors.New("zipfmt: end of central directory not found")

// Open locates and parses the central directory of the ZIP file at path:
// scans backward for the EOCD signature, follows the ZIP64 locator chain
// when the 32-bit entry count or CD offset are masked.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{f: f, size: info.Size()}
	if err := r.init(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	eocdOff, eocd, err := r.findEOCD()
	if err != nil {
		return err
	}

	rb := readBuf(eocd[4:])
	_ = rb.u16() // disk number
	_ = rb.u16() // disk with CD start
	records16 := rb.u16()
	totalRecords16 := rb.u16()
	cdSize32 := rb.u32()
	cdOffset32 := rb.u32()
	commentLen := rb.u16()

	records := uint64(totalRecords16)
	cdOffset := uint64(cdOffset32)
	_ = records16
	_ = cdSize32

	if totalRecords16 == 0xFFFF || cdOffset32 == mask32 {
		locOff := eocdOff - eocd64LocatorLen
		if locOff < 0 {
			return ErrNotZip
		}
		loc := make([]byte, eocd64LocatorLen)
		if _, err := r.f.ReadAt(loc, locOff); err != nil {
			return err
		}
		lb := readBuf(loc)
		if lb.u32() != sigEOCD64Locator {
			return ErrNotZip
		}
		_ = lb.u32() // disk with EOCD64
		eocd64Off := int64(lb.u64())

		eocd64 := make([]byte, eocd64FixedLen)
		if _, err := r.f.ReadAt(eocd64, eocd64Off); err != nil {
			return err
		}
		eb := readBuf(eocd64)
		if eb.u32() != sigEOCD64 {
			return ErrNotZip
		}
		_ = eb.u64() // record size
		_ = eb.u16() // version made by
		_ = eb.u16() // version needed
		_ = eb.u32() // disk number
		_ = eb.u32() // disk with CD start
		_ = eb.u64() // entries this disk
		records = eb.u64()
		_ = eb.u64() // cd size
		cdOffset = eb.u64()
	}

	if commentLen > 0 {
		comment := make([]byte, commentLen)
		if _, err := r.f.ReadAt(comment, eocdOff+eocdFixedLen); err == nil {
			r.Comment = string(comment)
		}
	}

	return r.parseCD(cdOffset, records)
}

// findEOCD scans backward over the last 64KiB+22 bytes for the EOCD
// signature.
func (r *Reader) findEOCD() (int64, []byte, error) {
	const maxBack = 65536 + eocdFixedLen
	back := int64(maxBack)
	if back > r.size {
		back = r.size
	}

	buf := make([]byte, back)
	if _, err := r.f.ReadAt(buf, r.size-back); err != nil {
		return 0, nil, err
	}

	for i := len(buf) - eocdFixedLen; i >= 0; i-- {
		if uint32(buf[i])|uint32(buf[i+1])<<8|uint32(buf[i+2])<<16|uint32(buf[i+3])<<24 == sigEOCD {
			return r.size - back + int64(i), buf[i : i+eocdFixedLen], nil
		}
	}

	return 0, nil, ErrNotZip
}

func (r *Reader) parseCD(offset uint64, count uint64) error {
	r.Entries = make([]IndexEntry, 0, count)

	pos := int64(offset)
	for i := uint64(0); i < count; i++ {
		fixed := make([]byte, cdHeaderFixedLen)
		if _, err := r.f.ReadAt(fixed, pos); err != nil {
			return fmt.Errorf("zipfmt: reading central directory entry %d: %w", i, err)
		}

		b := readBuf(fixed)
		if sig := b.u32(); sig != sigCentralDir {
			return fmt.Errorf("zipfmt: bad central directory signature at entry %d", i)
		}
		_ = b.u16() // version made by
		_ = b.u16() // version needed
		_ = b.u16() // flags
		method := b.u16()
		dosTime := b.u16()
		dosDate := b.u16()
		crc := b.u32()
		compSize := uint64(b.u32())
		uncSize := uint64(b.u32())
		nameLen := b.u16()
		extraLen := b.u16()
		commentLen := b.u16()
		_ = b.u16() // disk number start
		_ = b.u16() // internal attrs
		extAttrs := b.u32()
		offField := uint64(b.u32())

		rest := make([]byte, int(nameLen)+int(extraLen)+int(commentLen))
		if _, err := r.f.ReadAt(rest, pos+cdHeaderFixedLen); err != nil {
			return err
		}
		name := string(rest[:nameLen])
		extra := rest[nameLen : nameLen+extraLen]

		pe := parseExtra(extra, uncSize == mask32, compSize == mask32, offField == mask32)
		if pe.hasZip64 {
			if uncSize == mask32 {
				uncSize = pe.uncompressedSize
			}
			if compSize == mask32 {
				compSize = pe.compressedSize
			}
			if offField == mask32 {
				offField = pe.offset
			}
		}

		// Broken archives whose external-attribute word does not set the
		// regular-file bit have their mode cleared to zero, i.e. default
		// permissions. A directory entry (name ends in "/")
		// is exempt: it is expected to carry S_IFDIR, not S_IFREG.
		mode := uint16(extAttrs >> 16)
		isDir := len(name) > 0 && name[len(name)-1] == '/'
		if mode != 0 && !isDir && mode&0o100000 == 0 {
			extAttrs &^= 0xFFFF0000
		}

		r.Entries = append(r.Entries, IndexEntry{
			Name:              name,
			Method:            method,
			CRC32:             crc,
			CompressedSize:    compSize,
			UncompressedSize:  uncSize,
			LocalHeaderOffset: offField,
			ExternalAttrs:     extAttrs,
			Modified:          dosToUnix(dosTime, dosDate),
			UID:               pe.uid,
			GID:               pe.gid,
			HasUnix:           pe.hasUnix,
		})

		pos += cdHeaderFixedLen + int64(nameLen) + int64(extraLen) + int64(commentLen)
	}

	return nil
}

// LocalHeader describes the fields read back from an entry's local file
// header, with the byte offset where its payload begins.
type LocalHeader struct {
	Method       uint16
	CompressedSize uint64
	UncompressedSize uint64
	PayloadOffset  int64
	UID            uint32
	GID            uint32
	HasUnix        bool
}

// ReadLocalHeader reads and parses the local file header located at
// entry.LocalHeaderOffset, returning the offset where the compressed
// payload begins.
func (r *Reader) ReadLocalHeader(entry *IndexEntry) (*LocalHeader, error) {
	fixed := make([]byte, localHeaderFixedLen)
	if _, err := r.f.ReadAt(fixed, int64(entry.LocalHeaderOffset)); err != nil {
		return nil, err
	}

	b := readBuf(fixed)
	if sig := b.u32(); sig != sigLocalFile {
		return nil, fmt.Errorf("zipfmt: bad local header signature for %q", entry.Name)
	}
	_ = b.u16() // version needed
	_ = b.u16() // flags
	method := b.u16()
	_ = b.u16() // mod time
	_ = b.u16() // mod date
	_ = b.u32() // crc32 (authoritative copy is in the CD)
	compSize := uint64(b.u32())
	uncSize := uint64(b.u32())
	nameLen := b.u16()
	extraLen := b.u16()

	extra := make([]byte, extraLen)
	if extraLen > 0 {
		if _, err := r.f.ReadAt(extra, int64(entry.LocalHeaderOffset)+localHeaderFixedLen+int64(nameLen)); err != nil {
			return nil, err
		}
	}

	pe := parseExtra(extra, uncSize == mask32, compSize == mask32, false)
	if pe.hasZip64 {
		if compSize == mask32 {
			compSize = pe.compressedSize
		}
		if uncSize == mask32 {
			uncSize = pe.uncompressedSize
		}
	}
	if compSize == mask32 || uncSize == mask32 {
		// masked but no usable zip64 local extra: trust the authoritative
		// central-directory sizes already recorded on entry.
		compSize = entry.CompressedSize
		uncSize = entry.UncompressedSize
	}

	return &LocalHeader{
		Method:           method,
		CompressedSize:   compSize,
		UncompressedSize: uncSize,
		PayloadOffset:    int64(entry.LocalHeaderOffset) + localHeaderFixedLen + int64(nameLen) + int64(extraLen),
		UID:              pe.uid,
		GID:              pe.gid,
		HasUnix:           pe.hasUnix,
	}, nil
}

// File returns the underlying *os.File for positioned reads.
func (r *Reader) File() *os.File { return r.f }

// Close releases the underlying file descriptor.
func (r *Reader) Close() error { return r.f.Close() }
