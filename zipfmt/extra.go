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

// zip64Extra builds the 28-byte 0x0001 extra block carrying the true
// 64-bit uncompressed size, compressed size and local-header offset.
// All three fields are always present in the block this writer emits,
// matching the 28 bytes Writer.Add's alignment computation reserves for it.
func zip64Extra(uncompSize, compSize, offset uint64) []byte {
	buf := make([]byte, 4+24)
	b := writeBuf(buf)
	b.u16(extraZip64)
	b.u16(24)
	b.u64(uncompSize)
	b.u64(compSize)
	b.u64(offset)
	return buf
}

// unix3Extra builds the Info-ZIP "UN\x03" 0x7875 extra carrying uid/gid.
// Layout: version(1)=1, uidsize(1), uid, gidsize(1), gid.
func unix3Extra(uid, gid uint32) []byte {
	buf := make([]byte, 4+1+1+4+1+4)
	b := writeBuf(buf)
	b.u16(extraUnix3)
	b.u16(1 + 1 + 4 + 1 + 4)
	buf[4] = 1 // version
	buf[5] = 4 // uid size
	writeBuf(buf[6:10]).u32(uid)
	buf[10] = 4 // gid size
	writeBuf(buf[11:15]).u32(gid)
	return buf
}

// parsedExtra holds the fields extracted from a central-directory or local
// extra block that this reader understands.
type parsedExtra struct {
	hasZip64         bool
	uncompressedSize uint64
	compressedSize   uint64
	offset           uint64

	hasUnix bool
	uid     uint32
	gid     uint32
}

// parseExtra walks the chained (id,size,payload) extra records, decoding
// the 0x0001/0x7875 fields this implementation understands and skipping
// anything else - including 0x5455 Unix timestamps, recorded as present
// but otherwise unused. uncMasked/compMasked/offMasked tell it which of
// the fixed record's three size/offset fields actually read 0xFFFFFFFF,
// since the 0x0001 payload carries only those fields, in that fixed
// order (APPNOTE 4.5.3): a standard ZIP64 archive may mask any subset,
// not always all three together.
func parseExtra(data []byte, uncMasked, compMasked, offMasked bool) parsedExtra {
	var out parsedExtra
	b := readBuf(data)

	for len(b) >= 4 {
		id := b.u16()
		size := b.u16()
		if int(size) > len(b) {
			break
		}
		payload := b.bytes(int(size))

		switch id {
		case extraZip64:
			pb := readBuf(payload)
			if uncMasked && len(pb) >= 8 {
				out.uncompressedSize = pb.u64()
			}
			if compMasked && len(pb) >= 8 {
				out.compressedSize = pb.u64()
			}
			if offMasked && len(pb) >= 8 {
				out.offset = pb.u64()
			}
			out.hasZip64 = true
		case extraUnix3:
			if len(payload) >= 5 {
				pos := 1
				uidSize := int(payload[pos])
				pos++
				if uidSize == 4 && pos+4 <= len(payload) {
					out.uid = readBuf(payload[pos : pos+4]).u32()
				}
				pos += uidSize
				if pos < len(payload) {
					gidSize := int(payload[pos])
					pos++
					if gidSize == 4 && pos+4 <= len(payload) {
						out.gid = readBuf(payload[pos : pos+4]).u32()
					}
				}
				out.hasUnix = true
			}
		case extraUnixTime:
			// recorded as present but unused.
		}
	}

	return out
}
