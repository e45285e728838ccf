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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MS-DOS date/time packing", func() {
	It("round-trips to 2-second resolution", func() {
		t := time.Date(2024, time.March, 17, 13, 45, 30, 0, time.UTC)
		dosTime, dosDate := unixToDos(t.Unix())
		got := dosToUnix(dosTime, dosDate)
		Expect(got).To(Equal(t.Unix()))
	})

	It("truncates odd seconds down to the nearest even second", func() {
		t := time.Date(2024, time.March, 17, 13, 45, 31, 0, time.UTC)
		dosTime, dosDate := unixToDos(t.Unix())
		got := dosToUnix(dosTime, dosDate)
		Expect(got).To(Equal(t.Add(-time.Second).Unix()))
	})

	It("clamps years before the 1980 epoch to the earliest representable date", func() {
		t := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
		dosTime, dosDate := unixToDos(t.Unix())
		got := dosToUnix(dosTime, dosDate)
		Expect(time.Unix(got, 0).UTC().Year()).To(Equal(1980))
	})
})

var _ = Describe("extra field codec", func() {
	It("round-trips a ZIP64 extra block", func() {
		raw := zip64Extra(1<<40, 1<<33, 1<<35)
		pe := parseExtra(raw, true, true, true)
		Expect(pe.hasZip64).To(BeTrue())
		Expect(pe.uncompressedSize).To(BeEquivalentTo(1 << 40))
		Expect(pe.compressedSize).To(BeEquivalentTo(1 << 33))
		Expect(pe.offset).To(BeEquivalentTo(1 << 35))
	})

	It("round-trips a Unix uid/gid extra block", func() {
		raw := unix3Extra(1000, 1001)
		pe := parseExtra(raw, true, true, true)
		Expect(pe.hasUnix).To(BeTrue())
		Expect(pe.uid).To(BeEquivalentTo(1000))
		Expect(pe.gid).To(BeEquivalentTo(1001))
	})

	It("decodes both blocks chained back to back", func() {
		raw := append(zip64Extra(10, 20, 30), unix3Extra(7, 8)...)
		pe := parseExtra(raw, true, true, true)
		Expect(pe.hasZip64).To(BeTrue())
		Expect(pe.hasUnix).To(BeTrue())
		Expect(pe.uid).To(BeEquivalentTo(7))
	})

	It("ignores unknown extra ids without erroring", func() {
		raw := unix3Extra(1, 2)
		raw[0] = 0xAB // corrupt to an id this reader does not recognise
		raw[1] = 0xCD
		Expect(func() { parseExtra(raw, true, true, true) }).NotTo(Panic())
	})

	It("reads only the masked fixed-record fields from a partially-masked ZIP64 extra", func() {
		// A standard external archive only packs the fields that actually
		// overflowed 32 bits into the 0x0001 payload, in fixed positional
		// order: here only the compressed size overflowed, so the payload
		// is a single 8-byte field, not all three.
		buf := make([]byte, 4+8)
		b := writeBuf(buf)
		b.u16(extraZip64)
		b.u16(8)
		b.u64(1 << 40)

		pe := parseExtra(buf, false, true, false)
		Expect(pe.hasZip64).To(BeTrue())
		Expect(pe.compressedSize).To(BeEquivalentTo(1 << 40))
		Expect(pe.uncompressedSize).To(BeEquivalentTo(0))
		Expect(pe.offset).To(BeEquivalentTo(0))
	})
})
