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

package packjob_test

import (
	"bytes"
	"crypto/sha1"
	"hash/crc32"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/klauspost/compress/flate"

	"github.com/sasq64/fastzip/packjob"
)

var _ = Describe("Pack", func() {
	It("stores zero-length input with an empty payload", func() {
		res, err := packjob.Pack(packjob.Request{
			Source: bytes.NewReader(nil),
			Size:   0,
			Name:   "empty.txt",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Entry.Stored).To(BeTrue())
		Expect(res.Entry.Data).To(BeEmpty())
		Expect(res.Entry.UncompressedSize).To(BeZero())
	})

	It("stores input verbatim when the output format requests STORE", func() {
		payload := []byte("store me exactly as given")
		res, err := packjob.Pack(packjob.Request{
			Source: bytes.NewReader(payload),
			Size:   int64(len(payload)),
			Output: packjob.FormatStore,
			Name:   "x.bin",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Entry.Stored).To(BeTrue())
		Expect(res.Entry.Data).To(Equal(payload))
		Expect(res.Entry.CRC32).To(Equal(crc32.ChecksumIEEE(payload)))
	})

	It("deflates compressible input to a smaller, inflatable payload", func() {
		payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)
		res, err := packjob.Pack(packjob.Request{
			Source:   bytes.NewReader(payload),
			Size:     int64(len(payload)),
			Output:   packjob.FormatDeflateDefault,
			EarlyOut: 98,
			Name:     "fox.txt",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Entry.Stored).To(BeFalse())
		Expect(len(res.Entry.Data)).To(BeNumerically("<", len(payload)))
		Expect(res.Entry.UncompressedSize).To(BeEquivalentTo(len(payload)))
		Expect(res.Entry.CRC32).To(Equal(crc32.ChecksumIEEE(payload)))

		fr := flate.NewReader(bytes.NewReader(res.Entry.Data))
		defer fr.Close()
		got, err := io.ReadAll(fr)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(payload))
	})

	It("falls back to stored when the early-out ratio threshold is hit on incompressible input", func() {
		// Pseudo-random, not actually compressible below a near-100% ratio.
		payload := make([]byte, 200000)
		x := uint32(123456789)
		for i := range payload {
			x ^= x << 13
			x ^= x >> 17
			x ^= x << 5
			payload[i] = byte(x)
		}

		res, err := packjob.Pack(packjob.Request{
			Source:   bytes.NewReader(payload),
			Size:     int64(len(payload)),
			Output:   packjob.FormatDeflateDefault,
			EarlyOut: 50, // aggressive: bail unless compression beats 50%
			Name:     "random.bin",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Entry.Stored).To(BeTrue())
		Expect(res.Entry.Data).To(Equal(payload))
	})

	It("computes a SHA-1 digest of the original bytes when WantDigest is set", func() {
		payload := []byte("digest this please")
		res, err := packjob.Pack(packjob.Request{
			Source:     bytes.NewReader(payload),
			Size:       int64(len(payload)),
			Output:     packjob.FormatStore,
			WantDigest: true,
			Name:       "d.txt",
		})
		Expect(err).NotTo(HaveOccurred())
		want := sha1.Sum(payload)
		Expect(res.Digest).To(Equal(want[:]))
	})

	It("copies a previously-compressed stream verbatim when re-packing", func() {
		original := []byte(strings.Repeat("recompress me not", 500))
		var compressed bytes.Buffer
		fw, _ := flate.NewWriter(&compressed, flate.DefaultCompression)
		_, _ = fw.Write(original)
		_ = fw.Close()

		res, err := packjob.Pack(packjob.Request{
			Source:                   bytes.NewReader(compressed.Bytes()),
			Size:                     int64(compressed.Len()),
			Input:                    packjob.Compressed,
			Output:                   packjob.FormatDeflateDefault,
			OriginalCRC32:            crc32.ChecksumIEEE(original),
			OriginalUncompressedSize: uint64(len(original)),
			Name:                     "reused.bin",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Entry.Data).To(Equal(compressed.Bytes()))
		Expect(res.Entry.CRC32).To(Equal(crc32.ChecksumIEEE(original)))
		Expect(res.Entry.UncompressedSize).To(BeEquivalentTo(len(original)))
	})

	It("warns and keeps the original compression when asked to STORE an already-deflated stream", func() {
		original := []byte("cannot store without re-inflating")
		var compressed bytes.Buffer
		fw, _ := flate.NewWriter(&compressed, flate.DefaultCompression)
		_, _ = fw.Write(original)
		_ = fw.Close()

		res, err := packjob.Pack(packjob.Request{
			Source: bytes.NewReader(compressed.Bytes()),
			Size:   int64(compressed.Len()),
			Input:  packjob.Compressed,
			Output: packjob.FormatStore,
			Name:   "s.bin",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Warnings).NotTo(BeEmpty())
		Expect(res.Entry.Data).To(Equal(compressed.Bytes()))
	})
})
