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

package zipfmt_test

import (
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/klauspost/compress/flate"

	"github.com/sasq64/fastzip/zipfmt"
)

func tempArchivePath() string {
	return filepath.Join(GinkgoT().TempDir(), "out.zip")
}

var _ = Describe("Writer/Reader round-trip", func() {
	It("recovers a stored entry byte-for-byte", func() {
		path := tempArchivePath()
		w, err := zipfmt.New(path, 1, 8)
		Expect(err).NotTo(HaveOccurred())

		payload := []byte("hello, fastzip")
		Expect(w.Add(&zipfmt.Entry{
			Name:             "hello.txt",
			Stored:           true,
			Data:             append([]byte{}, payload...),
			DataSize:         uint64(len(payload)),
			UncompressedSize: uint64(len(payload)),
			CRC32:            crc32Of(payload),
			Modified:         1700000000,
			Mode:             0o644,
		})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		r, err := zipfmt.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		Expect(r.Entries).To(HaveLen(1))
		Expect(r.Entries[0].Name).To(Equal("hello.txt"))
		Expect(r.Entries[0].Method).To(BeEquivalentTo(zipfmt.MethodStore))

		lh, err := r.ReadLocalHeader(&r.Entries[0])
		Expect(err).NotTo(HaveOccurred())
		got := make([]byte, lh.CompressedSize)
		_, err = io.ReadFull(io.NewSectionReader(r.File(), lh.PayloadOffset, int64(lh.CompressedSize)), got)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(payload))
	})

	It("recovers a deflated entry through klauspost's reader", func() {
		path := tempArchivePath()
		w, err := zipfmt.New(path, 1, 8)
		Expect(err).NotTo(HaveOccurred())

		original := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		var compressed []byte
		{
			var buf writerBuf
			fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			_, _ = fw.Write(original)
			_ = fw.Close()
			compressed = buf.b
		}

		Expect(w.Add(&zipfmt.Entry{
			Name:             "letters.txt",
			Stored:           false,
			Data:             compressed,
			DataSize:         uint64(len(compressed)),
			UncompressedSize: uint64(len(original)),
			CRC32:            crc32Of(original),
			Modified:         1700000000,
		})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		r, err := zipfmt.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		Expect(r.Entries[0].Method).To(BeEquivalentTo(zipfmt.MethodDeflate))
		lh, err := r.ReadLocalHeader(&r.Entries[0])
		Expect(err).NotTo(HaveOccurred())

		src := io.NewSectionReader(r.File(), lh.PayloadOffset, int64(lh.CompressedSize))
		fr := flate.NewReader(src)
		defer fr.Close()
		got, err := io.ReadAll(fr)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(original))
	})

	It("keeps the central-directory entry count equal to the local-header count", func() {
		path := tempArchivePath()
		w, err := zipfmt.New(path, 3, 16)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			data := []byte{byte(i), byte(i + 1)}
			Expect(w.Add(&zipfmt.Entry{
				Name:             string(rune('a' + i)) + ".bin",
				Stored:           true,
				Data:             data,
				DataSize:         uint64(len(data)),
				UncompressedSize: uint64(len(data)),
				CRC32:            crc32Of(data),
			})).To(Succeed())
		}
		Expect(w.EntryCount()).To(Equal(3))
		Expect(w.Close()).To(Succeed())

		r, err := zipfmt.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()
		Expect(r.Entries).To(HaveLen(3))
	})

	It("aligns a STORE payload to 4 bytes while also carrying a uid/gid extra", func() {
		path := tempArchivePath()
		w, err := zipfmt.New(path, 1, 8)
		Expect(err).NotTo(HaveOccurred())
		w.SetAlign(true)

		uid, gid := uint32(1000), uint32(1000)
		payload := []byte("odd")
		Expect(w.Add(&zipfmt.Entry{
			Name:             "o.txt",
			Stored:           true,
			Data:             append([]byte{}, payload...),
			DataSize:         uint64(len(payload)),
			UncompressedSize: uint64(len(payload)),
			CRC32:            crc32Of(payload),
			UID:              &uid,
			GID:              &gid,
		})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		r, err := zipfmt.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		lh, err := r.ReadLocalHeader(&r.Entries[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(lh.PayloadOffset % 4).To(BeEquivalentTo(0))
		Expect(lh.HasUnix).To(BeTrue())
		Expect(lh.UID).To(BeEquivalentTo(1000))
		Expect(lh.GID).To(BeEquivalentTo(1000))

		got := make([]byte, lh.CompressedSize)
		_, err = io.ReadFull(io.NewSectionReader(r.File(), lh.PayloadOffset, int64(lh.CompressedSize)), got)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(payload))
	})

	It("forces ZIP64 EOCD/locator emission when SetForce64 is set, even for a tiny archive", func() {
		path := tempArchivePath()
		w, err := zipfmt.New(path, 1, 4)
		Expect(err).NotTo(HaveOccurred())
		w.SetForce64(true)

		Expect(w.Add(&zipfmt.Entry{
			Name:             "x",
			Stored:           true,
			Data:             []byte("x"),
			DataSize:         1,
			UncompressedSize: 1,
			CRC32:            crc32Of([]byte("x")),
		})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(containsEOCD64Signature(data)).To(BeTrue())
	})
})

type writerBuf struct{ b []byte }

func (w *writerBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func crc32Of(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func containsEOCD64Signature(data []byte) bool {
	const sig = "PK\x06\x06"
	for i := 0; i+4 <= len(data); i++ {
		if string(data[i:i+4]) == sig {
			return true
		}
	}
	return false
}
