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

package main

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sasq64/fastzip/zipfmt"
)

// fakeFileInfo is an os.FileInfo whose Sys() is not a *syscall.Stat_t, used
// to exercise lstatOwner's non-Unix / synthetic-FileInfo fallback.
type fakeFileInfo struct{ name string }

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() os.FileMode  { return 0o644 }
func (f fakeFileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() any           { return nil }

var _ = Describe("lstatOwner", func() {
	It("reads uid/gid from a real file's Stat_t", func() {
		dir := GinkgoT().TempDir()
		p := filepath.Join(dir, "f.txt")
		Expect(os.WriteFile(p, []byte("x"), 0o644)).To(Succeed())

		info, err := os.Lstat(p)
		Expect(err).NotTo(HaveOccurred())

		uid, gid := lstatOwner(info)
		Expect(uid).NotTo(BeNil())
		Expect(gid).NotTo(BeNil())
		Expect(*uid).To(BeEquivalentTo(syscall.Getuid()))
		Expect(*gid).To(BeEquivalentTo(syscall.Getgid()))
	})

	It("returns nil, nil when Sys() isn't a *syscall.Stat_t", func() {
		uid, gid := lstatOwner(fakeFileInfo{name: "synthetic"})
		Expect(uid).To(BeNil())
		Expect(gid).To(BeNil())
	})
})

var _ = Describe("fileJob", func() {
	It("populates UID/GID from the on-disk file's owner", func() {
		dir := GinkgoT().TempDir()
		p := filepath.Join(dir, "f.txt")
		Expect(os.WriteFile(p, []byte("x"), 0o644)).To(Succeed())
		info, err := os.Lstat(p)
		Expect(err).NotTo(HaveOccurred())

		cfg := defaultConfig()
		job := fileJob(cfg, p, "f.txt", info, outputFormat(cfg))

		Expect(job.UID).NotTo(BeNil())
		Expect(job.GID).NotTo(BeNil())
		Expect(*job.UID).To(BeEquivalentTo(syscall.Getuid()))
	})
})

var _ = Describe("enumerateZipJobs", func() {
	It("carries uid/gid through from the source archive's 0x7875 extra", func() {
		dir := GinkgoT().TempDir()
		srcPath := filepath.Join(dir, "src.zip")

		uid, gid := uint32(1000), uint32(1001)
		payload := []byte("hello")
		w, err := zipfmt.New(srcPath, 1, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Add(&zipfmt.Entry{
			Name:             "a.txt",
			Stored:           true,
			Data:             payload,
			DataSize:         uint64(len(payload)),
			UncompressedSize: uint64(len(payload)),
			CRC32:            crc32.ChecksumIEEE(payload),
			UID:              &uid,
			GID:              &gid,
		})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		cfg := defaultConfig()
		cfg.fromZip = srcPath

		jobs, err := enumerateZipJobs(cfg, outputFormat(cfg))
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].UID).NotTo(BeNil())
		Expect(jobs[0].GID).NotTo(BeNil())
		Expect(*jobs[0].UID).To(BeEquivalentTo(1000))
		Expect(*jobs[0].GID).To(BeEquivalentTo(1001))
	})

	It("leaves UID/GID nil when the source entry carries no unix extra", func() {
		dir := GinkgoT().TempDir()
		srcPath := filepath.Join(dir, "src2.zip")
		payload := []byte("hello")

		w, err := zipfmt.New(srcPath, 1, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Write("a.txt", payload, crc32.ChecksumIEEE(payload), 0)).To(Succeed())
		Expect(w.Close()).To(Succeed())

		cfg := defaultConfig()
		cfg.fromZip = srcPath

		jobs, err := enumerateZipJobs(cfg, outputFormat(cfg))
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].UID).To(BeNil())
		Expect(jobs[0].GID).To(BeNil())
	})
})
