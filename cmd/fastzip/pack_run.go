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
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/sasq64/fastzip/ferrors"
	"github.com/sasq64/fastzip/jarsign"
	"github.com/sasq64/fastzip/keystore"
	"github.com/sasq64/fastzip/packer"
	"github.com/sasq64/fastzip/packjob"
	"github.com/sasq64/fastzip/report"
	"github.com/sasq64/fastzip/zipfmt"
)

// runPack enumerates cfg.paths (or walks cfg.archive when it is itself a
// directory) into FileJobs, drives the pack scheduler, runs the signer if
// requested, and finalizes the writer.
func runPack(cfg *config, rep report.Reporter) error {
	roots := cfg.paths
	if info, err := os.Stat(cfg.archive); err == nil && info.IsDir() {
		roots = []string{cfg.archive}
	}
	if len(roots) == 0 {
		return ferrors.New(ferrors.ErrConfig, "no input paths given")
	}

	outPath := cfg.output
	if outPath == "" {
		outPath = archiveOutputPath(cfg.archive, roots)
	}

	jobs, err := enumerateJobs(cfg, roots)
	if err != nil {
		return err
	}

	w, err := zipfmt.New(outPath, len(jobs), estimateNameBytes(jobs))
	if err != nil {
		return ferrors.Wrap(ferrors.ErrOutputUnwritable, err)
	}
	w.SetAlign(cfg.align)
	w.SetForce64(cfg.force64)

	sched := packer.New(jobs, w, cfg.sequential, cfg.sign, rep)

	var bar *mpb.Bar
	var progress *mpb.Progress
	if !cfg.quiet && !cfg.verbose {
		progress = mpb.New(mpb.WithWidth(40))
		bar = progress.AddBar(int64(len(jobs)),
			mpb.PrependDecorators(decor.Name("packing")),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
		)
	}
	sched.OnEntry(func(name string) {
		if cfg.verbose {
			rep.Infof("%s", name)
		}
		if bar != nil {
			bar.Increment()
		}
	})

	runErr := sched.Run(packer.WorkerCount(cfg.workers))
	if progress != nil {
		progress.Wait()
	}
	if runErr != nil {
		w.Close()
		return runErr
	}

	if cfg.sign {
		unlocked, err := unlockSigningKey(cfg)
		if err != nil {
			w.Close()
			return err
		}
		if err := jarsign.Sign(w, sched.DigestBuffer(), unlocked); err != nil {
			w.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		return ferrors.Wrap(ferrors.ErrOutputUnwritable, err)
	}
	return nil
}

// archiveOutputPath implements "when <archive> is an existing directory →
// pack it into <basename>.zip".
func archiveOutputPath(archive string, roots []string) string {
	if info, err := os.Stat(archive); err == nil && info.IsDir() {
		base := filepath.Base(filepath.Clean(archive))
		return base + ".zip"
	}
	return archive
}

func estimateNameBytes(jobs []packer.FileJob) int {
	total := 0
	for _, j := range jobs {
		total += len(j.ArchiveName)
	}
	return total
}

// enumerateJobs walks every root,
// builds a FileJob per regular file or symlink found, and appends re-pack
// jobs from "-Z" when given.
func enumerateJobs(cfg *config, roots []string) ([]packer.FileJob, error) {
	var jobs []packer.FileJob
	format := outputFormat(cfg)

	for _, root := range roots {
		info, err := os.Lstat(root)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.ErrReadFailed, err).WithEntry(root)
		}

		if !info.IsDir() {
			jobs = append(jobs, fileJob(cfg, root, filepath.Base(root), info, format))
			continue
		}

		walkErr := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			rel, rerr := filepath.Rel(root, p)
			if rerr != nil {
				rel = fi.Name()
			}
			name := filepath.Join(filepath.Base(root), rel)
			jobs = append(jobs, fileJob(cfg, p, filepath.ToSlash(name), fi, format))
			return nil
		})
		if walkErr != nil {
			return nil, ferrors.Wrap(ferrors.ErrReadFailed, walkErr)
		}
	}

	if cfg.fromZip != "" {
		zjobs, err := enumerateZipJobs(cfg, format)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, zjobs...)
	}

	return jobs, nil
}

func fileJob(cfg *config, diskPath, archiveName string, fi os.FileInfo, format packjob.OutputFormat) packer.FileJob {
	isSymlink := fi.Mode()&os.ModeSymlink != 0
	entryFormat := format
	if extInList(archiveName, cfg.storeExts) {
		entryFormat = packjob.FormatStore
	}

	uid, gid := lstatOwner(fi)

	return packer.FileJob{
		ArchiveName: archiveName,
		DiskPath:    diskPath,
		Format:      entryFormat,
		WantDigest:  cfg.sign,
		EarlyOut:    cfg.earlyOut,
		Modified:    fi.ModTime().Unix(),
		Mode:        0o100000 | uint16(fi.Mode().Perm()), // S_IFREG | permission bits
		UID:         uid,
		GID:         gid,
		IsSymlink:   isSymlink,
		IsDir:       fi.IsDir(),
	}
}

// lstatOwner reads the uid/gid an os.Lstat/os.Stat FileInfo's Sys() carries
// on Unix, so the writer can emit a 0x7875 extra.
// Returns nil, nil when the platform's FileInfo.Sys() isn't a
// *syscall.Stat_t (non-Unix, or a synthetic FileInfo in a test).
func lstatOwner(fi os.FileInfo) (uid, gid *uint32) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, nil
	}
	u, g := uint32(st.Uid), uint32(st.Gid)
	return &u, &g
}

// enumerateZipJobs builds re-pack jobs from "-Z file", preserving any
// existing DEFLATE streams.
func enumerateZipJobs(cfg *config, format packjob.OutputFormat) ([]packer.FileJob, error) {
	r, err := zipfmt.Open(cfg.fromZip)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrArchiveMalformed, err)
	}

	jobs := make([]packer.FileJob, 0, len(r.Entries))
	for i := range r.Entries {
		e := &r.Entries[i]
		entryFormat := format
		if e.Method == zipfmt.MethodDeflate {
			entryFormat = packjob.OutputFormat{} // COMPRESSED -> COMPRESSED re-pack path
		}

		var uid, gid *uint32
		if e.HasUnix {
			u, g := e.UID, e.GID
			uid, gid = &u, &g
		}

		jobs = append(jobs, packer.FileJob{
			ArchiveName:   e.Name,
			SourceArchive: r,
			SourceEntry:   e,
			Format:        entryFormat,
			WantDigest:    cfg.sign,
			EarlyOut:      cfg.earlyOut,
			Modified:      e.Modified,
			Mode:          uint16(e.ExternalAttrs >> 16),
			UID:           uid,
			GID:           gid,
		})
	}
	return jobs, nil
}

func extInList(name string, exts map[string]bool) bool {
	if len(exts) == 0 {
		return false
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return exts[ext]
}

// outputFormat maps the "-<digit>" level flag to a packjob.OutputFormat.
func outputFormat(cfg *config) packjob.OutputFormat {
	if !cfg.levelSet {
		return packjob.FormatDeflateDefault
	}
	return packjob.FormatDeflate(cfg.level)
}

// unlockSigningKey loads the configured (or --apk default) keystore and
// recovers the signing alias's private key.
func unlockSigningKey(cfg *config) (*keystore.Unlocked, error) {
	if cfg.signKeystore == "" {
		return nil, ferrors.New(ferrors.ErrKeystoreNotFound, "no keystore given; use -S=keystore,password,alias or --apk")
	}

	data, err := os.ReadFile(cfg.signKeystore)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrKeystoreNotFound, err)
	}

	ks, err := keystore.Open(data)
	if err != nil {
		return nil, err
	}

	alias := cfg.signAlias
	if alias == "" {
		aliases := ks.Aliases()
		if len(aliases) == 0 {
			return nil, ferrors.New(ferrors.ErrKeystoreNotFound, "keystore has no entries")
		}
		alias = aliases[0]
	}

	return ks.Unlock(alias, cfg.signPassword)
}
