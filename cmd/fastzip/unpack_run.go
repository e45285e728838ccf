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
	"fmt"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/sasq64/fastzip/ferrors"
	"github.com/sasq64/fastzip/report"
	"github.com/sasq64/fastzip/unpacker"
	"github.com/sasq64/fastzip/zipfmt"
)

// runUnpackList implements "-l": open the archive, print its contents, exit.
func runUnpackList(cfg *config) error {
	r, err := zipfmt.Open(cfg.archive)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrArchiveMalformed, err)
	}
	defer r.Close()

	for _, e := range r.Entries {
		fmt.Printf("%12d  %s  %s\n", e.UncompressedSize, time.Unix(e.Modified, 0).Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}

// runUnpack extracts cfg.archive into cfg.destDir (or the smart-root
// default), spreading work over the unpack scheduler.
func runUnpack(cfg *config, rep report.Reporter) error {
	r, err := zipfmt.Open(cfg.archive)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrArchiveMalformed, err)
	}
	defer r.Close()

	dest := cfg.destDir
	if dest == "" {
		dest = unpacker.SmartRoot(cfg.archive, r.Entries)
	}
	if dest != "" {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return ferrors.Wrap(ferrors.ErrOutputUnwritable, err)
		}
	}

	sched := unpacker.New(r, dest, cfg.stripPaths, rep)

	var bar *mpb.Bar
	var progress *mpb.Progress
	if !cfg.quiet && !cfg.verbose {
		progress = mpb.New(mpb.WithWidth(40))
		bar = progress.AddBar(int64(len(r.Entries)),
			mpb.PrependDecorators(decor.Name("extracting")),
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

	err = sched.Run(unpacker.WorkerCount(cfg.workers))
	if progress != nil {
		progress.Wait()
	}
	return err
}
