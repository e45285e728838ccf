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

package packer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"runtime"
	"sync"

	"github.com/sasq64/fastzip/packjob"
	"github.com/sasq64/fastzip/report"
	"github.com/sasq64/fastzip/zipfmt"
)

// WorkerCount resolves the "-t N" flag: 0 or negative means hardware
// concurrency.
func WorkerCount(requested int) int {
	if requested > 0 {
		return requested
	}
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// Scheduler is the pack scheduler. One mutex M guards the FIFO
// position, the writer, the digest buffer and the commit counter; one
// condition variable O enforces ordered commits.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	jobs      []FileJob
	next      int
	committed int

	ordered bool
	signing bool

	writer *zipfmt.Writer
	digest bytes.Buffer

	rep report.Reporter
	err error

	onEntry func(name string)
}

// New builds a scheduler over jobs, committing through writer. ordered
// selects whether commits must happen in job order; signing gates the
// META-INF skip predicate and digest-buffer accumulation.
func New(jobs []FileJob, writer *zipfmt.Writer, ordered, signing bool, rep report.Reporter) *Scheduler {
	s := &Scheduler{
		jobs:    jobs,
		ordered: ordered,
		signing: signing,
		writer:  writer,
		rep:     rep,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// OnEntry registers a callback invoked, while the scheduler's mutex is
// held, each time an entry has been committed to the writer successfully -
// used by cmd/fastzip for "-v" and the mpb progress bar. Skipped or failed
// entries do not trigger it.
func (s *Scheduler) OnEntry(fn func(name string)) { s.onEntry = fn }

// DigestBuffer returns the accumulated per-entry SHA-1 digest lines
// assembled during packing, ready to feed the JAR signature block.
func (s *Scheduler) DigestBuffer() []byte { return s.digest.Bytes() }

// Run spawns workerCount goroutines draining the job FIFO and blocks until
// all have exited, returning the first error observed by any worker.
func (s *Scheduler) Run(workerCount int) error {
	var wg sync.WaitGroup
	n := WorkerCount(workerCount)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.worker()
		}()
	}
	wg.Wait()
	return s.err
}

// worker implements the pop-process-commit loop: pop under M, process
// outside M, rendezvous under M again for the ordered commit.
func (s *Scheduler) worker() {
	for {
		s.mu.Lock()
		if s.next >= len(s.jobs) {
			s.mu.Unlock()
			return
		}
		idx := s.next
		job := s.jobs[idx]
		s.next++
		s.mu.Unlock()

		entry, digestLine, skipMsg, procErr := s.process(&job)

		s.mu.Lock()
		if s.ordered {
			for idx != s.committed {
				s.cond.Wait()
			}
		}

		switch {
		case procErr != nil:
			s.rep.Warnf("%s: %v", job.ArchiveName, procErr)
		case skipMsg != "":
			s.rep.Warnf("%s: %s", job.ArchiveName, skipMsg)
		default:
			if s.signing && digestLine != "" {
				s.digest.WriteString(digestLine)
			}
			if werr := s.writer.Add(entry); werr != nil && s.err == nil {
				s.err = werr
			} else if s.onEntry != nil {
				s.onEntry(job.ArchiveName)
			}
		}

		s.committed++
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// process runs entirely outside M: skip-predicate check, open, read,
// pack. Exactly one of (entry,digestLine,"",nil), (nil,"",skip-reason,nil)
// or (nil,"","",err) is returned; digestLine is empty unless signing.
func (s *Scheduler) process(job *FileJob) (entry *zipfmt.Entry, digestLine string, skipMsg string, err error) {
	if reason := job.skipReason(s.signing); reason != "" {
		return nil, "", reason, nil
	}

	src, size, input, origCRC, origUncSize, operr := job.open()
	if operr != nil {
		return nil, "", "", fmt.Errorf("unreadable: %w", operr)
	}
	defer src.Close()

	req := packjob.Request{
		Source:                   src,
		Size:                     size,
		Input:                    input,
		Output:                   job.Format,
		EarlyOut:                 job.EarlyOut,
		WantDigest:               job.WantDigest && s.signing,
		OriginalCRC32:            origCRC,
		OriginalUncompressedSize: origUncSize,
		Name:                     job.ArchiveName,
	}

	res, perr := packjob.Pack(req)
	if perr != nil {
		return nil, "", "", perr
	}
	for _, w := range res.Warnings {
		s.rep.Warn(w)
	}

	res.Entry.Modified = job.Modified
	res.Entry.Mode = job.Mode
	res.Entry.UID = job.UID
	res.Entry.GID = job.GID

	if req.WantDigest && res.Digest != nil {
		digestLine = fmt.Sprintf("Name: %s\r\nSHA1-Digest: %s\r\n\r\n",
			job.ArchiveName, base64.StdEncoding.EncodeToString(res.Digest))
	}

	return res.Entry, digestLine, "", nil
}
