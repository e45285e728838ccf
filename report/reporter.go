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

// Package report provides fastzip's injectable warning/error sink.
//
// Grounded on a familiar logger package shape: a small interface carried
// by value through the call stack, level-gated methods, a logrus backend.
// Narrowed to the surface this CLI actually needs (Warn/Error/Info);
// see DESIGN.md for the hooks deliberately not reproduced.
package report

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Reporter is the sink every component logs warnings and errors through.
// Implementations must be safe for concurrent use: pack/unpack workers
// call it from multiple goroutines with no external synchronization.
type Reporter interface {
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
}

type stderrReporter struct {
	mu     sync.Mutex
	log    *logrus.Logger
	quiet  bool
	colors bool
}

// New returns the default Reporter: stderr, "**Warn:"/"**Error:" prefixes,
// colorized when w is a terminal. quiet suppresses Info output.
func New(w io.Writer, quiet bool) Reporter {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&prefixFormatter{})

	colors := false
	if f, ok := w.(*os.File); ok {
		colors = term.IsTerminal(int(f.Fd()))
	}

	return &stderrReporter{log: l, quiet: quiet, colors: colors}
}

func (r *stderrReporter) paint(prefix string, bold bool) string {
	if !r.colors {
		return prefix
	}
	c := color.New(color.FgYellow)
	if bold {
		c = color.New(color.FgRed, color.Bold)
	}
	return c.Sprint(prefix)
}

func (r *stderrReporter) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Warn(r.paint("**Warn: ", false) + msg)
}

func (r *stderrReporter) Warnf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Warnf(r.paint("**Warn: ", false)+format, args...)
}

func (r *stderrReporter) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Error(r.paint("**Error: ", true) + msg)
}

func (r *stderrReporter) Errorf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Errorf(r.paint("**Error: ", true)+format, args...)
}

func (r *stderrReporter) Info(msg string) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Info(msg)
}

func (r *stderrReporter) Infof(format string, args ...interface{}) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Infof(format, args...)
}

// prefixFormatter renders the bare message only: the "**Warn:"/"**Error:"
// prefix is already embedded in the message by stderrReporter so the
// level name logrus would otherwise prepend never appears.
type prefixFormatter struct{}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return []byte(e.Message + "\n"), nil
}

// Discard is a Reporter that drops everything - used by tests and library
// callers that have no stream of their own to write to.
func Discard() Reporter {
	return New(io.Discard, true)
}
