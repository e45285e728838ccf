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
	"bufio"
	"os"

	"github.com/sasq64/fastzip/ferrors"
	"github.com/sasq64/fastzip/report"
)

// dispatch picks pack vs extract, reads
// any piped stdin path list, and runs the chosen driver.
func dispatch(cfg *config) error {
	rep := report.New(os.Stderr, cfg.quiet)

	if cfg.list {
		return runUnpackList(cfg)
	}

	info, statErr := os.Stat(cfg.archive)
	isExistingZip := statErr == nil && !info.IsDir()
	isExistingDir := statErr == nil && info.IsDir()

	cfg.paths = append(cfg.paths, readStdinPaths()...)

	switch {
	case cfg.force, isExistingZip && len(cfg.paths) == 0:
		return runUnpack(cfg, rep)
	case isExistingDir || len(cfg.paths) > 0:
		return runPack(cfg, rep)
	case isExistingZip:
		return runUnpack(cfg, rep)
	default:
		return ferrors.New(ferrors.ErrConfig, "%q is neither an existing archive nor an existing directory, and no input paths were given", cfg.archive)
	}
}

// readStdinPaths consumes additional <paths> lines from stdin when it is
// not a TTY.
func readStdinPaths() []string {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil
	}

	var lines []string
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
