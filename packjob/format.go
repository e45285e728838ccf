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

// Package packjob is the compression worker: given one input entry it
// produces a packed zipfmt.Entry, stored or deflated, optionally with a
// SHA-1 digest. Grounded on the parallel block-compression shape of
// Android's soong_zip.go, with an early-out heuristic layered on top -
// soong_zip.go does not have one, but fastzip's own C++ predecessor does
// (original_source/src/infozip.cpp).
package packjob

// InputFormat describes the compression state of the source bytes.
type InputFormat int

const (
	Uncompressed InputFormat = iota
	Compressed
)

// OutputFormat selects how the worker should pack an entry.
type OutputFormat struct {
	Store   bool
	Fast    bool // FAST_DEFLATE: klauspost's stateless one-pass compressor
	Level   int  // 1-9, or -1 for DEFLATE_DEFAULT; ignored when Store or Fast
}

// FormatStore packs entries uncompressed.
var FormatStore = OutputFormat{Store: true}

// FormatFastDeflate uses the secondary, non-optimal speed-oriented compressor.
var FormatFastDeflate = OutputFormat{Fast: true}

// FormatDeflate builds a DEFLATE_N output format, level in [0,9] (0 == store,
// matching the CLI's -<digit> flag).
func FormatDeflate(level int) OutputFormat {
	if level <= 0 {
		return FormatStore
	}
	return OutputFormat{Level: level}
}

// FormatDeflateDefault is DEFLATE_DEFAULT (zlib's default heuristic level).
var FormatDeflateDefault = OutputFormat{Level: -1}
