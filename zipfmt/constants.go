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

// Package zipfmt is fastzip's hand-rolled ZIP container codec: local file
// headers, the central directory, ZIP64 extensions, and the
// end-of-central-directory locator chain. It deliberately does not build
// on archive/zip - this package needs zero-copy buffer control, alignment
// padding, and a 64-bit CD image the stdlib package does not expose.
package zipfmt

const (
	sigLocalFile    = 0x04034b50
	sigDataDescr    = 0x08074b50
	sigCentralDir   = 0x02014b50
	sigEOCD         = 0x06054b50
	sigEOCD64       = 0x06064b50
	sigEOCD64Locator = 0x07064b50

	extraZip64 = 0x0001
	extraUnix3 = 0x7875 // Info-ZIP "UN\x03": uid/gid
	extraUnixTime = 0x5455

	versionNeededDefault = 20
	versionNeededZip64   = 45

	// Method is the on-disk ZIP compression method identifier.
	MethodStore   = 0
	MethodDeflate = 8

	mask32 = 0xFFFFFFFF

	localHeaderFixedLen = 30
	cdHeaderFixedLen    = 46
	eocdFixedLen        = 22
	eocd64FixedLen      = 56
	eocd64LocatorLen    = 20
)
