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

// Package unpacker is the unpack scheduler: a fixed-size worker pool
// drives an atomic cursor over the reader's parsed entry list, deferring
// symlinks and directories to a post-pass. Grounded in shape on
// soong_zip.go's worker-count flag and on original_source's zip2zip/funzip
// extraction behavior for the smart-root destination policy.
package unpacker

import (
	"path"
	"strings"

	"github.com/sasq64/fastzip/zipfmt"
)

// SmartRoot implements the "Destination policy": if every entry
// shares a common top-level path component, the archive already contains
// its own root and dest is returned empty; otherwise base (sans extension)
// becomes the destination root. A non-empty result always ends in "/".
func SmartRoot(archivePath string, entries []zipfmt.IndexEntry) string {
	if len(entries) < 2 {
		return ensureTrailingSlash(baseWithoutExt(archivePath))
	}

	common, ok := commonTopComponent(entries)
	if ok && common != "" {
		return ""
	}
	return ensureTrailingSlash(baseWithoutExt(archivePath))
}

func commonTopComponent(entries []zipfmt.IndexEntry) (string, bool) {
	var top string
	for i, e := range entries {
		name := strings.TrimPrefix(e.Name, "/")
		idx := strings.IndexByte(name, '/')
		if idx < 0 {
			return "", false
		}
		comp := name[:idx]
		if i == 0 {
			top = comp
		} else if comp != top {
			return "", false
		}
	}
	return top, true
}

func baseWithoutExt(archivePath string) string {
	base := path.Base(archivePath)
	return strings.TrimSuffix(base, path.Ext(base))
}

func ensureTrailingSlash(dir string) string {
	if dir == "" {
		return ""
	}
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}
