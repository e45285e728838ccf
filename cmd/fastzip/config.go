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
)

// config holds every flag from's synopsis plus SPEC_FULL.md's
// "-q"/"--quiet" and "-o FILE" additions.
type config struct {
	archive string
	paths   []string

	list       bool
	stripPaths bool
	workers    int
	verbose    bool
	quiet      bool
	destDir    string
	force      bool
	level      int // -1 = DEFLATE_DEFAULT sentinel, 0 = store, 1-9 = deflate level
	levelSet   bool
	sequential bool
	align      bool
	storeExts  map[string]bool
	fromZip    string
	earlyOut   int
	force64    bool
	output     string

	sign         bool
	signKeystore string
	signPassword string
	signAlias    string
	apk          bool
}

const defaultEarlyOut = 98

func defaultConfig() *config {
	return &config{
		workers:   0,
		level:     -1,
		earlyOut:  defaultEarlyOut,
		storeExts: map[string]bool{},
	}
}

// applyAPK implements "--apk": sign with $HOME/.android/debug.keystore,
// password "android", align, and a conventional Android STORE-ext list.
func (c *config) applyAPK() {
	c.apk = true
	c.sign = true
	if c.signKeystore == "" {
		home, _ := os.UserHomeDir()
		c.signKeystore = filepath.Join(home, ".android", "debug.keystore")
	}
	if c.signPassword == "" {
		c.signPassword = "android"
	}
	if c.signAlias == "" {
		c.signAlias = "androiddebugkey"
	}
	c.align = true
	for _, ext := range []string{"png", "jpg", "jpeg", "gif", "wav", "mp2", "mp3", "ogg", "aac", "mpg", "mpeg", "mid", "midi", "smf", "jet", "rtttl", "imy", "xmf", "mp4", "m4a", "m4v", "3gp", "3gpp", "3g2", "3gpp2", "amr", "awb", "wma", "wmv", "webm", "mkv"} {
		c.storeExts[ext] = true
	}
}

// parseExtList parses the comma-separated "-X ext,..." flag.
func parseExtList(csv string) map[string]bool {
	out := map[string]bool{}
	for _, e := range strings.Split(csv, ",") {
		e = strings.TrimSpace(strings.TrimPrefix(e, "."))
		if e != "" {
			out[e] = true
		}
	}
	return out
}
