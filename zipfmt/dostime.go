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

package zipfmt

import "time"

// unixToDos packs a Unix timestamp into MS-DOS date/time words:
// date bits 15-9 year-since-1980, 8-5 month, 4-0 day; time bits 15-11 hour,
// 10-5 minute, 4-0 second/2. Resolution is 2 seconds.
func unixToDos(sec int64) (dosTime uint16, dosDate uint16) {
	t := time.Unix(sec, 0).UTC()

	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	if year > 127 {
		year = 127
	}

	dosDate = uint16(year<<9 | int(t.Month())<<5 | t.Day())
	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return
}

// dosToUnix is the inverse of unixToDos.
func dosToUnix(dosTime, dosDate uint16) int64 {
	year := 1980 + int(dosDate>>9)
	month := int((dosDate >> 5) & 0xF)
	day := int(dosDate & 0x1F)

	hour := int(dosTime >> 11)
	minute := int((dosTime >> 5) & 0x3F)
	second := int(dosTime&0x1F) * 2

	if month < 1 {
		month = 1
	}
	if day < 1 {
		day = 1
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC).Unix()
}
