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

package jarsign

import (
	"hash/crc32"
	"time"

	"github.com/sasq64/fastzip/keystore"
	"github.com/sasq64/fastzip/zipfmt"
)

// Sign builds the three JAR signature artifacts from digestBuffer (the
// per-entry SHA1-Digest lines assembled while packing) and commits them
// through w as STORE entries, in order, as the last entries of the archive.
func Sign(w *zipfmt.Writer, digestBuffer []byte, unlocked *keystore.Unlocked) error {
	now := time.Now().Unix()

	manifest := BuildManifest(digestBuffer)
	if err := w.Write("META-INF/MANIFEST.MF", manifest, crc32.ChecksumIEEE(manifest), now); err != nil {
		return err
	}

	certSF, err := BuildSignatureFile(manifest)
	if err != nil {
		return err
	}
	if err := w.Write("META-INF/CERT.SF", certSF, crc32.ChecksumIEEE(certSF), now); err != nil {
		return err
	}

	certRSA, err := BuildCertRSA(certSF, unlocked.PrivateKeyDER, unlocked.CertificateDER)
	if err != nil {
		return err
	}
	return w.Write("META-INF/CERT.RSA", certRSA, crc32.ChecksumIEEE(certRSA), now)
}
