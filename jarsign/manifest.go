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

// Package jarsign is the signer: builds MANIFEST.MF, CERT.SF and a
// DER-encoded PKCS#7 CERT.RSA from the per-entry SHA-1 digest buffer
// assembled during packing, and injects them as three
// additional STORE entries through the archive writer. Grounded verbatim
// on original_source/src/sign.cpp's string construction and nested ASN.1
// shape, and on apk-editor's editor/signv2 package for how a Go signer
// splits manifest/signature-file/block construction into separate steps.
package jarsign

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"github.com/sasq64/fastzip/ferrors"
)

const manifestHeader = "Manifest-Version: 1.0\r\nCreated-By: 1.0 (Fastzip)\r\n\r\n"
const signatureHeaderFmt = "Signature-Version: 1.0\r\nCreated-By: 1.0 (Fastzip)\r\nSHA1-Digest-Manifest: %s\r\n\r\n"

// BuildManifest prepends the fixed manifest header to the accumulated
// per-entry digest lines.
func BuildManifest(digestBuffer []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(manifestHeader)
	buf.Write(digestBuffer)
	return buf.Bytes()
}

// BuildSignatureFile rewrites each manifest section's digest to cover that
// section (including its trailing blank line) and prepends the
// signature-file header naming the whole manifest's digest.
func BuildSignatureFile(manifest []byte) ([]byte, error) {
	manifestSha := sha1.Sum(manifest)

	sections, err := splitSections(manifest)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCertMetaExtraction, err)
	}

	var body bytes.Buffer
	for _, section := range sections {
		sha := sha1.Sum(section)
		rewritten, err := rewriteDigestLine(section, sha[:])
		if err != nil {
			return nil, ferrors.Wrap(ferrors.ErrCertMetaExtraction, err)
		}
		body.Write(rewritten)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, signatureHeaderFmt, base64.StdEncoding.EncodeToString(manifestSha[:]))
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// splitSections splits manifest (header included) into chunks each ending
// at the first "\r\n\r\n" following their own "Name:" line - skipping the
// fixed Manifest-Version header itself, which has no SHA1-Digest line.
func splitSections(manifest []byte) ([][]byte, error) {
	const sep = "\r\n\r\n"
	var sections [][]byte

	rest := manifest
	// Skip the fixed header's own section.
	if idx := bytes.Index(rest, []byte(sep)); idx >= 0 {
		rest = rest[idx+len(sep):]
	}

	for len(rest) > 0 {
		idx := bytes.Index(rest, []byte(sep))
		if idx < 0 {
			return nil, fmt.Errorf("jarsign: manifest section missing terminating blank line")
		}
		sections = append(sections, rest[:idx+len(sep)])
		rest = rest[idx+len(sep):]
	}
	return sections, nil
}

// rewriteDigestLine replaces the base64 value on a section's
// "SHA1-Digest: ..." line with base64(sha) in place, preserving every
// other byte.
func rewriteDigestLine(section []byte, sha []byte) ([]byte, error) {
	const prefix = "SHA1-Digest: "
	idx := bytes.Index(section, []byte(prefix))
	if idx < 0 {
		return nil, fmt.Errorf("jarsign: section missing SHA1-Digest line")
	}
	valueStart := idx + len(prefix)
	valueEnd := bytes.IndexByte(section[valueStart:], '\r')
	if valueEnd < 0 {
		return nil, fmt.Errorf("jarsign: malformed SHA1-Digest line")
	}
	valueEnd += valueStart

	out := make([]byte, 0, len(section))
	out = append(out, section[:valueStart]...)
	out = append(out, []byte(base64.StdEncoding.EncodeToString(sha))...)
	out = append(out, section[valueEnd:]...)
	return out, nil
}
