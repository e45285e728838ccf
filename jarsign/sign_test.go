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

package jarsign_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sasq64/fastzip/jarsign"
	"github.com/sasq64/fastzip/keystore"
	"github.com/sasq64/fastzip/zipfmt"
)

var _ = Describe("Sign", func() {
	It("appends MANIFEST.MF, CERT.SF and CERT.RSA as the final STORE entries, in order", func() {
		key, err := rsa.GenerateKey(rand.Reader, 1024)
		Expect(err).NotTo(HaveOccurred())
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(7),
			Subject:      pkix.Name{CommonName: "signer"},
			NotBefore:    time.Unix(0, 0),
			NotAfter:     time.Unix(0, 0).AddDate(10, 0, 0),
		}
		certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		Expect(err).NotTo(HaveOccurred())

		unlocked := &keystore.Unlocked{
			PrivateKeyDER:  x509.MarshalPKCS1PrivateKey(key),
			CertificateDER: certDER,
		}

		dir := GinkgoT().TempDir()
		archivePath := filepath.Join(dir, "signed.zip")
		w, err := zipfmt.New(archivePath, 4, 64)
		Expect(err).NotTo(HaveOccurred())

		digestBuffer := []byte("Name: a.txt\r\nSHA1-Digest: AAAAAAAAAAAAAAAAAAAAAAAAAAA=\r\n\r\n")
		Expect(jarsign.Sign(w, digestBuffer, unlocked)).To(Succeed())
		Expect(w.Close()).To(Succeed())

		r, err := zipfmt.Open(archivePath)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		Expect(r.Entries).To(HaveLen(3))
		Expect(r.Entries[0].Name).To(Equal("META-INF/MANIFEST.MF"))
		Expect(r.Entries[1].Name).To(Equal("META-INF/CERT.SF"))
		Expect(r.Entries[2].Name).To(Equal("META-INF/CERT.RSA"))
		for _, e := range r.Entries {
			Expect(e.Method).To(BeEquivalentTo(zipfmt.MethodStore))
		}
	})
})
