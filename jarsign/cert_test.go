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
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sasq64/fastzip/asn1der"
)

// selfSignedCert builds a throwaway RSA key and a self-signed certificate
// for it, mirroring what a real keystore.Unlock would hand BuildCertRSA.
func selfSignedCert() (*rsa.PrivateKey, []byte) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(424242),
		Subject:      pkix.Name{CommonName: "fastzip-test"},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Unix(0, 0).AddDate(30, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())
	return key, der
}

var _ = Describe("extractIssuerAndSerial", func() {
	It("recovers the issuer RDN content and serial number from a real certificate", func() {
		_, certDER := selfSignedCert()
		cert, err := x509.ParseCertificate(certDER)
		Expect(err).NotTo(HaveOccurred())

		serial, issuerContent, err := extractIssuerAndSerial(certDER)
		Expect(err).NotTo(HaveOccurred())
		Expect(serial).To(Equal(cert.SerialNumber.Uint64()))

		issuerTree, err := asn1der.ReadTree(cert.RawIssuer)
		Expect(err).NotTo(HaveOccurred())
		Expect(issuerContent).To(Equal(asn1der.ContentBytes(issuerTree)))
	})

	It("errors on malformed certificate DER", func() {
		_, _, err := extractIssuerAndSerial([]byte("not a certificate"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("BuildCertRSA", func() {
	It("produces a PKCS#7 SignedData blob whose embedded signature verifies under the signer's public key", func() {
		key, certDER := selfSignedCert()
		keyDER := x509.MarshalPKCS1PrivateKey(key)

		certSF := []byte("Signature-Version: 1.0\r\nSHA1-Digest-Manifest: deadbeef\r\n\r\n")

		out, err := BuildCertRSA(certSF, keyDER, certDER)
		Expect(err).NotTo(HaveOccurred())

		tree, err := asn1der.ReadTree(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.Tag).To(BeEquivalentTo(asn1der.TagSequence))

		// ContentInfo ::= SEQUENCE { contentType OID, content [0] EXPLICIT SignedData }
		Expect(tree.Child(0).Bytes()).To(Equal(asn1der.OID(oidPKCS7SignedData).Bytes()))
		signedData := tree.Child(1).Child(0)

		// SignedData ::= SEQUENCE { version, digestAlgorithms SET,
		//                           contentInfo, certificates [0],
		//                           signerInfos SET }
		signerInfos := signedData.Child(4)
		Expect(signerInfos.Children).To(HaveLen(1))
		signerInfo := signerInfos.Child(0)

		// SignerInfo's last child is the OCTET STRING holding the raw
		// PKCS#1 v1.5 RSA signature over certSF's SHA-1 digest.
		last := signerInfo.Children[len(signerInfo.Children)-1]
		signature := last.Bytes()

		digest := sha1.Sum(certSF)
		err = rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA1, digest[:], signature)
		Expect(err).NotTo(HaveOccurred())
	})

	It("embeds the signer's certificate verbatim", func() {
		key, certDER := selfSignedCert()
		keyDER := x509.MarshalPKCS1PrivateKey(key)
		certSF := []byte("Signature-Version: 1.0\r\n\r\n")

		out, err := BuildCertRSA(certSF, keyDER, certDER)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(string(certDER)))
	})
})
