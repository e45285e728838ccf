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

	"github.com/sasq64/fastzip/asn1der"
	"github.com/sasq64/fastzip/ferrors"
)

// Object identifiers used by the PKCS#7 SignedData block.
const (
	oidPKCS7SignedData = "1.2.840.113549.1.7.2"
	oidPKCS7Data       = "1.2.840.113549.1.7.1"
	oidSHA1            = "1.3.14.3.2.26"
	oidRSAEncryption   = "1.2.840.113549.1.1.1"
)

// BuildCertRSA signs certSF with the RSA private key recovered from the
// keystore and assembles the PKCS#7 SignedData DER structure
// specifies (algorithm identifier, certificate, issuer/serial pair, RSA
// signature over SHA-1(certSF)).
func BuildCertRSA(certSF []byte, privateKeyDER []byte, certificateDER []byte) ([]byte, error) {
	key, err := x509.ParsePKCS1PrivateKey(privateKeyDER)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCertMetaExtraction, err)
	}

	serial, issuerContent, err := extractIssuerAndSerial(certificateDER)
	if err != nil {
		return nil, err
	}

	digest := sha1.Sum(certSF)

	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrRSASignFailed, err)
	}

	algSHA1 := asn1der.MkSEQ(asn1der.TagSequence, asn1der.OID(oidSHA1), asn1der.Null())
	algRSA := asn1der.MkSEQ(asn1der.TagSequence, asn1der.OID(oidRSAEncryption), asn1der.Null())

	issuerAndSerial := asn1der.MkSEQ(asn1der.TagSequence,
		asn1der.Raw(asn1der.TagSequence, issuerContent),
		asn1der.Integer(serial),
	)

	signerInfo := asn1der.MkSEQ(asn1der.TagSequence,
		asn1der.Integer(1),
		issuerAndSerial,
		algSHA1,
		algRSA,
		asn1der.Raw(asn1der.TagOctetString, signature),
	)

	signedData := asn1der.MkSEQ(asn1der.TagSequence,
		asn1der.Integer(1),
		asn1der.MkSEQ(asn1der.TagSet, algSHA1),
		asn1der.MkSEQ(asn1der.TagSequence, asn1der.OID(oidPKCS7Data)),
		asn1der.Raw(0xA0, certificateDER),
		asn1der.MkSEQ(asn1der.TagSet, signerInfo),
	)

	contentInfo := asn1der.MkSEQ(asn1der.TagSequence,
		asn1der.OID(oidPKCS7SignedData),
		asn1der.MkSEQ(0xA0, signedData),
	)

	return asn1der.Encode(contentInfo), nil
}

// extractIssuerAndSerial descends into the TBSCertificate SEQUENCE to pick
// the first INTEGER as the serial number, and the first sub-sequence whose
// first child is a SET as the issuer block.
func extractIssuerAndSerial(certificateDER []byte) (serial uint64, issuerContent []byte, err error) {
	cert, rerr := asn1der.ReadTree(certificateDER)
	if rerr != nil {
		return 0, nil, ferrors.Wrap(ferrors.ErrCertMetaExtraction, rerr)
	}
	tbs := cert.Child(0)
	if tbs == nil {
		return 0, nil, ferrors.New(ferrors.ErrCertMetaExtraction, "certificate missing TBSCertificate")
	}

	var serialNode, issuerNode *asn1der.Node
	for _, c := range tbs.Children {
		if c.Tag == asn1der.TagInteger && serialNode == nil {
			serialNode = c
		}
		if c.Tag == asn1der.TagSequence && len(c.Children) > 0 && c.Children[0].Tag == asn1der.TagSet && issuerNode == nil {
			issuerNode = c
		}
	}
	if serialNode == nil || issuerNode == nil {
		return 0, nil, ferrors.New(ferrors.ErrCertMetaExtraction, "could not extract certificate metadata from keystore")
	}

	return serialNode.Uint64(), asn1der.ContentBytes(issuerNode), nil
}
