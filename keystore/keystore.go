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

// Package keystore reads Java JKS keystores: magic/version/entry parsing
// and the proprietary iterated-SHA-1 keystream protected-key recovery
// algorithm, following the documented JKS binary layout, and a
// certificates package idiom for how a cert/key container's constructor
// and accessor methods are shaped.
package keystore

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/sasq64/fastzip/asn1der"
	"github.com/sasq64/fastzip/ferrors"
)

const magic = 0xFEEDFEED

// entry is one alias's raw record as stored in the JKS file.
type entry struct {
	alias       string
	timestamp   int64
	keyBlobDER  []byte
	certNames   []string
	certBlobs   [][]byte
}

// Keystore is a JKS file's parsed entry table. The private key and
// certificate for a given alias are recovered by Unlock, afresh on each
// call; nothing is cached.
type Keystore struct {
	entries map[string]entry
	order   []string
}

// Open parses the JKS container structure (not yet the protected key: that
// needs a password and happens in Unlock).
func Open(data []byte) (*Keystore, error) {
	b := cursor{data: data}

	if b.u32() != magic {
		return nil, ferrors.New(ferrors.ErrKeystoreNotFound, "not a JKS keystore (bad magic)")
	}
	_ = b.u32() // version
	count := b.u32()

	ks := &Keystore{entries: make(map[string]entry, count)}

	for i := uint32(0); i < count; i++ {
		tag := b.u32()
		if tag != 1 {
			return nil, ferrors.New(ferrors.ErrKeystoreNotFound, "unsupported JKS entry tag %d (only private-key entries supported)", tag)
		}
		alias := b.str16()
		ts := int64(b.u64())
		blobLen := b.u32()
		blob := b.bytes(int(blobLen))

		certCount := b.u32()
		names := make([]string, 0, certCount)
		blobs := make([][]byte, 0, certCount)
		for c := uint32(0); c < certCount; c++ {
			names = append(names, b.str16())
			clen := b.u32()
			blobs = append(blobs, b.bytes(int(clen)))
		}

		if b.err != nil {
			return nil, ferrors.Wrap(ferrors.ErrKeystoreNotFound, b.err)
		}

		ks.entries[alias] = entry{alias: alias, timestamp: ts, keyBlobDER: blob, certNames: names, certBlobs: blobs}
		ks.order = append(ks.order, alias)
	}

	return ks, nil
}

// Aliases lists the private-key entries found in the keystore, in file order.
func (ks *Keystore) Aliases() []string { return ks.order }

// Unlocked is a single alias's recovered material: the raw PKCS#1 RSA
// private key DER and the leaf certificate DER.
type Unlocked struct {
	PrivateKeyDER []byte
	CertificateDER []byte
	CertChain     [][]byte
}

// Unlock decrypts the named alias's protected key blob with password and
// returns the raw key plus certificate.
func (ks *Keystore) Unlock(alias, password string) (*Unlocked, error) {
	e, ok := ks.entries[alias]
	if !ok {
		return nil, ferrors.New(ferrors.ErrKeystoreNotFound, "no such alias %q", alias)
	}
	if len(e.certBlobs) == 0 {
		return nil, ferrors.New(ferrors.ErrCertMetaExtraction, "alias %q has no certificate", alias)
	}

	tree, err := asn1der.ReadTree(e.keyBlobDER)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrKeyDecryptionFailed, err).WithEntry(alias)
	}
	protected := findOctetString(tree)
	if protected == nil {
		return nil, ferrors.New(ferrors.ErrKeyDecryptionFailed, "%s: malformed protected key blob", alias)
	}

	plain, err := recoverKey(protected.Bytes(), password)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrKeyDecryptionFailed, err).WithEntry(alias)
	}

	keyTree, err := asn1der.ReadTree(plain)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrKeyDecryptionFailed, err).WithEntry(alias)
	}
	raw := findOctetString(keyTree)
	if raw == nil {
		return nil, ferrors.New(ferrors.ErrKeyDecryptionFailed, "%s: no PKCS#1 key found in decrypted blob", alias)
	}

	return &Unlocked{
		PrivateKeyDER:  raw.Bytes(),
		CertificateDER: e.certBlobs[0],
		CertChain:      e.certBlobs,
	}, nil
}

// findOctetString descends to the first OCTET STRING child anywhere in the
// tree.
func findOctetString(n *asn1der.Node) *asn1der.Node {
	if n == nil {
		return nil
	}
	if n.Tag == asn1der.TagOctetString {
		return n
	}
	for _, c := range n.Children {
		if found := findOctetString(c); found != nil {
			return found
		}
	}
	return nil
}

// recoverKey implements the iterated-SHA-1 keystream XOR algorithm
// JKS uses to protect a private key entry with its password.
func recoverKey(protected []byte, password string) ([]byte, error) {
	const saltLen = 20
	const checkLen = 20
	if len(protected) < saltLen+checkLen {
		return nil, fmt.Errorf("keystore: protected key blob too short")
	}

	salt := protected[:saltLen]
	encrypted := protected[saltLen : len(protected)-checkLen]
	checkDigest := protected[len(protected)-checkLen:]

	pw := utf16BE(password)

	stream := make([]byte, 0, len(encrypted))
	prev := append(append([]byte{}, pw...), salt...)
	for len(stream) < len(encrypted) {
		sum := sha1.Sum(prev)
		stream = append(stream, sum[:]...)
		prev = append(append([]byte{}, pw...), sum[:]...)
	}

	plainKey := make([]byte, len(encrypted))
	for i := range encrypted {
		plainKey[i] = encrypted[i] ^ stream[i]
	}

	verify := sha1.Sum(append(append([]byte{}, pw...), plainKey...))
	if !bytesEqual(verify[:], checkDigest) {
		return nil, fmt.Errorf("keystore: key decryption failed (wrong password)")
	}

	return plainKey, nil
}

func utf16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.BigEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cursor is a tiny big-endian reader over the JKS binary layout.
type cursor struct {
	data []byte
	pos  int
	err  error
}

func (c *cursor) need(n int) bool {
	if c.err != nil || c.pos+n > len(c.data) {
		if c.err == nil {
			c.err = fmt.Errorf("keystore: truncated file")
		}
		return false
	}
	return true
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) u64() uint64 {
	if !c.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v
}

// str16 reads a 16-bit big-endian length-prefixed string.
func (c *cursor) str16() string {
	if !c.need(2) {
		return ""
	}
	n := int(binary.BigEndian.Uint16(c.data[c.pos:]))
	c.pos += 2
	return string(c.bytes(n))
}
