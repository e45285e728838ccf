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

// Package asn1der is a small DER codec: two verbs, read a tagged tree
// and write one. Reading rides on
// github.com/go-asn1-ber/asn1-ber (an indirect dependency via go-ldap,
// promoted to direct here) for tag/length parsing and the recursive
// descent into constructed values; writing is hand-rolled since the
// nested-sequence shapes and the unsigned-64-bit INTEGER encoding needed
// here are narrower than the library's general-purpose Encode helper.
package asn1der

import (
	"bytes"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Tag values actually encountered walking a certificate chain.
const (
	TagInteger     = 0x02
	TagOctetString = 0x04
	TagNull        = 0x05
	TagOID         = 0x06
	TagSequence    = 0x30
	TagSet         = 0x31
	constructedMin = 0x30
)

// Node is the parsed tree shape: a tag, its class, raw content bytes
// (for primitives) and children (for constructed values).
type Node struct {
	Tag      byte
	Class    ber.Class
	Raw      []byte
	Children []*Node
}

// IsConstructed reports whether n's tag is a constructed type (tag >= 0x30
// in the subset this codec handles).
func (n *Node) IsConstructed() bool { return n.Tag >= constructedMin || len(n.Children) > 0 }

// Uint64 interprets an INTEGER node's content as big-endian unsigned.
func (n *Node) Uint64() uint64 {
	var v uint64
	for _, b := range n.Raw {
		v = v<<8 | uint64(b)
	}
	return v
}

// Bytes returns a primitive node's raw content (OCTET STRING, BIT STRING
// payload after the unused-bits byte, etc).
func (n *Node) Bytes() []byte { return n.Raw }

// Child returns n's i'th child, or nil if out of range.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// FirstChildWithTag returns the first direct child carrying tag, or nil.
func (n *Node) FirstChildWithTag(tag byte) *Node {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FirstChildConstructedWithFirstTag returns the first constructed child
// whose own first child carries firstTag - used to find "the issuer block"
// (a SEQUENCE whose first child is a SET).
func (n *Node) FirstChildConstructedWithFirstTag(firstTag byte) *Node {
	for _, c := range n.Children {
		if c.IsConstructed() && len(c.Children) > 0 && c.Children[0].Tag == firstTag {
			return c
		}
	}
	return nil
}

// ReadTree decodes data into a Node tree, using asn1-ber for tag/length
// parsing and recursing into every constructed value.
func ReadTree(data []byte) (*Node, error) {
	p := ber.DecodePacket(data)
	if p == nil {
		return nil, fmt.Errorf("asn1der: failed to decode DER")
	}
	return fromPacket(p), nil
}

func fromPacket(p *ber.Packet) *Node {
	// asn1-ber splits the identifier octet into class, constructed flag
	// and tag number; recombine them so Tag holds the full DER byte
	// (0x30 for SEQUENCE, 0x31 for SET, 0xA0 for [0]).
	n := &Node{Tag: byte(p.ClassType) | byte(p.TagType) | byte(p.Tag), Class: p.ClassType}
	if p.Data != nil {
		n.Raw = p.Data.Bytes()
	} else if p.ByteValue != nil {
		n.Raw = p.ByteValue
	}
	for _, c := range p.Children {
		n.Children = append(n.Children, fromPacket(c))
	}
	return n
}

// --- Writing ---

// Integer builds an INTEGER node from an unsigned 64-bit value, big-endian
// minimum-length, with a leading zero byte inserted when the high bit of
// the minimal encoding would otherwise read as negative (DER rule).
func Integer(v uint64) *Node {
	var raw []byte
	if v == 0 {
		raw = []byte{0}
	} else {
		for v > 0 {
			raw = append([]byte{byte(v)}, raw...)
			v >>= 8
		}
		if raw[0]&0x80 != 0 {
			raw = append([]byte{0}, raw...)
		}
	}
	return &Node{Tag: TagInteger, Raw: raw}
}

// OctetString builds an OCTET STRING node wrapping b verbatim.
func OctetString(b []byte) *Node { return &Node{Tag: TagOctetString, Raw: b} }

// Null builds a NULL node (used as the parameters field of an algorithm
// identifier).
func Null() *Node { return &Node{Tag: TagNull} }

// OID builds an OBJECT IDENTIFIER node from a dotted string, e.g.
// "1.2.840.113549.1.7.2" (PKCS#7 SignedData).
func OID(dotted string) *Node {
	return &Node{Tag: TagOID, Raw: encodeOID(dotted)}
}

// Raw wraps an already-encoded primitive value verbatim under tag, for
// content this codec doesn't otherwise need to interpret (e.g. a
// certificate blob re-embedded byte for byte).
func Raw(tag byte, content []byte) *Node { return &Node{Tag: tag, Raw: content} }

// MkSEQ builds a constructed node under tag (SEQUENCE 0x30, SET 0x31, or a
// context-specific constructed tag such as 0xA0) wrapping children in
// order.
func MkSEQ(tag byte, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

// Encode serializes n to DER bytes: short-form length for < 0x80, long
// form 0x81 ll / 0x82 hh ll otherwise.
func Encode(n *Node) []byte {
	var buf bytes.Buffer
	writeNode(&buf, n)
	return buf.Bytes()
}

// ContentBytes returns n's encoded content without its own tag/length
// header - the concatenation of its children's encodings for a constructed
// node, or its raw bytes for a primitive one. Used to re-wrap an already
// parsed subtree (e.g. a certificate's issuer Name) under a fresh tag
// without re-encoding its children from scratch.
func ContentBytes(n *Node) []byte {
	if len(n.Children) == 0 {
		return n.Raw
	}
	var buf bytes.Buffer
	for _, c := range n.Children {
		writeNode(&buf, c)
	}
	return buf.Bytes()
}

func writeNode(buf *bytes.Buffer, n *Node) {
	var content []byte
	if len(n.Children) > 0 {
		var cbuf bytes.Buffer
		for _, c := range n.Children {
			writeNode(&cbuf, c)
		}
		content = cbuf.Bytes()
	} else {
		content = n.Raw
	}

	buf.WriteByte(n.Tag)
	writeLength(buf, len(content))
	buf.Write(content)
}

func writeLength(buf *bytes.Buffer, l int) {
	switch {
	case l < 0x80:
		buf.WriteByte(byte(l))
	case l <= 0xFF:
		buf.WriteByte(0x81)
		buf.WriteByte(byte(l))
	default:
		buf.WriteByte(0x82)
		buf.WriteByte(byte(l >> 8))
		buf.WriteByte(byte(l))
	}
}

// encodeOID encodes a dotted-decimal OID string per X.690 §8.19: the first
// two arcs are combined as 40*arc0+arc1, remaining arcs each base-128
// encoded with the high bit set on all but the last byte of each arc.
func encodeOID(dotted string) []byte {
	arcs := splitOID(dotted)
	if len(arcs) < 2 {
		return nil
	}
	var out []byte
	out = appendBase128(out, arcs[0]*40+arcs[1])
	for _, a := range arcs[2:] {
		out = appendBase128(out, a)
	}
	return out
}

func splitOID(dotted string) []int {
	var arcs []int
	cur := 0
	has := false
	for _, r := range dotted {
		if r == '.' {
			arcs = append(arcs, cur)
			cur, has = 0, false
			continue
		}
		cur = cur*10 + int(r-'0')
		has = true
	}
	if has {
		arcs = append(arcs, cur)
	}
	return arcs
}

func appendBase128(out []byte, v int) []byte {
	if v == 0 {
		return append(out, 0)
	}
	var stack []byte
	for v > 0 {
		stack = append(stack, byte(v&0x7F))
		v >>= 7
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b := stack[i]
		if i != 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
