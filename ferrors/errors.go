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

// Package ferrors provides fastzip's fixed error-code taxonomy.
//
// It is a narrowed reimplementation of a familiar errors-package shape:
// a numeric Code, a message table, and parent chaining through Add,
// without an open per-package registry or return-mode switch - fastzip
// has one small, closed set of error kinds.
package ferrors

import (
	"fmt"
	"strings"
)

// Code identifies one of fastzip's error kinds.
type Code uint16

const (
	Unknown Code = iota
	ErrConfig
	ErrReadFailed
	ErrCompressionFailed
	ErrArchiveMalformed
	ErrOutputUnwritable
	ErrKeystoreNotFound
	ErrKeyDecryptionFailed
	ErrCertMetaExtraction
	ErrRSASignFailed
)

var messages = map[Code]string{
	Unknown:                "unknown error",
	ErrConfig:               "configuration error",
	ErrReadFailed:           "source read failed",
	ErrCompressionFailed:    "compression failed",
	ErrArchiveMalformed:     "archive malformed",
	ErrOutputUnwritable:     "output unwritable",
	ErrKeystoreNotFound:     "keystore not found",
	ErrKeyDecryptionFailed:  "key decryption failed",
	ErrCertMetaExtraction:   "certificate metadata extraction failed",
	ErrRSASignFailed:        "rsa sign failed",
}

// String returns the human-readable message registered for c.
func (c Code) String() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[Unknown]
}

// Error is fastzip's typed error: a Code plus a wrapped cause and, for
// per-entry failures, the archive name the error applies to.
type Error struct {
	code   Code
	entry  string
	cause  error
	parent []error
}

// New builds an Error for code with an optional formatted detail message.
func New(code Code, format string, args ...interface{}) *Error {
	e := &Error{code: code}
	if format != "" {
		e.cause = fmt.Errorf(format, args...)
	}
	return e
}

// Wrap attaches code to an existing error, keeping the original as the cause.
func Wrap(code Code, cause error) *Error {
	return &Error{code: code, cause: cause}
}

// WithEntry records which archive entry this error applies to.
func (e *Error) WithEntry(name string) *Error {
	e.entry = name
	return e
}

// Code returns the error's taxonomy code.
func (e *Error) Code() Code {
	if e == nil {
		return Unknown
	}
	return e.code
}

// Add appends additional causes to this error without discarding any
// already recorded - used when a fatal error needs to report several
// underlying failures (e.g. several entries failed before a fatal abort).
func (e *Error) Add(parents ...error) {
	for _, p := range parents {
		if p != nil {
			e.parent = append(e.parent, p)
		}
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.code.String())

	if e.entry != "" {
		b.WriteString(" [")
		b.WriteString(e.entry)
		b.WriteString("]")
	}

	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}

	for _, p := range e.parent {
		b.WriteString("; ")
		b.WriteString(p.Error())
	}

	return b.String()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err is a *Error carrying code.
func IsCode(err error, code Code) bool {
	var fe *Error
	if e, ok := err.(*Error); ok {
		fe = e
	} else {
		return false
	}
	return fe.Code() == code
}
