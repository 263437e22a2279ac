package qap1

import (
	"fmt"

	"github.com/marmos91/rserved/internal/wire/byteorder"
)

// Data-type tags recognized on a typed parameter.
const (
	DTInt        = 1
	DTChar       = 2
	DTDouble     = 3
	DTString     = 4
	DTByteStream = 5
	DTSexp       = 10
	DTArray      = 11
)

// MaxParams bounds how many parameters a single payload's walk will
// recognize; additional parameters are silently ignored.
const MaxParams = 16

// Param is a materialized typed parameter: a tag plus a slice into the
// payload buffer. No copying is performed.
type Param struct {
	Tag  byte
	Body []byte
}

// AsString interprets Body as a NUL-terminated string parameter and
// returns its content without the terminator.
func (p Param) AsString() string {
	for i, b := range p.Body {
		if b == 0 {
			return string(p.Body[:i])
		}
	}
	return string(p.Body)
}

// AsInt32 interprets Body as a single wire-format Int32.
func (p Param) AsInt32() (int32, bool) {
	if len(p.Body) < 4 {
		return 0, false
	}
	return byteorder.Int32(p.Body[:4]), true
}

// WalkParams parses the typed-parameter list starting at offset dof within
// payload. It stops at the first all-zero Int32 word or at the payload end,
// whichever comes first, and recognizes at most MaxParams parameters.
func WalkParams(payload []byte, dof int32) ([]Param, error) {
	if dof < 0 || int(dof) > len(payload) {
		return nil, fmt.Errorf("qap1: dof %d out of range for payload of %d bytes", dof, len(payload))
	}

	var params []Param
	off := int(dof)
	for len(params) < MaxParams {
		if off+4 > len(payload) {
			break
		}
		word := byteorder.Int32(payload[off : off+4])
		if word == 0 {
			break
		}
		tag := byte(word & 0xff)
		length := int((word >> 8) & 0xffffff)
		bodyStart := off + 4
		bodyEnd := bodyStart + length
		if bodyEnd > len(payload) {
			return nil, fmt.Errorf("qap1: parameter body overruns payload (tag=%d len=%d)", tag, length)
		}
		params = append(params, Param{Tag: tag, Body: payload[bodyStart:bodyEnd]})
		off = bodyEnd
	}
	return params, nil
}

// EncodeParam appends a single typed parameter (header word + body) to dst
// and returns the extended slice.
func EncodeParam(dst []byte, tag byte, body []byte) []byte {
	header := make([]byte, 4)
	word := int32(tag) | (int32(len(body)) << 8)
	byteorder.PutInt32(header, word)
	dst = append(dst, header...)
	dst = append(dst, body...)
	return dst
}

// EncodeString encodes a NUL-terminated STRING parameter, padding the
// body to a multiple of 4 octets the way the reference client pads
// requests; padding beyond the terminator is filled with NUL.
func EncodeString(dst []byte, s string) []byte {
	body := []byte(s)
	body = append(body, 0)
	for len(body)%4 != 0 {
		body = append(body, 0)
	}
	return EncodeParam(dst, DTString, body)
}
