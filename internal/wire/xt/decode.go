package xt

import (
	"fmt"

	"github.com/marmos91/rserved/internal/wire/byteorder"
)

// Decode parses buf as a single XT node and returns the decoded value plus
// the number of octets consumed (header word + attribute + body).
//
// Decoding is not exercised by the current command set (the server only
// ever encodes) but is kept for symmetry of the wire format:
// Decode(Encode(v)) == v up to the length-1 string-vector elision.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) < 4 {
		return Value{}, 0, fmt.Errorf("xt: buffer too short for node header (%d bytes)", len(buf))
	}
	word := byteorder.Int32(buf[:4])
	tagByte := byte(word & 0xff)
	length := int((word >> 8) & 0xffffff)

	bodyStart := 4
	bodyEnd := bodyStart + length
	if bodyEnd > len(buf) {
		return Value{}, 0, fmt.Errorf("xt: node body (%d bytes) overruns buffer (%d bytes)", length, len(buf)-bodyStart)
	}
	body := buf[bodyStart:bodyEnd]

	hasAttr := tagByte&byte(HasAttr) != 0
	tag := Tag(tagByte &^ byte(HasAttr))

	var attr *Value
	if hasAttr {
		a, n, err := Decode(body)
		if err != nil {
			return Value{}, 0, fmt.Errorf("xt: decoding attribute: %w", err)
		}
		attr = &a
		body = body[n:]
	}

	v, err := decodeBody(tag, body)
	if err != nil {
		return Value{}, 0, err
	}
	v.Attr = attr
	return v, bodyEnd, nil
}

func decodeBody(tag Tag, body []byte) (Value, error) {
	switch tag {
	case TagNull:
		return Null(), nil

	case TagLang:
		return Lang(), nil

	case TagDouble:
		if len(body) != 8 {
			return Value{}, fmt.Errorf("xt: DOUBLE body must be 8 bytes, got %d", len(body))
		}
		return Double(byteorder.Float64(body)), nil

	case TagArrayDouble:
		if len(body)%8 != 0 {
			return Value{}, fmt.Errorf("xt: ARRAY_DOUBLE body length %d not a multiple of 8", len(body))
		}
		vs := make([]float64, len(body)/8)
		for i := range vs {
			vs[i] = byteorder.Float64(body[i*8 : i*8+8])
		}
		return Value{Kind: KindDouble, Doubles: vs}, nil

	case TagBool:
		if len(body) != 1 {
			return Value{}, fmt.Errorf("xt: BOOL body must be 1 byte, got %d", len(body))
		}
		return Bool(decodeNABool(body[0])), nil

	case TagArrayBool:
		vs := make([]NABool, len(body))
		for i, b := range body {
			vs[i] = decodeNABool(b)
		}
		return Value{Kind: KindBool, Bools: vs}, nil

	case TagArrayInt:
		if len(body)%4 != 0 {
			return Value{}, fmt.Errorf("xt: ARRAY_INT body length %d not a multiple of 4", len(body))
		}
		vs := make([]int32, len(body)/4)
		for i := range vs {
			vs[i] = byteorder.Int32(body[i*4 : i*4+4])
		}
		return Value{Kind: KindInt, Ints: vs}, nil

	case TagStr:
		return Str(decodeNULString(body)), nil

	case TagArrayStr:
		// Not emitted by the encoder (string vectors use VECTOR of STR
		// children instead), but recognized for decode symmetry: a
		// sequence of NUL-terminated strings packed back to back.
		var strs []string
		off := 0
		for off < len(body) {
			end := off
			for end < len(body) && body[end] != 0 {
				end++
			}
			strs = append(strs, string(body[off:end]))
			off = end + 1
		}
		return Value{Kind: KindVector, Elems: strVals(strs)}, nil

	case TagVector:
		elems, err := decodeChildren(body)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindVector, Elems: elems}, nil

	case TagList:
		elems, err := decodeChildren(body)
		if err != nil {
			return Value{}, err
		}
		if len(elems) != 2 {
			return Value{}, fmt.Errorf("xt: LIST body decoded to %d children, want 2", len(elems))
		}
		return Cons(elems[0], elems[1]), nil

	case TagSym:
		name, n, err := Decode(body)
		if err != nil {
			return Value{}, fmt.Errorf("xt: decoding symbol print name: %w", err)
		}
		if n != len(body) || name.Kind != KindStr {
			return Value{}, fmt.Errorf("xt: SYM body is not exactly one character scalar")
		}
		return Symbol(name.Str), nil

	case TagUnknown:
		if len(body) != 4 {
			return Value{}, fmt.Errorf("xt: UNKNOWN body must be 4 bytes, got %d", len(body))
		}
		return Unknown(byteorder.Int32(body)), nil

	default:
		return Value{}, fmt.Errorf("xt: unrecognized tag %d", tag)
	}
}

// decodeNABool maps the wire encoding back to a three-valued logical,
// never silently collapsing "not available" (2) into true.
func decodeNABool(b byte) NABool {
	switch b {
	case 0:
		return BoolFalse
	case 1:
		return BoolTrue
	default:
		return BoolNA
	}
}

func decodeNULString(body []byte) string {
	for i, b := range body {
		if b == 0 {
			return string(body[:i])
		}
	}
	return string(body)
}

func decodeChildren(body []byte) ([]Value, error) {
	var elems []Value
	off := 0
	for off < len(body) {
		v, n, err := Decode(body[off:])
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
		off += n
	}
	return elems, nil
}

func strVals(strs []string) []Value {
	vals := make([]Value, len(strs))
	for i, s := range strs {
		vals[i] = Str(s)
	}
	return vals
}
