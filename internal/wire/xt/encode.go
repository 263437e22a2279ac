package xt

import (
	"bytes"
	"fmt"

	"github.com/marmos91/rserved/internal/wire/byteorder"
)

// Encode serializes v into a contiguous byte buffer.
func Encode(v Value) []byte {
	buf := &bytes.Buffer{}
	writeNode(buf, v)
	return buf.Bytes()
}

// writeNode reserves one header word, writes the optional attribute node
// and then the value's body, and finally back-patches the header's length
// field to the octet count of everything written after it. The attribute
// node, if present, counts toward that length.
func writeNode(buf *bytes.Buffer, v Value) {
	headerOffset := buf.Len()
	buf.Write([]byte{0, 0, 0, 0})

	tag := kindTag(v)
	if v.Attr != nil {
		tag |= HasAttr
		writeNode(buf, *v.Attr)
	}
	writeValueBody(buf, v)

	length := int32(buf.Len() - headerOffset - 4)
	header := make([]byte, 4)
	byteorder.PutInt32(header, int32(tag)|(length<<8))
	copy(buf.Bytes()[headerOffset:headerOffset+4], header)
}

func kindTag(v Value) Tag {
	switch v.Kind {
	case KindNull:
		return TagNull
	case KindDouble:
		if len(v.Doubles) == 1 {
			return TagDouble
		}
		return TagArrayDouble
	case KindBool:
		if len(v.Bools) == 1 {
			return TagBool
		}
		return TagArrayBool
	case KindInt:
		return TagArrayInt
	case KindStr:
		return TagStr
	case KindVector:
		return TagVector
	case KindList:
		return TagList
	case KindSym:
		return TagSym
	case KindLang:
		return TagLang
	case KindUnknown:
		return TagUnknown
	default:
		panic(fmt.Sprintf("xt: unknown value kind %d", v.Kind))
	}
}

func writeValueBody(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindNull, KindLang:
		// empty body

	case KindDouble:
		tmp := make([]byte, 8)
		for _, d := range v.Doubles {
			byteorder.PutFloat64(tmp, d)
			buf.Write(tmp)
		}

	case KindBool:
		for _, b := range v.Bools {
			buf.WriteByte(byte(b))
		}

	case KindInt:
		tmp := make([]byte, 4)
		for _, n := range v.Ints {
			byteorder.PutInt32(tmp, n)
			buf.Write(tmp)
		}

	case KindStr:
		buf.WriteString(v.Str)
		buf.WriteByte(0)

	case KindSym:
		writeNode(buf, Str(v.Str))

	case KindVector:
		for _, e := range v.Elems {
			writeNode(buf, e)
		}

	case KindList:
		if len(v.Elems) != 2 {
			panic("xt: list cell must have exactly two elements (head, tail)")
		}
		writeNode(buf, v.Elems[0])
		writeNode(buf, v.Elems[1])

	case KindUnknown:
		tmp := make([]byte, 4)
		byteorder.PutInt32(tmp, v.NativeType)
		buf.Write(tmp)

	default:
		panic(fmt.Sprintf("xt: unknown value kind %d", v.Kind))
	}
}
