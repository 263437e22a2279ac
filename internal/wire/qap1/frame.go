package qap1

import (
	"errors"
	"fmt"
	"io"
)

// DefaultInputCeiling is the default octet ceiling for a request
// payload, matching the reference server's 2044-byte input scratch
// budget.
const DefaultInputCeiling = 2044

// sentinelPadding is appended after a decoded payload so the parameter
// walker's zero-word terminator check never reads past the buffer.
const sentinelPadding = 8

// ErrConnBroken is returned when the stream ends early or delivers a
// partial header or body; the caller must treat the connection as
// broken.
var ErrConnBroken = errors.New("qap1: connection broken")

// ErrOversizePayload is returned when len exceeds the configured ceiling.
// The caller must drain len octets from the stream and reply inv_par,
// preserving framing, without entering dispatch. ReadRequest does the
// drain itself before returning this error.
var ErrOversizePayload = errors.New("qap1: payload exceeds input ceiling")

// Request is a decoded incoming packet: its header and its payload
// (including the trailing sentinel padding).
type Request struct {
	Header  Header
	Payload []byte // length Header.Len, plus sentinelPadding zero bytes
}

// ReadRequest reads one QAP1 request frame from r.
//
// On a short header read, it returns ErrConnBroken. On a payload exceeding
// ceiling octets, it drains exactly Header.Len octets from r (so framing is
// preserved for the next request) and returns ErrOversizePayload; the
// caller must not examine Payload in that case.
func ReadRequest(r io.Reader, ceiling int32) (Request, error) {
	var hbuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrConnBroken, err)
	}
	h := DecodeHeader(hbuf[:])

	if h.Len == 0 {
		return Request{Header: h, Payload: make([]byte, sentinelPadding)}, nil
	}

	if ceiling <= 0 {
		ceiling = DefaultInputCeiling
	}
	if h.Len > ceiling {
		if _, err := io.CopyN(io.Discard, r, int64(h.Len)); err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrConnBroken, err)
		}
		return Request{Header: h}, ErrOversizePayload
	}

	payload := make([]byte, int(h.Len)+sentinelPadding)
	if _, err := io.ReadFull(r, payload[:h.Len]); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrConnBroken, err)
	}
	return Request{Header: h, Payload: payload}, nil
}

// Params walks the request's typed parameter list starting at Header.Dof.
func (req Request) Params() ([]Param, error) {
	return WalkParams(req.Payload, req.Header.Dof)
}

// WriteEmptyResponse writes a 16-octet header-only reply: len=dof=res=0,
// cmd carries the already-folded response code.
func WriteEmptyResponse(w io.Writer, cmd int32) error {
	var buf [HeaderSize]byte
	Header{Cmd: cmd}.Encode(buf[:])
	_, err := w.Write(buf[:])
	return err
}

// WriteResponse writes a header followed by body as one logical message;
// len is body's exact size, dof is 0.
func WriteResponse(w io.Writer, cmd int32, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))
	Header{Cmd: cmd, Len: int32(len(body))}.Encode(buf[:HeaderSize])
	copy(buf[HeaderSize:], body)
	_, err := w.Write(buf)
	return err
}
