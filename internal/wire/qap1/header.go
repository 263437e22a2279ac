// Package qap1 implements the QAP1 wire protocol: a fixed 16-byte header
// plus a typed parameter list, little-endian on the wire.
package qap1

import "github.com/marmos91/rserved/internal/wire/byteorder"

// HeaderSize is the exact octet count of a QAP1 packet header.
const HeaderSize = 16

// Request command codes.
const (
	CmdLogin      = 0x001
	CmdVoidEval   = 0x002
	CmdEval       = 0x003
	CmdShutdown   = 0x004
	CmdOpenFile   = 0x010
	CmdCreateFile = 0x011
	CmdCloseFile  = 0x012
	CmdReadFile   = 0x013
	CmdWriteFile  = 0x014
)

// Response codes and stat packing.
const (
	CmdResp = 0x10000
	RespOK  = CmdResp | 0x0001
	RespErr = CmdResp | 0x0002
)

// Error stats. Stats 0x00-0x3f are reserved for
// evaluator-specific codes (e.g. parse status); negative stats are the
// evaluator's raw runtime-error code.
const (
	ErrAuthFailed     = 0x41
	StatConnBroken    = 0x42
	ErrInvCmd         = 0x43
	ErrInvPar         = 0x44
	ErrRerror         = 0x45
	ErrIOError        = 0x46
	ErrNotOpen        = 0x47
	ErrAccessDenied   = 0x48
	ErrUnsupportedCmd = 0x49
	ErrUnknownCmd     = 0x4a
)

// SetStat folds a 7-bit status value into bits 24-30 of a response
// command word.
func SetStat(stat int32) int32 {
	return RespErr | ((stat & 0x7f) << 24)
}

// Stat extracts the 7-bit status value from a response command word.
func Stat(cmd int32) int32 {
	return (cmd >> 24) & 0x7f
}

// Header is the decoded form of a QAP1 packet header.
type Header struct {
	Cmd int32
	Len int32
	Dof int32
	Res int32
}

// Encode writes h into buf[0:HeaderSize] in wire byte order.
func (h Header) Encode(buf []byte) {
	byteorder.PutInt32(buf[0:4], h.Cmd)
	byteorder.PutInt32(buf[4:8], h.Len)
	byteorder.PutInt32(buf[8:12], h.Dof)
	byteorder.PutInt32(buf[12:16], h.Res)
}

// DecodeHeader parses exactly HeaderSize octets of buf into a Header,
// normalizing byte order once.
func DecodeHeader(buf []byte) Header {
	return Header{
		Cmd: byteorder.Int32(buf[0:4]),
		Len: byteorder.Int32(buf[4:8]),
		Dof: byteorder.Int32(buf[8:12]),
		Res: byteorder.Int32(buf[12:16]),
	}
}
