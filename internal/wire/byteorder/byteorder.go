// Package byteorder normalizes the Int32 and Float64 values that cross the
// QAP1 wire boundary to little-endian, regardless of host byte order.
//
// Every header field, parameter header, value-tree length, and numeric
// body passes through PutInt32/Int32 or PutFloat64/Float64 exactly once on
// ingress and once on egress; no half-normalized value is ever retained.
package byteorder

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wire is always little-endian: QAP1 fixes Intel byte order on the wire
// irrespective of host architecture.
var wire = binary.LittleEndian

// PutInt32 writes v into buf[0:4] in wire byte order.
func PutInt32(buf []byte, v int32) {
	wire.PutUint32(buf, uint32(v))
}

// Int32 reads a wire-order Int32 from buf[0:4].
func Int32(buf []byte) int32 {
	return int32(wire.Uint32(buf))
}

// PutFloat64 writes v into buf[0:8] in wire byte order.
func PutFloat64(buf []byte, v float64) {
	wire.PutUint64(buf, math.Float64bits(v))
}

// Float64 reads a wire-order Float64 from buf[0:8].
func Float64(buf []byte) float64 {
	return math.Float64frombits(wire.Uint64(buf))
}

// SelfCheck validates that this codec round-trips the sentinel
// 0x12345678: its first wire octet must be 0x78. The process must abort
// on failure; the caller decides how to surface that.
func SelfCheck() error {
	var buf [4]byte
	PutInt32(buf[:], 0x12345678)
	if buf[0] != 0x78 {
		return fmt.Errorf("byteorder: self-check failed, first octet = 0x%02x, want 0x78", buf[0])
	}
	if got := Int32(buf[:]); got != 0x12345678 {
		return fmt.Errorf("byteorder: self-check round-trip failed, got 0x%x, want 0x12345678", got)
	}
	return nil
}
