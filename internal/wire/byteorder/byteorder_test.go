package byteorder

import "testing"

func TestSelfCheck(t *testing.T) {
	if err := SelfCheck(); err != nil {
		t.Fatalf("SelfCheck failed: %v", err)
	}
}

func TestInt32RoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 0x12345678, -0x7fffffff, 2044}
	for _, v := range cases {
		buf := make([]byte, 4)
		PutInt32(buf, v)
		if got := Int32(buf); got != v {
			t.Errorf("Int32 round trip: got %d, want %d", got, v)
		}
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 2.0, 3.14159, -1e300}
	for _, v := range cases {
		buf := make([]byte, 8)
		PutFloat64(buf, v)
		if got := Float64(buf); got != v {
			t.Errorf("Float64 round trip: got %v, want %v", got, v)
		}
	}
}

func TestInt32WireOrderIsLittleEndian(t *testing.T) {
	buf := make([]byte, 4)
	PutInt32(buf, 1)
	if buf[0] != 1 || buf[1] != 0 || buf[2] != 0 || buf[3] != 0 {
		t.Errorf("expected little-endian layout [1 0 0 0], got %v", buf)
	}
}
