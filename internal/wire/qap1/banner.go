package qap1

// BannerSize is the fixed octet length of the ID banner.
const BannerSize = 32

// Banner builds the 32-octet ID banner sent immediately on connection:
// the three mandatory 4-octet fields ("Rsrv", protocol version, framing
// protocol), filler octets, and the conventional "\r\n\r\n" terminator. No
// AR attribute is emitted; the command set is unauthenticated.
func Banner() []byte {
	b := make([]byte, BannerSize)
	copy(b[0:4], "Rsrv")
	copy(b[4:8], "0100")
	copy(b[8:12], "QAP1")
	for i := 12; i < 28; i++ {
		b[i] = '-'
	}
	copy(b[28:32], "\r\n\r\n")
	return b
}
