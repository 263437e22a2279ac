package session

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/rserved/internal/eval"
	"github.com/marmos91/rserved/internal/wire/qap1"
)

func newTestConnection(t *testing.T) (client net.Conn, done chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	gw := eval.New()
	var mu sync.Mutex
	conn := New(server, 1, t.TempDir(), gw, &mu, nil, nil, nil, nil, 0)

	done = make(chan struct{})
	go func() {
		conn.Serve(context.Background())
		close(done)
	}()
	return client, done
}

func readBanner(t *testing.T, client net.Conn) []byte {
	t.Helper()
	buf := make([]byte, qap1.BannerSize)
	_, err := readFull(client, buf)
	require.NoError(t, err)
	return buf
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func sendStringRequest(t *testing.T, client net.Conn, cmd int32, source string) {
	t.Helper()
	var payload []byte
	payload = qap1.EncodeString(payload, source)
	require.NoError(t, qap1.WriteResponse(client, cmd, payload))
}

func readResponse(t *testing.T, client net.Conn) (qap1.Header, []byte) {
	t.Helper()
	hbuf := make([]byte, qap1.HeaderSize)
	_, err := readFull(client, hbuf)
	require.NoError(t, err)
	h := qap1.DecodeHeader(hbuf)
	if h.Len == 0 {
		return h, nil
	}
	body := make([]byte, h.Len)
	_, err = readFull(client, body)
	require.NoError(t, err)
	return h, body
}

func TestBannerOnConnect(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()

	banner := readBanner(t, client)
	assert.Equal(t, "Rsrv0100QAP1", string(banner[:12]))
}

func TestVoidEvalReturnsEmptyOK(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	sendStringRequest(t, client, qap1.CmdVoidEval, "1+1\n")
	h, body := readResponse(t, client)
	assert.Equal(t, int32(qap1.RespOK), h.Cmd)
	assert.Empty(t, body)
}

func TestEvalReturnsDoubleScalarNode(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	sendStringRequest(t, client, qap1.CmdEval, "1+1\n")
	h, body := readResponse(t, client)
	assert.Equal(t, int32(qap1.RespOK), h.Cmd)
	require.NotEmpty(t, body)
	assert.Equal(t, byte(2), body[0]) // xt.TagDouble
}

func TestEvalCharacterScalarElision(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	sendStringRequest(t, client, qap1.CmdEval, `"hi"`+"\n")
	_, body := readResponse(t, client)
	require.NotEmpty(t, body)
	assert.Equal(t, byte(3), body[0]) // xt.TagStr, not VECTOR
}

func TestReadFileBeforeOpenIsNotOpen(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	require.NoError(t, qap1.WriteResponse(client, qap1.CmdReadFile, nil))
	h, _ := readResponse(t, client)
	assert.Equal(t, int32(qap1.ErrNotOpen), qap1.Stat(h.Cmd))
}

func TestShutdownClosesConnection(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close() }()

	readBanner(t, client)
	require.NoError(t, qap1.WriteResponse(client, qap1.CmdShutdown, nil))
	h, _ := readResponse(t, client)
	assert.Equal(t, int32(qap1.RespOK), h.Cmd)
	<-done // Serve must return after replying to shutdown
}

func TestUnknownCommandIsInvCmd(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	require.NoError(t, qap1.WriteResponse(client, 0x999, nil))
	h, _ := readResponse(t, client)
	assert.Equal(t, int32(qap1.ErrInvCmd), qap1.Stat(h.Cmd))
}

func TestEvalParseAndRuntimeFailuresLandInDifferentStatBands(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	sendStringRequest(t, client, qap1.CmdEval, "(1+\n")
	h, _ := readResponse(t, client)
	parseStat := qap1.Stat(h.Cmd)
	assert.NotZero(t, h.Cmd&qap1.RespErr)
	assert.Less(t, parseStat, int32(0x40), "parse status stays in the low half")

	sendStringRequest(t, client, qap1.CmdEval, "undefinedVar\n")
	h, _ = readResponse(t, client)
	runtimeStat := qap1.Stat(h.Cmd)
	assert.NotZero(t, h.Cmd&qap1.RespErr)
	assert.GreaterOrEqual(t, runtimeStat, int32(0x40), "negated runtime code lands in the high half")
}

func TestOversizePayloadPreservesFraming(t *testing.T) {
	server, client := net.Pipe()
	gw := eval.New()
	var mu sync.Mutex
	conn := New(server, 1, t.TempDir(), gw, &mu, nil, nil, nil, nil, 16)

	done := make(chan struct{})
	go func() {
		conn.Serve(context.Background())
		close(done)
	}()
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	oversize := make([]byte, 64)
	require.NoError(t, qap1.WriteResponse(client, qap1.CmdVoidEval, oversize))
	h, _ := readResponse(t, client)
	assert.Equal(t, int32(qap1.ErrInvPar), qap1.Stat(h.Cmd))

	// the same connection must keep working
	sendStringRequest(t, client, qap1.CmdVoidEval, "1+1\n")
	h, _ = readResponse(t, client)
	assert.Equal(t, int32(qap1.RespOK), h.Cmd)
}

func TestCreateOpenWriteReadFileRoundTrip(t *testing.T) {
	client, done := newTestConnection(t)
	defer func() { _ = client.Close(); <-done }()
	readBanner(t, client)

	sendStringRequest(t, client, qap1.CmdCreateFile, "scratch.txt")
	h, _ := readResponse(t, client)
	require.Equal(t, int32(qap1.RespOK), h.Cmd)

	var payload []byte
	payload = qap1.EncodeParam(payload, qap1.DTByteStream, []byte("payload-bytes"))
	require.NoError(t, qap1.WriteResponse(client, qap1.CmdWriteFile, payload))
	h, _ = readResponse(t, client)
	require.Equal(t, int32(qap1.RespOK), h.Cmd)

	require.NoError(t, qap1.WriteResponse(client, qap1.CmdCloseFile, nil))
	h, _ = readResponse(t, client)
	require.Equal(t, int32(qap1.RespOK), h.Cmd)

	sendStringRequest(t, client, qap1.CmdOpenFile, "scratch.txt")
	h, _ = readResponse(t, client)
	require.Equal(t, int32(qap1.RespOK), h.Cmd)

	require.NoError(t, qap1.WriteResponse(client, qap1.CmdReadFile, nil))
	h, body := readResponse(t, client)
	require.Equal(t, int32(qap1.RespOK), h.Cmd)
	assert.Equal(t, "payload-bytes", string(body))
}
