package qap1

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Cmd: CmdEval, Len: 42, Dof: 0, Res: 0}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	got := DecodeHeader(buf)
	assert.Equal(t, h, got)
}

func TestParamWalkRoundTrip(t *testing.T) {
	var payload []byte
	payload = EncodeString(payload, "1+1\n")
	payload = EncodeParam(payload, DTInt, []byte{1, 0, 0, 0})

	params, err := WalkParams(payload, 0)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, byte(DTString), params[0].Tag)
	assert.Equal(t, "1+1\n", params[0].AsString())
	assert.Equal(t, byte(DTInt), params[1].Tag)
	n, ok := params[1].AsInt32()
	assert.True(t, ok)
	assert.Equal(t, int32(1), n)
}

func TestParamWalkStopsAtZeroWord(t *testing.T) {
	var payload []byte
	payload = EncodeString(payload, "x")
	payload = append(payload, 0, 0, 0, 0)
	payload = EncodeString(payload, "unreachable")

	params, err := WalkParams(payload, 0)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "x", params[0].AsString())
}

func TestParamWalkMaxParams(t *testing.T) {
	var payload []byte
	for i := 0; i < MaxParams+5; i++ {
		payload = EncodeParam(payload, DTInt, []byte{0, 0, 0, 0})
	}
	params, err := WalkParams(payload, 0)
	require.NoError(t, err)
	assert.Len(t, params, MaxParams)
}

func TestReadRequestEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Cmd: CmdShutdown, Len: 0}
	hbuf := make([]byte, HeaderSize)
	h.Encode(hbuf)
	buf.Write(hbuf)

	req, err := ReadRequest(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(CmdShutdown), req.Header.Cmd)
	assert.Equal(t, int32(0), req.Header.Len)
}

func TestReadRequestOversizePreservesFraming(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 10)
	h := Header{Cmd: CmdEval, Len: int32(len(payload))}
	hbuf := make([]byte, HeaderSize)
	h.Encode(hbuf)
	buf.Write(hbuf)
	buf.Write(payload)

	// A second, valid request follows on the same stream.
	h2 := Header{Cmd: CmdShutdown, Len: 0}
	hbuf2 := make([]byte, HeaderSize)
	h2.Encode(hbuf2)
	buf.Write(hbuf2)

	_, err := ReadRequest(&buf, 5) // ceiling smaller than len=10
	require.True(t, errors.Is(err, ErrOversizePayload))

	// Framing preserved: next ReadRequest sees the second request cleanly.
	req2, err := ReadRequest(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(CmdShutdown), req2.Header.Cmd)
}

func TestReadRequestShortHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2, 3})
	_, err := ReadRequest(buf, 0)
	require.True(t, errors.Is(err, ErrConnBroken))
}

func TestWriteResponseLenMatchesBody(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{1, 2, 3, 4, 5}
	require.NoError(t, WriteResponse(&buf, RespOK, body))

	h := DecodeHeader(buf.Bytes()[:HeaderSize])
	assert.Equal(t, int32(RespOK), h.Cmd)
	assert.Equal(t, int32(len(body)), h.Len)
	assert.Equal(t, body, buf.Bytes()[HeaderSize:])
}

func TestSetStatAndStatRoundTrip(t *testing.T) {
	cmd := SetStat(ErrNotOpen)
	assert.Equal(t, int32(ErrNotOpen), Stat(cmd))
	assert.NotZero(t, cmd&RespErr)
}

func TestBannerShapeAndSize(t *testing.T) {
	b := Banner()
	require.Len(t, b, BannerSize)
	assert.Equal(t, "Rsrv0100QAP1", string(b[:12]))
	assert.Equal(t, "\r\n\r\n", string(b[28:32]))
}
