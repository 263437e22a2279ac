package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "WARN", "text")
	Info("should not appear")
	Warn("should appear")
	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "INFO", "json")
	Info("hello", "key", "value")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, "value", decoded["key"])
}

func TestContextFieldsInjected(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "INFO", "json")

	lc := NewLogContext(7, "127.0.0.1:5555").WithCommand("eval")
	ctx := WithContext(context.Background(), lc)
	InfoCtx(ctx, "dispatched")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(7), decoded[KeyConnIndex])
	assert.Equal(t, "eval", decoded[KeyCommand])
	assert.Equal(t, "127.0.0.1:5555", decoded[KeyClientAddr])
}

func TestContextWithoutLogContextIsHarmless(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "INFO", "text")
	InfoCtx(context.Background(), "no context fields")
	assert.Contains(t, buf.String(), "no context fields")
}

func TestInvalidLevelAndFormatAreIgnored(t *testing.T) {
	buf := &bytes.Buffer{}
	InitWithWriter(buf, "INFO", "text")
	SetLevel("NOT_A_LEVEL")
	SetFormat("xml")
	Info("still works")
	assert.True(t, strings.Contains(buf.String(), "still works"))
}
