// Package session implements the per-connection state machine: banner,
// read-dispatch-reply loop, open-file handle, and termination. Isolation
// across connections is goroutine-per-connection plus a mutex serializing
// access to the shared evaluator.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/rserved/internal/archive"
	"github.com/marmos91/rserved/internal/eval"
	"github.com/marmos91/rserved/internal/logger"
	"github.com/marmos91/rserved/internal/telemetry"
	"github.com/marmos91/rserved/internal/wire/qap1"
	"github.com/marmos91/rserved/internal/wire/xt"
)

// DefaultReadFileChunk bounds a readFile reply body when the client sends
// no size hint.
const DefaultReadFileChunk = 65536

// Recorder receives session-lifecycle events for the audit ledger.
// A nil Recorder disables ledger recording entirely.
type Recorder interface {
	RecordAccept(ucix int64, peerAddr string)
	RecordCommand(ucix int64, cmd int32)
	RecordClose(ucix int64, lastStat int32)
}

// ShutdownSignal is invoked when a CMD_shutdown request has been handled,
// telling the supervisor to begin process-wide shutdown.
type ShutdownSignal func()

// CommandMetrics receives per-command Prometheus observations. A nil
// CommandMetrics disables metrics recording entirely.
type CommandMetrics interface {
	RecordCommand(cmd, stat int32)
}

// ByteMetrics is optionally implemented by a CommandMetrics to also
// observe octets transferred per direction ("in"/"out").
type ByteMetrics interface {
	RecordBytes(direction string, n int)
}

// Connection owns all per-connection state: exactly one open file handle
// at a time, input/output buffers, and a reference to the shared
// evaluator.
type Connection struct {
	conn       net.Conn
	ucix       int64
	workdir    string
	ceiling    int32
	gateway    *eval.Gateway
	evalMu     *sync.Mutex
	recorder   Recorder
	onShutdown ShutdownSignal
	archiver   archive.Backend
	cmdMetrics CommandMetrics
	ctx        context.Context

	file     *os.File
	fileOpen bool
	lastStat int32
}

// New returns a Connection ready to Serve. evalMu must be shared across
// every Connection that shares gateway, which is not safe for concurrent
// use. archiver may be nil, in which case the workdir is left on disk,
// never cleaned up, for post-mortem inspection in place. A ceiling of 0
// selects qap1.DefaultInputCeiling.
func New(conn net.Conn, ucix int64, workdirRoot string, gateway *eval.Gateway, evalMu *sync.Mutex, recorder Recorder, onShutdown ShutdownSignal, archiver archive.Backend, cmdMetrics CommandMetrics, ceiling int32) *Connection {
	if ceiling <= 0 {
		ceiling = qap1.DefaultInputCeiling
	}
	return &Connection{
		conn:       conn,
		ucix:       ucix,
		workdir:    filepath.Join(workdirRoot, "conn"+strconv.FormatInt(ucix, 10)),
		ceiling:    ceiling,
		gateway:    gateway,
		evalMu:     evalMu,
		recorder:   recorder,
		onShutdown: onShutdown,
		archiver:   archiver,
		cmdMetrics: cmdMetrics,
	}
}

// Serve runs the connection's full lifecycle: workdir creation, banner,
// request loop, and cleanup. It returns when the connection is closed, by
// either party or by a framing error.
func (c *Connection) Serve(ctx context.Context) {
	lc := logger.NewLogContext(c.ucix, c.conn.RemoteAddr().String())
	ctx = logger.WithContext(ctx, lc)
	c.ctx = ctx
	defer c.cleanup()

	if err := os.MkdirAll(c.workdir, 0o755); err != nil {
		logger.WarnCtx(ctx, "failed to create connection workdir", "ucix", c.ucix, "error", err)
	}

	if c.recorder != nil {
		c.recorder.RecordAccept(c.ucix, c.conn.RemoteAddr().String())
	}

	if _, err := c.conn.Write(qap1.Banner()); err != nil {
		logger.WarnCtx(ctx, "failed writing ID banner", "ucix", c.ucix, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := qap1.ReadRequest(c.conn, c.ceiling)
		if err == nil {
			c.recordBytes("in", qap1.HeaderSize+int(req.Header.Len))
		}
		switch {
		case errors.Is(err, qap1.ErrOversizePayload):
			c.lastStat = qap1.ErrInvPar
			if werr := qap1.WriteEmptyResponse(c.conn, qap1.SetStat(qap1.ErrInvPar)); werr != nil {
				return
			}
			continue
		case errors.Is(err, qap1.ErrConnBroken):
			c.lastStat = qap1.StatConnBroken
			return
		case err != nil:
			return
		}

		if c.recorder != nil {
			c.recorder.RecordCommand(c.ucix, req.Header.Cmd)
		}

		spanCtx, span := telemetry.StartCommandSpan(ctx, req.Header.Cmd, c.ucix)
		spanCtx = logger.WithContext(spanCtx, lc.WithTrace(telemetry.TraceID(spanCtx), telemetry.SpanID(spanCtx)))
		respCmd, body, shouldClose := c.dispatch(spanCtx, req)
		if qap1.Stat(respCmd) != 0 && respCmd&qap1.RespErr == qap1.RespErr {
			telemetry.RecordError(spanCtx, fmt.Errorf("stat 0x%x", qap1.Stat(respCmd)))
		}
		span.End()
		c.lastStat = qap1.Stat(respCmd)
		if c.cmdMetrics != nil {
			c.cmdMetrics.RecordCommand(req.Header.Cmd, c.lastStat)
		}

		var werr error
		if len(body) == 0 {
			werr = qap1.WriteEmptyResponse(c.conn, respCmd)
		} else {
			werr = qap1.WriteResponse(c.conn, respCmd, body)
		}
		if werr != nil {
			return
		}
		c.recordBytes("out", qap1.HeaderSize+len(body))
		if shouldClose {
			return
		}
	}
}

func (c *Connection) recordBytes(direction string, n int) {
	if bm, ok := c.cmdMetrics.(ByteMetrics); ok {
		bm.RecordBytes(direction, n)
	}
}

func (c *Connection) cleanup() {
	if c.fileOpen {
		_ = c.file.Close()
		c.fileOpen = false
	}
	_ = c.conn.Close()
	if c.recorder != nil {
		c.recorder.RecordClose(c.ucix, c.lastStat)
	}
	c.archiveWorkdir()
}

// archiveWorkdir hands every regular file under the connection's workdir
// to the configured archive.Backend. The workdir itself is left in place
// either way; archival is additive, not a replacement for the
// left-on-disk default.
func (c *Connection) archiveWorkdir() {
	if c.archiver == nil {
		return
	}
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := os.ReadDir(c.workdir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(c.workdir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		if err := c.archiver.Store(ctx, c.ucix, entry.Name(), f); err != nil {
			logger.WarnCtx(ctx, "failed to archive workdir file", "ucix", c.ucix, "file", entry.Name(), "error", err)
		}
		_ = f.Close()
	}
}

// dispatch routes a single request on its command code. It returns the
// folded response command word, the reply body (nil for an OK-empty
// reply), and whether the connection should close after replying.
func (c *Connection) dispatch(ctx context.Context, req qap1.Request) (respCmd int32, body []byte, shouldClose bool) {
	params, err := req.Params()
	if err != nil {
		return qap1.SetStat(qap1.ErrInvPar), nil, false
	}

	switch req.Header.Cmd {
	case qap1.CmdLogin:
		return qap1.RespOK, nil, false

	case qap1.CmdShutdown:
		if c.onShutdown != nil {
			c.onShutdown()
		}
		return qap1.RespOK, nil, true

	case qap1.CmdOpenFile, qap1.CmdCreateFile:
		return c.dispatchOpen(req.Header.Cmd, params)

	case qap1.CmdCloseFile:
		if c.fileOpen {
			_ = c.file.Close()
			c.fileOpen = false
		}
		return qap1.RespOK, nil, false

	case qap1.CmdReadFile:
		return c.dispatchRead(params)

	case qap1.CmdWriteFile:
		return c.dispatchWrite(params)

	case qap1.CmdVoidEval:
		_, evalErr := c.dispatchEval(ctx, params, false)
		if evalErr != 0 {
			return qap1.SetStat(foldErrFlag(evalErr)), nil, false
		}
		return qap1.RespOK, nil, false

	case qap1.CmdEval:
		resultBody, evalErr := c.dispatchEval(ctx, params, true)
		if evalErr != 0 {
			return qap1.SetStat(foldErrFlag(evalErr)), nil, false
		}
		return qap1.RespOK, resultBody, false

	default:
		return qap1.SetStat(qap1.ErrInvCmd), nil, false
	}
}

func (c *Connection) dispatchOpen(cmd int32, params []qap1.Param) (int32, []byte, bool) {
	if len(params) < 1 || params[0].Tag != qap1.DTString {
		return qap1.SetStat(qap1.ErrInvPar), nil, false
	}
	name := params[0].AsString()
	path := filepath.Join(c.workdir, filepath.Base(name))

	if c.fileOpen {
		_ = c.file.Close()
		c.fileOpen = false
	}

	var f *os.File
	var err error
	if cmd == qap1.CmdCreateFile {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	} else {
		f, err = os.OpenFile(path, os.O_RDWR, 0o644)
	}
	if err != nil {
		return qap1.SetStat(qap1.ErrIOError), nil, false
	}
	c.file = f
	c.fileOpen = true
	return qap1.RespOK, nil, false
}

func (c *Connection) dispatchRead(params []qap1.Param) (int32, []byte, bool) {
	if !c.fileOpen {
		return qap1.SetStat(qap1.ErrNotOpen), nil, false
	}
	size := DefaultReadFileChunk
	if len(params) >= 1 {
		if hint, ok := params[0].AsInt32(); ok && hint > 0 && int(hint) < size {
			size = int(hint)
		}
	}
	buf := make([]byte, size)
	n, err := c.file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return qap1.SetStat(qap1.ErrIOError), nil, false
	}
	return qap1.RespOK, buf[:n], false
}

func (c *Connection) dispatchWrite(params []qap1.Param) (int32, []byte, bool) {
	if !c.fileOpen {
		return qap1.SetStat(qap1.ErrNotOpen), nil, false
	}
	if len(params) < 1 {
		return qap1.SetStat(qap1.ErrInvPar), nil, false
	}
	n, err := c.file.Write(params[0].Body)
	if err != nil || n != len(params[0].Body) {
		return qap1.SetStat(qap1.ErrIOError), nil, false
	}
	return qap1.RespOK, nil, false
}

// dispatchEval parses then evaluates param 0 under the shared evaluator
// mutex. serialize controls whether the result is converted to a wire
// body (eval) or discarded (voidEval).
func (c *Connection) dispatchEval(ctx context.Context, params []qap1.Param, serialize bool) (body []byte, errFlag int32) {
	if len(params) < 1 || params[0].Tag != qap1.DTString {
		return nil, qap1.ErrInvPar
	}
	source := params[0].AsString()
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	lineCount := int32(strings.Count(source, "\n"))

	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	c.gateway.ResetParseBuffer()
	parseStatus, ast, ok := c.gateway.Parse(source, int(lineCount))
	if !ok {
		return nil, int32(parseStatus)
	}

	flag, result := c.gateway.Eval(ast)
	if flag != 0 {
		logger.DebugCtx(ctx, "evaluator runtime error", "ucix", c.ucix, "flag", flag)
		return nil, int32(flag)
	}

	if !serialize {
		return nil, 0
	}
	return xt.Encode(result), 0
}

// foldErrFlag maps an evaluator error/parse code into the 7-bit stat
// field. Positive parse statuses in 0x00-0x3f pass through unchanged;
// runtime codes are made negative (forwarded as-is when already
// negative) so their two's-complement low bits land in the 0x40-0x7f
// half of the stat space, away from the parse statuses.
func foldErrFlag(flag int32) int32 {
	if flag >= 0 && flag <= 0x3f {
		return flag
	}
	if flag > 0 {
		flag = -flag
	}
	return flag & 0x7f
}
