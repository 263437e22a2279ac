package logger

import "context"

type logContextKeyType struct{}

var logContextKey = logContextKeyType{}

// Field key names shared between the structured and context-aware logging
// APIs.
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyConnIndex  = "conn_index"
	KeyCommand    = "command"
	KeyClientAddr = "client_addr"
)

// LogContext holds connection-scoped fields injected into every *Ctx log
// call for that connection.
type LogContext struct {
	TraceID    string
	SpanID     string
	ConnIndex  int64
	Command    string
	ClientAddr string
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext attached to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a freshly accepted connection.
func NewLogContext(connIndex int64, clientAddr string) *LogContext {
	return &LogContext{ConnIndex: connIndex, ClientAddr: clientAddr}
}

// WithCommand returns a copy of lc with Command set, for a single dispatch.
func (lc *LogContext) WithCommand(command string) *LogContext {
	clone := *lc
	clone.Command = command
	return &clone
}

// WithTrace returns a copy of lc with the trace/span IDs set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := *lc
	clone.TraceID = traceID
	clone.SpanID = spanID
	return &clone
}
