package monitor

import (
	"context"
	"time"
)

// Message types reported to a Monitor.
const (
	MessageAsk    = "ASK"
	MessageAnswer = "ANSWER"
	MessageError  = "ERROR"
)

// MonitorMessage is one side of an exchange handled by a route.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // MessageAsk, MessageAnswer or MessageError
	Route       string // "invoke", "planner", "memory"
	RequestID   string
	Content     string
}

// Monitor receives every ask/answer pair flowing through the server.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}

type requestIDKey struct{}

// WithRequestID returns a child context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
