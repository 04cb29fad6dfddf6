package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"kernelapi/pkg/monitor"
)

// DebugRoot is the directory raw chunk logs are written under.
var DebugRoot = "debug"

// unsafePathChars matches anything that must not reach a directory name.
// Request ids may come from the X-Request-ID header.
var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// StreamDebugger records the raw chunks of one provider stream to
// DebugRoot/chunks/<requestID>/<provider>/<timestamp>.log. A disabled
// debugger is a no-op; the zero value is disabled.
type StreamDebugger struct {
	file *os.File
}

// NewStreamDebugger opens the chunk log for the request in ctx when enabled
// is set. Calls outside a request are filed under the provider directly.
// Failing to open the log disables the debugger rather than the stream.
func NewStreamDebugger(ctx context.Context, provider string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{}
	}

	dir := filepath.Join(DebugRoot, "chunks", debugDirName(provider))
	if id := monitor.RequestID(ctx); id != "" {
		dir = filepath.Join(DebugRoot, "chunks", debugDirName(id), debugDirName(provider))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.ErrorContext(ctx, "Failed to create debug directory", "dir", dir, "error", err)
		return &StreamDebugger{}
	}

	name := filepath.Join(dir, time.Now().Format("20060102_150405.000")+".log")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open debug file", "file", name, "error", err)
		return &StreamDebugger{}
	}

	slog.DebugContext(ctx, "Recording raw chunks", "provider", provider, "file", name)
	return &StreamDebugger{file: f}
}

// debugDirName maps s onto a single safe path element.
func debugDirName(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" {
		return "_"
	}
	return s
}

// Path returns the log file name, or "" when disabled.
func (d *StreamDebugger) Path() string {
	if d.file == nil {
		return ""
	}
	return d.file.Name()
}

// Write appends data as one line.
func (d *StreamDebugger) Write(data []byte) {
	d.writeLine(string(data))
}

// WriteString appends s as one line.
func (d *StreamDebugger) WriteString(s string) {
	d.writeLine(s)
}

func (d *StreamDebugger) writeLine(s string) {
	if d.file == nil {
		return
	}
	if _, err := fmt.Fprintln(d.file, s); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
}

// Close releases the log file. It is safe to call more than once.
func (d *StreamDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
