// Package web serves the kernel over a WebSocket at /ws.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"kernelapi/pkg/api"
	"kernelapi/pkg/monitor"
	"kernelapi/pkg/planner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidRequest is reported for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

// SafeConn serializes writes; requests on one connection run concurrently.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// WriteFrame sends f as a JSON text message.
func (sc *SafeConn) WriteFrame(f api.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return sc.WriteMessage(websocket.TextMessage, data)
}

// WebChannel answers planner, memory and invoke requests over WebSocket.
// Each request receives a plan frame (planner and memory only), an answer
// frame and a done frame, or a single error frame.
type WebChannel struct {
	exec        api.Executor
	connections map[string]*SafeConn // connection id -> conn
	stopped     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

func NewWebChannel() *WebChannel {
	return &WebChannel{
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) Start(exec api.Executor, r *mux.Router) error {
	c.exec = exec
	r.HandleFunc("/ws", c.handleWebSocket).Methods("GET")
	slog.Info("Web channel mounted", "path", "/ws")
	return nil
}

// Stop closes every open connection and waits for in-flight requests.
// Connections attempted afterwards are refused.
func (c *WebChannel) Stop() error {
	c.mu.Lock()
	c.stopped = true
	for id, conn := range c.connections {
		conn.Close()
		delete(c.connections, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *WebChannel) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// Connections returns the number of open connections.
func (c *WebChannel) Connections() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.connections)
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.isStopped() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "WS Upgrade failed", "error", err)
		return
	}

	// Wrap connection
	conn := &SafeConn{Conn: rawConn}
	connID := uuid.NewString()

	// Register under the lock Stop takes, so wg.Add never races wg.Wait.
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
		conn.Close()
		return
	}
	c.connections[connID] = conn
	c.wg.Add(1)
	c.mu.Unlock()

	// Requests are cancelled when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	var requests sync.WaitGroup

	defer func() {
		cancel()
		requests.Wait()
		c.mu.Lock()
		delete(c.connections, connID)
		c.mu.Unlock()
		conn.Close()
		c.wg.Done()
	}()

	slog.InfoContext(ctx, "Web client connected", "conn", connID, "remote", r.RemoteAddr)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "Web client read ended", "conn", connID, "error", err)
			}
			return
		}

		req := parseRequest(msgBytes)
		requests.Add(1)
		go func() {
			defer requests.Done()
			c.serve(ctx, conn, req)
		}()
	}
}

// parseRequest decodes a ChannelRequest. Anything that is not a JSON
// object is treated as a planner query.
func parseRequest(data []byte) api.ChannelRequest {
	var req api.ChannelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return api.ChannelRequest{Type: api.RequestPlanner, Query: strings.TrimSpace(string(data))}
	}
	return req
}

func (c *WebChannel) serve(ctx context.Context, conn *SafeConn, req api.ChannelRequest) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	ctx = monitor.WithRequestID(ctx, req.ID)

	onPlan := func(p *planner.Plan) {
		if err := conn.WriteFrame(api.Frame{ID: req.ID, Type: api.FramePlan, Plan: p}); err != nil {
			slog.WarnContext(ctx, "Failed to send plan frame", "error", err)
		}
	}

	answer, err := c.execute(ctx, req, onPlan)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, ErrInvalidRequest) {
			msg = err.Error()
		}
		slog.ErrorContext(ctx, "Web request failed", "type", req.Type, "error", err)
		if werr := conn.WriteFrame(api.Frame{ID: req.ID, Type: api.FrameError, Error: msg}); werr != nil {
			slog.WarnContext(ctx, "Failed to send error frame", "error", werr)
		}
		return
	}

	if err := conn.WriteFrame(api.Frame{ID: req.ID, Type: api.FrameAnswer, Answer: &answer}); err != nil {
		slog.WarnContext(ctx, "Failed to send answer frame", "error", err)
		return
	}
	if err := conn.WriteFrame(api.Frame{ID: req.ID, Type: api.FrameDone}); err != nil {
		slog.WarnContext(ctx, "Failed to send done frame", "error", err)
	}
}

func (c *WebChannel) execute(ctx context.Context, req api.ChannelRequest, onPlan api.PlanObserver) (api.Answer, error) {
	switch req.Type {
	case api.RequestInvoke:
		if req.Plugin == "" || req.Function == "" {
			return api.Answer{}, fmt.Errorf("%w: invoke needs plugin and function", ErrInvalidRequest)
		}
		out, err := c.exec.InvokeFunction(ctx, req.Plugin, req.Function, req.Ask)
		return api.Answer{Answer: out}, err
	case api.RequestPlanner:
		if strings.TrimSpace(req.Query) == "" {
			return api.Answer{}, fmt.Errorf("%w: missing query", ErrInvalidRequest)
		}
		out, err := c.exec.RunPlanner(ctx, req.Query, onPlan)
		return api.Answer{Answer: out}, err
	case api.RequestMemory:
		if strings.TrimSpace(req.Query) == "" {
			return api.Answer{}, fmt.Errorf("%w: missing query", ErrInvalidRequest)
		}
		return c.exec.RunMemory(ctx, req.Query, onPlan)
	default:
		return api.Answer{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type)
	}
}
