package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"kernelapi/pkg/api"
	"kernelapi/pkg/config"
	"kernelapi/pkg/monitor"
)

// GatewayManager owns the HTTP server and every channel mounted on it.
type GatewayManager struct {
	router   *mux.Router
	server   *http.Server
	channels map[string]api.Channel
	monitor  monitor.Monitor
	system   *config.SystemConfig
	mu       sync.RWMutex
}

// NewGatewayManager returns a manager with default system settings.
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]api.Channel),
		system:   config.DefaultSystemConfig(),
	}
}

// WithSystemConfig sets the engine parameters used for the listener.
func (g *GatewayManager) WithSystemConfig(cfg *config.SystemConfig) {
	g.system = cfg
}

// SetMonitor sets the monitor stopped with the gateway.
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel. Channels are mounted when the router is built.
func (g *GatewayManager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns a registered channel.
func (g *GatewayManager) GetChannel(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// Handler returns the complete HTTP handler, CORS included.
func (g *GatewayManager) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   g.system.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
	})
	return c.Handler(g.router)
}

// mount builds the router and starts every channel on it.
func (g *GatewayManager) mount(exec api.Executor) error {
	g.router = NewRouter(exec)

	g.mu.RLock()
	defer g.mu.RUnlock()
	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(exec, g.router); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// Listen binds the configured port. The port is bound synchronously so a
// busy port fails startup; requests are served in the background.
func (g *GatewayManager) Listen() error {
	addr := fmt.Sprintf(":%d", g.system.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return g.Serve(ln)
}

// Serve serves requests from ln in the background.
func (g *GatewayManager) Serve(ln net.Listener) error {
	g.server = &http.Server{Handler: g.Handler()}
	slog.Info("HTTP API listening", "addr", ln.Addr().String())

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests, then stops the channels and the monitor.
func (g *GatewayManager) Stop(ctx context.Context) error {
	var errs []error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	g.mu.RLock()
	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop channel %s: %w", id, err))
		}
	}
	g.mu.RUnlock()

	if g.monitor != nil {
		if err := g.monitor.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop monitor: %w", err))
		}
	}
	return errors.Join(errs...)
}
