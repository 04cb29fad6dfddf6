package gateway

import (
	"errors"
	"fmt"

	"kernelapi/pkg/api"
	"kernelapi/pkg/config"
	"kernelapi/pkg/monitor"
)

// ErrNoExecutor is returned by Build when no executor was provided.
var ErrNoExecutor = errors.New("gateway: no executor configured")

// GatewayBuilder assembles a GatewayManager from pre-built components.
// The builder only wires and starts them; it constructs nothing itself.
type GatewayBuilder struct {
	gw           *GatewayManager
	monitor      monitor.Monitor
	systemConfig *config.SystemConfig
	executor     api.Executor
	channels     []api.Channel
}

// NewGatewayBuilder creates a fresh GatewayBuilder.
func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// WithMonitor injects a monitor. It is started by Build.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithSystemConfig provides the listener port and CORS origins.
func (b *GatewayBuilder) WithSystemConfig(cfg *config.SystemConfig) *GatewayBuilder {
	b.systemConfig = cfg
	return b
}

// WithExecutor sets the executor behind every route and channel.
func (b *GatewayBuilder) WithExecutor(exec api.Executor) *GatewayBuilder {
	b.executor = exec
	return b
}

// WithChannel adds pre-built channels mounted next to the HTTP routes.
func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// Build starts the monitor, mounts the routes and channels and returns the
// manager ready to Listen.
func (b *GatewayBuilder) Build() (*GatewayManager, error) {
	if b.executor == nil {
		return nil, ErrNoExecutor
	}

	// 0. Extract and apply system-level parameters
	if b.systemConfig != nil {
		b.gw.WithSystemConfig(b.systemConfig)
	}

	// 1. Initialize and start the monitoring service
	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	// 2. Register all pre-built channels
	for _, c := range b.channels {
		b.gw.Register(c)
	}

	// 3. Build the router and start the channels on it
	if err := b.gw.mount(b.executor); err != nil {
		return nil, err
	}

	return b.gw, nil
}
