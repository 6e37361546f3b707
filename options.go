package parley

import "time"

// Option configures a Node at construction.
type Option func(*nodeConfig)

type nodeConfig struct {
	listenAddr        string
	capacity          int
	connectTimeout    time.Duration
	handshakeTimeout  time.Duration
	greetingTimeout   time.Duration
	readPollTimeout   time.Duration
	writeTimeout      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	rateLimit         int
	rateWindow        time.Duration
	adminAddr         string
	frameHandler      FrameHandler
}

func defaultNodeConfig() nodeConfig {
	return nodeConfig{
		capacity:          100,
		connectTimeout:    10 * time.Second,
		handshakeTimeout:  10 * time.Second,
		greetingTimeout:   2 * time.Second,
		readPollTimeout:   time.Second,
		writeTimeout:      5 * time.Second,
		heartbeatInterval: 30 * time.Second,
		heartbeatTimeout:  30 * time.Second,
		rateLimit:         10,
		rateWindow:        time.Second,
	}
}

// WithListenAddr makes the node accept inbound connections on addr.
// Without it the node is outbound-only.
func WithListenAddr(addr string) Option {
	return func(c *nodeConfig) { c.listenAddr = addr }
}

// WithCapacity bounds the number of simultaneous connections.
func WithCapacity(n int) Option {
	return func(c *nodeConfig) { c.capacity = n }
}

// WithConnectTimeout bounds outbound dial attempts.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *nodeConfig) { c.connectTimeout = d }
}

// WithHandshakeTimeout bounds the wait for an inbound identity frame.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *nodeConfig) { c.handshakeTimeout = d }
}

// WithReadPollTimeout sets the per-iteration read deadline in connection
// handlers. Shorter values make shutdown snappier.
func WithReadPollTimeout(d time.Duration) Option {
	return func(c *nodeConfig) { c.readPollTimeout = d }
}

// WithWriteTimeout bounds every frame write. A peer that stops reading
// fails its writes after this duration instead of blocking the writer.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *nodeConfig) { c.writeTimeout = d }
}

// WithHeartbeat sets the probe interval and the silence timeout; members
// silent for more than twice the timeout are evicted. A zero interval
// disables the monitor.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *nodeConfig) {
		c.heartbeatInterval = interval
		c.heartbeatTimeout = timeout
	}
}

// WithRateLimit caps admitted chat payloads per connection per window.
// A zero limit disables the check.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *nodeConfig) {
		c.rateLimit = limit
		c.rateWindow = window
	}
}

// WithAdminAddr serves the admin HTTP endpoints (/peers, /healthz,
// /metrics, /debug/pprof) on addr.
func WithAdminAddr(addr string) Option {
	return func(c *nodeConfig) { c.adminAddr = addr }
}

// WithFrameHandler diverts non-control inbound frames to fn instead of
// the node's Engine. Client binaries use this to print received chat
// rather than re-dispatching it.
func WithFrameHandler(fn FrameHandler) Option {
	return func(c *nodeConfig) { c.frameHandler = fn }
}
