package parley

// Node is the process-level chat endpoint. Every role in the collection
// is a configuration of the same Node: a server listens and never dials,
// a client dials and never listens, a hybrid peer does both. Dispatch,
// liveness and rate limiting treat inbound and outbound connections
// identically.

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FrameHandler receives non-control inbound frames when installed via
// WithFrameHandler. from is nil for node-level notices with no member
// attached (outbound greeting frames).
type FrameHandler func(from *Member, payload string)

// Node ties together a Registry, an Engine, an optional listener and an
// optional heartbeat Monitor. Construct with NewNode; Start launches the
// background loops, Stop tears everything down in order.
type Node struct {
	name    string
	cfg     nodeConfig
	reg     *Registry
	engine  *Engine
	metrics *Metrics
	monitor *Monitor
	admin   *AdminServer
	ln      net.Listener

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// stopMu orders Connect's wg.Add against Stop's close(done): a
	// Connect that passes the done check has registered with wg before
	// Stop starts waiting.
	stopMu sync.Mutex
}

// NewNode builds a node named name. The name is truncated to the display
// limit, the same rule applied to remote identities.
func NewNode(name string, opts ...Option) (*Node, error) {
	cfg := defaultNodeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	n := &Node{
		name:    truncateName(name),
		cfg:     cfg,
		reg:     NewRegistry(cfg.capacity),
		metrics: NewMetrics(),
		done:    make(chan struct{}),
	}
	n.engine = NewEngine(n.reg, n.metrics, cfg.rateLimit, cfg.rateWindow, cfg.writeTimeout)

	if cfg.listenAddr != "" {
		ln, err := net.Listen("tcp", cfg.listenAddr)
		if err != nil {
			return nil, fmt.Errorf("parley: listen on %s: %w", cfg.listenAddr, err)
		}
		n.ln = ln
	}

	if cfg.heartbeatInterval > 0 {
		n.monitor = newMonitor(n.reg, cfg.heartbeatInterval, cfg.heartbeatTimeout, cfg.writeTimeout, n.onEvicted)
	}

	if cfg.adminAddr != "" {
		admin, err := NewAdminServer(n, cfg.adminAddr)
		if err != nil {
			if n.ln != nil {
				n.ln.Close()
			}
			return nil, err
		}
		n.admin = admin
	}

	return n, nil
}

// Name returns the node's display identity.
func (n *Node) Name() string { return n.name }

// Registry exposes the node's connection store.
func (n *Node) Registry() *Registry { return n.reg }

// Engine exposes the node's dispatcher.
func (n *Node) Engine() *Engine { return n.engine }

// Addr returns the bound listen address, or empty for outbound-only nodes.
func (n *Node) Addr() string {
	if n.ln == nil {
		return ""
	}
	return n.ln.Addr().String()
}

// ListenPort returns the bound TCP port, or zero for outbound-only nodes.
func (n *Node) ListenPort() int {
	if n.ln == nil {
		return 0
	}
	if addr, ok := n.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Start launches the accept loop, the heartbeat monitor and the admin
// server. Non-blocking.
func (n *Node) Start() {
	if n.ln != nil {
		n.wg.Add(1)
		go n.acceptLoop()
		slog.Info("listening", "name", n.name, "addr", n.Addr())
	}
	if n.monitor != nil {
		n.monitor.Start()
	}
	if n.admin != nil {
		n.admin.Start()
	}
}

// Stop shuts the node down: the monitor stops first so no probe races
// teardown, every live member gets a farewell frame before its stream
// closes, the registry empties, then the listener closes to unblock the
// accept loop. Idempotent.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.stopMu.Lock()
		close(n.done)
		n.stopMu.Unlock()

		if n.monitor != nil {
			n.monitor.Stop()
		}

		farewell := fmt.Sprintf("Server: %s is shutting down", n.name)
		for _, m := range n.reg.Clear() {
			if err := SendFrame(m.Conn, farewell, n.cfg.writeTimeout); err != nil {
				slog.Debug("farewell delivery failed", "remote", m.Key, "error", err)
			}
			m.Conn.Close()
		}
		n.metrics.setConnections(0)

		if n.ln != nil {
			n.ln.Close()
		}
		if n.admin != nil {
			n.admin.Stop()
		}
		n.wg.Wait()
		slog.Info("stopped", "name", n.name)
	})
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			select {
			case <-n.done:
				return
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}
		n.wg.Add(1)
		go n.handleInbound(conn)
	}
}

// handleInbound performs the identity handshake on a freshly accepted
// stream, inserts the member, and runs its read loop. A handshake that
// times out or fails is fatal to the connection.
func (n *Node) handleInbound(conn net.Conn) {
	defer n.wg.Done()

	addr := conn.RemoteAddr().String()
	first, err := ReadFrame(conn, n.cfg.handshakeTimeout)
	if err != nil {
		slog.Warn("handshake failed", "remote", addr, "error", err)
		conn.Close()
		return
	}

	name, peerPort := parseHandshake(first, addr)
	m := &Member{
		Key:      addr,
		Conn:     conn,
		Name:     name,
		PeerPort: peerPort,
		LastSeen: time.Now(),
	}

	replaced, err := n.reg.Insert(m)
	if err != nil {
		if sendErr := SendFrame(conn, "ERROR: server is full", n.cfg.writeTimeout); sendErr != nil {
			slog.Debug("capacity notice failed", "remote", addr, "error", sendErr)
		}
		conn.Close()
		slog.Info("connection rejected at capacity", "remote", addr, "name", name)
		return
	}
	if replaced != nil {
		replaced.Conn.Close()
	}

	n.metrics.setConnections(n.reg.Len())
	slog.Info("member joined", "remote", addr, "name", m.Name, "peerPort", m.PeerPort)

	if err := SendFrame(conn, fmt.Sprintf("Welcome to the chat, %s! Use /help for commands.", m.Name), n.cfg.writeTimeout); err != nil {
		slog.Warn("welcome delivery failed", "remote", addr, "error", err)
	}
	n.engine.Broadcast(fmt.Sprintf("Server: %s joined the chat", m.Name), m.Key)

	n.memberLoop(m)
}

// parseHandshake interprets the first inbound frame. USERNAME:<name>
// declares a plain identity; SETUP:<name>:<port> additionally advertises
// a callback listen port. Anything else falls back to an address-derived
// identity and the frame is consumed.
func parseHandshake(first, addr string) (name string, peerPort int) {
	switch {
	case strings.HasPrefix(first, "USERNAME:"):
		declared := strings.TrimPrefix(first, "USERNAME:")
		if declared != "" {
			return truncateName(declared), 0
		}
	case strings.HasPrefix(first, "SETUP:"):
		parts := strings.SplitN(strings.TrimPrefix(first, "SETUP:"), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			port, err := strconv.Atoi(parts[1])
			if err == nil && port >= 1 && port <= 65535 {
				return truncateName(parts[0]), port
			}
		}
	}
	return defaultIdentity(addr), 0
}

// defaultIdentity derives Peer_<port> from the remote address.
func defaultIdentity(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "Peer_" + addr
	}
	return "Peer_" + port
}

// Connect dials host:port, introduces this node, and registers the
// resulting stream as a member. A node with a bound listener introduces
// itself with SETUP so the remote can call back; an outbound-only node
// sends a plain USERNAME identity. Connect fails once Stop has begun.
func (n *Node) Connect(host string, port int) (*Member, error) {
	n.stopMu.Lock()
	select {
	case <-n.done:
		n.stopMu.Unlock()
		return nil, fmt.Errorf("parley: node is stopped")
	default:
	}
	n.wg.Add(1)
	n.stopMu.Unlock()

	handedOff := false
	defer func() {
		if !handedOff {
			n.wg.Done()
		}
	}()

	key := net.JoinHostPort(host, strconv.Itoa(port))
	if n.reg.Get(key) != nil {
		return nil, fmt.Errorf("parley: already connected to %s", key)
	}

	conn, err := net.DialTimeout("tcp", key, n.cfg.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("parley: connect to %s: %w", key, err)
	}

	var hello string
	if lp := n.ListenPort(); lp > 0 {
		hello = fmt.Sprintf("SETUP:%s:%d", n.name, lp)
	} else {
		hello = fmt.Sprintf("USERNAME:%s", n.name)
	}
	if err := SendFrame(conn, hello, n.cfg.writeTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	// The remote's welcome is informational. Not receiving one in time is
	// fine; any other failure means the stream is already broken.
	greeting, err := ReadFrame(conn, n.cfg.greetingTimeout)
	switch {
	case err == nil:
		n.emit(nil, greeting)
	case IsTimeout(err):
	default:
		conn.Close()
		return nil, fmt.Errorf("parley: greeting from %s: %w", key, err)
	}

	m := &Member{
		Key:      key,
		Conn:     conn,
		Name:     "Peer_" + strconv.Itoa(port),
		PeerPort: port,
		Outbound: true,
		LastSeen: time.Now(),
	}
	replaced, err := n.reg.Insert(m)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if replaced != nil {
		replaced.Conn.Close()
	}
	n.metrics.setConnections(n.reg.Len())
	slog.Info("connected", "remote", key)

	handedOff = true
	go func() {
		defer n.wg.Done()
		n.memberLoop(m)
	}()
	return m, nil
}

// Disconnect closes the connection identified by key, sending a /quit
// notice first so the remote logs a clean departure.
func (n *Node) Disconnect(key string) error {
	m := n.reg.Remove(key)
	if m == nil {
		return fmt.Errorf("parley: no connection to %s", key)
	}
	if err := SendFrame(m.Conn, "/quit", n.cfg.writeTimeout); err != nil {
		slog.Debug("quit notice failed", "remote", key, "error", err)
	}
	m.Conn.Close()
	n.metrics.setConnections(n.reg.Len())
	return nil
}

// SendTo writes one frame to the connection identified by key.
func (n *Node) SendTo(key, text string) error {
	m := n.reg.Get(key)
	if m == nil {
		return fmt.Errorf("parley: no connection to %s", key)
	}
	return SendFrame(m.Conn, text, n.cfg.writeTimeout)
}

// BroadcastText fans text out to every connection and returns the
// delivery count.
func (n *Node) BroadcastText(text string) int {
	return n.engine.Broadcast(text, "")
}

// memberLoop reads frames from m until the stream ends, the node stops,
// or dispatch asks for disconnection. Control frames are answered here;
// everything else goes to the installed frame handler or the Engine.
func (n *Node) memberLoop(m *Member) {
	defer func() {
		if removed := n.reg.Remove(m.Key); removed != nil {
			n.metrics.setConnections(n.reg.Len())
			n.engine.Broadcast(fmt.Sprintf("Server: %s left the chat", m.Name), m.Key)
			slog.Info("member left", "remote", m.Key, "name", m.Name)
		}
		m.Conn.Close()
	}()

	for {
		select {
		case <-n.done:
			return
		default:
		}

		payload, err := ReadFrame(m.Conn, n.cfg.readPollTimeout)
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, ErrFrameTooLarge) {
				n.metrics.frameRejected()
			}
			slog.Warn("read failed", "remote", m.Key, "name", m.Name, "error", err)
			return
		}

		n.reg.Touch(m.Key, time.Now())
		n.metrics.frameReceived()

		switch payload {
		case pingFrame:
			if err := SendFrame(m.Conn, pongFrame, n.cfg.writeTimeout); err != nil {
				slog.Warn("pong delivery failed", "remote", m.Key, "error", err)
				return
			}
			continue
		case pongFrame:
			continue
		}

		if n.cfg.frameHandler != nil {
			n.cfg.frameHandler(m, payload)
			continue
		}
		if quit := n.engine.Dispatch(m, payload); quit {
			return
		}
	}
}

// onEvicted runs after the Monitor removed a member. The record is
// already out of the Registry, so the departure broadcast cannot reach
// the evicted stream.
func (n *Node) onEvicted(m *Member) {
	n.metrics.setConnections(n.reg.Len())
	n.metrics.evicted()
	n.engine.Broadcast(fmt.Sprintf("Server: %s left the chat", m.Name), m.Key)
}

// emit routes a node-level notice to the frame handler, or logs it.
func (n *Node) emit(from *Member, payload string) {
	if n.cfg.frameHandler != nil {
		n.cfg.frameHandler(from, payload)
		return
	}
	slog.Info("server message", "payload", payload)
}
