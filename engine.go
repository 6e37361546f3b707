package parley

// Message engine: classifies each inbound payload as command or chat,
// executes commands against the Registry, and fans chat out to everyone
// including the sender. Replies to the issuing connection never go
// through broadcast.

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const helpText = `Available commands:
/quit              disconnect from the chat
/list              list connected users
/ping              liveness check (replies PONG)
/help              show this help
/getpeer <name>    look up a peer's callback address
/pm <name> <text>  send a private message
/peers             list peers with their addresses`

// Engine dispatches inbound payloads for one Node. Safe for concurrent
// use by multiple connection handlers.
type Engine struct {
	reg          *Registry
	metrics      *Metrics
	rateLimit    int
	rateWindow   time.Duration
	writeTimeout time.Duration
}

// NewEngine builds an Engine over reg. A limit of zero disables rate
// limiting; writeTimeout bounds every outbound frame write.
func NewEngine(reg *Registry, metrics *Metrics, limit int, window, writeTimeout time.Duration) *Engine {
	return &Engine{
		reg:          reg,
		metrics:      metrics,
		rateLimit:    limit,
		rateWindow:   window,
		writeTimeout: writeTimeout,
	}
}

// Dispatch routes one payload from m. It returns true when the payload
// asked for disconnection (/quit); the caller then tears the connection
// down.
func (e *Engine) Dispatch(m *Member, payload string) (quit bool) {
	if strings.HasPrefix(payload, "/") {
		return e.command(m, payload)
	}

	now := time.Now()
	if !e.reg.Admit(m.Key, e.rateLimit, e.rateWindow, now) {
		e.metrics.rateLimited()
		e.reply(m, "ERROR: rate limit exceeded, message discarded")
		return false
	}

	e.Broadcast(DecorateChat(m, payload, now), "")
	return false
}

// DecorateChat renders a chat payload in the shared wire presentation:
// a color tag, a wall-clock timestamp, the sender's name, then the text.
// Receivers strip the tag locally to pick their rendering color.
func DecorateChat(m *Member, text string, now time.Time) string {
	return fmt.Sprintf("[COLOR:%d][%s] %s: %s", m.Color, now.Format("15:04"), m.Name, text)
}

func (e *Engine) command(m *Member, payload string) (quit bool) {
	fields := strings.Fields(payload)
	cmd := fields[0]

	switch cmd {
	case "/quit":
		e.reply(m, "Disconnecting...")
		return true

	case "/list":
		names := make([]string, 0, e.reg.Len())
		for _, member := range e.reg.Snapshot() {
			names = append(names, member.Name)
		}
		e.reply(m, "Connected users: "+strings.Join(names, ", "))

	case "/ping":
		e.reply(m, pongFrame)

	case "/help":
		e.reply(m, helpText)

	case "/getpeer":
		if len(fields) < 2 {
			e.reply(m, "ERROR: usage: /getpeer <name>")
			return false
		}
		target := e.reg.Lookup(fields[1])
		if target == nil {
			e.reply(m, fmt.Sprintf("ERROR: peer not found: %s", fields[1]))
			return false
		}
		e.reply(m, fmt.Sprintf("PEER_INFO:%s:%s:%d", target.Name, target.Host(), target.PeerPort))

	case "/pm":
		if len(fields) < 3 {
			e.reply(m, "ERROR: usage: /pm <name> <text>")
			return false
		}
		target := e.reg.Lookup(fields[1])
		if target == nil {
			e.reply(m, fmt.Sprintf("ERROR: peer not found: %s", fields[1]))
			return false
		}
		text := strings.TrimSpace(strings.TrimPrefix(payload, cmd))
		text = strings.TrimSpace(strings.TrimPrefix(text, fields[1]))
		if err := SendFrame(target.Conn, fmt.Sprintf("[PM od %s] %s", m.Name, text), e.writeTimeout); err != nil {
			e.reply(m, fmt.Sprintf("ERROR: delivery to %s failed", target.Name))
			return false
		}
		e.reply(m, fmt.Sprintf("PM delivered to %s", target.Name))

	case "/peers":
		peers := e.reg.Snapshot()
		if len(peers) == 0 {
			e.reply(m, "No peers connected")
			return false
		}
		lines := make([]string, 0, len(peers))
		for _, p := range peers {
			lines = append(lines, fmt.Sprintf("%s (%s:%d)", p.Name, p.Host(), p.PeerPort))
		}
		e.reply(m, strings.Join(lines, "\n"))

	default:
		e.reply(m, fmt.Sprintf("ERROR: unknown command %s. Use /help", cmd))
	}
	return false
}

// Broadcast fans message out over a snapshot, skipping excludeKey (empty
// means nobody — the sender hears their own chat back). Each write is
// deadline-bounded: a member whose stream rejects or stalls the write is
// removed and closed after the pass, and the pass continues to the rest
// of the snapshot. The pass itself never mutates the Registry. Returns
// the delivery count.
func (e *Engine) Broadcast(message, excludeKey string) int {
	var failed []string
	delivered := 0

	for _, m := range e.reg.Snapshot() {
		if m.Key == excludeKey {
			continue
		}
		if err := SendFrame(m.Conn, message, e.writeTimeout); err != nil {
			slog.Warn("broadcast delivery failed", "remote", m.Key, "name", m.Name, "error", err)
			failed = append(failed, m.Key)
			continue
		}
		delivered++
	}

	e.metrics.broadcastDelivered(delivered, len(failed))

	for _, key := range failed {
		if removed := e.reg.Remove(key); removed != nil {
			removed.Conn.Close()
		}
	}
	return delivered
}

func (e *Engine) reply(m *Member, text string) {
	if err := SendFrame(m.Conn, text, e.writeTimeout); err != nil {
		slog.Warn("reply failed", "remote", m.Key, "error", err)
	}
}
