package parley

// Liveness monitoring. A Monitor periodically sweeps a Registry snapshot:
// members silent for more than twice the heartbeat timeout are evicted;
// everyone else is probed with a literal PING control frame, and a probe
// that cannot even be written marks the member unreachable and evicts it
// too. Heartbeat freshness is not limited to PONG replies — any inbound
// traffic refreshes LastSeen (see Node.memberLoop).

import (
	"log/slog"
	"sync"
	"time"
)

// Control frames, matched exactly on the wire and distinguished from chat
// text and commands.
const (
	pingFrame = "PING"
	pongFrame = "PONG"
)

// Monitor drives the periodic liveness sweep. Construct with newMonitor;
// Start launches the background goroutine, Stop is idempotent.
type Monitor struct {
	reg          *Registry
	interval     time.Duration
	timeout      time.Duration
	writeTimeout time.Duration
	onEvict      func(m *Member) // called after removal, outside the Registry lock

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newMonitor(reg *Registry, interval, timeout, writeTimeout time.Duration, onEvict func(*Member)) *Monitor {
	return &Monitor{
		reg:          reg,
		interval:     interval,
		timeout:      timeout,
		writeTimeout: writeTimeout,
		onEvict:      onEvict,
		done:         make(chan struct{}),
	}
}

// Start begins the sweep loop. Non-blocking.
func (mo *Monitor) Start() {
	mo.wg.Add(1)
	go mo.loop()
}

// Stop signals the loop and waits for it to exit. Safe to call twice.
func (mo *Monitor) Stop() {
	mo.stopOnce.Do(func() {
		close(mo.done)
		mo.wg.Wait()
	})
}

func (mo *Monitor) loop() {
	defer mo.wg.Done()
	ticker := time.NewTicker(mo.interval)
	defer ticker.Stop()

	for {
		select {
		case <-mo.done:
			return
		case <-ticker.C:
			mo.sweep(time.Now())
		}
	}
}

// sweep probes one snapshot. All I/O happens with the Registry lock
// released; evictions are applied afterwards by key. Probe writes are
// deadline-bounded, so a peer that stops reading fails its probe and is
// evicted instead of stalling the sweep.
func (mo *Monitor) sweep(now time.Time) {
	var stale []string

	for _, m := range mo.reg.Snapshot() {
		if now.Sub(m.LastSeen) > 2*mo.timeout {
			slog.Info("heartbeat timeout", "remote", m.Key, "name", m.Name,
				"silent", now.Sub(m.LastSeen).Round(time.Second))
			stale = append(stale, m.Key)
			continue
		}
		if err := SendFrame(m.Conn, pingFrame, mo.writeTimeout); err != nil {
			slog.Warn("heartbeat probe failed", "remote", m.Key, "error", err)
			stale = append(stale, m.Key)
		}
	}

	for _, key := range stale {
		removed := mo.reg.Remove(key)
		if removed == nil {
			continue // already gone; the handler beat us to it
		}
		removed.Conn.Close()
		if mo.onEvict != nil {
			mo.onEvict(removed)
		}
	}
}
