package parley

import (
	"net"
	"time"
)

// maxNameLen caps a declared display name. Longer names are truncated,
// never rejected.
const maxNameLen = 20

// colorPalette holds the ANSI color codes assigned round-robin to members
// at insertion. The code travels on the wire inside the decorated chat
// frame ([COLOR:<code>]...) so every receiver renders a sender the same way.
var colorPalette = []int{31, 32, 33, 34, 35, 36}

// Member is one live connection's record. The Registry owns the record
// exclusively once inserted; handlers read and mutate it only through
// Registry methods, never through a retained copy.
type Member struct {
	// Key is the remote address: conn.RemoteAddr() for accepted
	// connections, the dialed host:port for outbound ones.
	Key  string
	Conn net.Conn

	// Name is the declared display identity, truncated to maxNameLen.
	Name string

	// PeerPort is the remote's advertised secondary listen port from a
	// SETUP handshake, for P2P callback. Zero when not declared.
	PeerPort int

	// Outbound records which side dialed. Incidental metadata: dispatch,
	// broadcast and liveness treat both directions identically.
	Outbound bool

	// LastSeen is refreshed by any inbound traffic, not just PONG.
	LastSeen time.Time

	// Sliding rate window, mutated only under the Registry lock.
	windowStart time.Time
	windowCount int

	// Color is the ANSI code assigned once at insertion.
	Color int
}

// Host returns the IP/host portion of the member's key.
func (m *Member) Host() string {
	host, _, err := net.SplitHostPort(m.Key)
	if err != nil {
		return m.Key
	}
	return host
}

// truncateName enforces maxNameLen in runes, so multi-byte names are not
// cut mid-character.
func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > maxNameLen {
		return string(runes[:maxNameLen])
	}
	return name
}
