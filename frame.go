package parley

// Framed transport: every wire unit is a 4-byte big-endian unsigned length
// prefix followed by that many bytes of UTF-8 text.
//
// Invariants:
//   - Payload length is capped at MaxFramePayload (40960 bytes). A claimed
//     length above the cap is a protocol violation and fatal to the
//     connection; the frame body is never read.
//   - Header and body reads tolerate arbitrary fragmentation (io.ReadFull
//     accumulates short reads), so a frame split into 1-byte deliveries
//     decodes identically to one delivered whole.
//   - A read deadline expiring mid-wait means "nothing arrived yet" and is
//     reported as a timeout error, distinguishable via IsTimeout. EOF and
//     every other I/O error are fatal to that connection.
//   - Every write is bounded by a deadline. If the peer stops reading, the
//     write fails after the timeout instead of blocking forever, so one
//     stalled connection can never wedge a broadcast pass or the liveness
//     sweep.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxFramePayload is the upper bound on a single frame's payload.
// Frames claiming more than this are rejected without reading the body.
const MaxFramePayload = 40960

// frameHeaderSize is the length prefix width on the wire.
const frameHeaderSize = 4

// ErrFrameTooLarge reports a length prefix exceeding MaxFramePayload.
// Fatal to the connection that produced it.
var ErrFrameTooLarge = errors.New("parley: frame exceeds maximum payload size")

// SendFrame writes one length-prefixed frame to conn, waiting at most
// timeout for the write to complete. A zero timeout blocks indefinitely.
// The length prefix and body go out in a single Write so a frame is never
// interleaved with another writer's bytes at the syscall boundary.
func SendFrame(conn net.Conn, text string, timeout time.Duration) error {
	body := []byte(text)
	if len(body) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[:frameHeaderSize], uint32(len(body)))
	copy(buf[frameHeaderSize:], body)
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("parley: frame write: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from conn, waiting at most timeout for it to
// arrive. A zero timeout blocks indefinitely.
//
// The returned error is nil only when a complete frame was decoded. Callers
// must treat IsTimeout errors as "nothing yet" and every other error as
// fatal to the connection.
func ReadFrame(conn net.Conn, timeout time.Duration) (string, error) {
	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return "", readError("frame header", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFramePayload {
		return "", fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, length)
	}
	if length == 0 {
		return "", nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return "", readError("frame body", err)
	}
	return string(body), nil
}

// readError normalizes read failures. An EOF on the very first header byte
// is a clean disconnect and passes through as io.EOF; a partial header or
// body is an incomplete frame.
func readError(stage string, err error) error {
	if err == io.EOF {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("parley: incomplete %s: %w", stage, err)
	}
	return fmt.Errorf("parley: %s read: %w", stage, err)
}

// IsTimeout reports whether err is a read-deadline expiry rather than a
// real failure. Timeouts outside the handshake are not fatal.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
