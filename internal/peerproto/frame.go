package peerproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultMaxMessageSizeAsClient and DefaultMaxMessageSizeAsServer mirror
// spec.md §6's configuration defaults: a client dialing out tolerates
// larger pushes from a well-behaved parent than a server exposed to
// arbitrary children.
const (
	DefaultMaxMessageSizeAsClient = 1 << 30 // 1 GiB
	DefaultMaxMessageSizeAsServer = 64 << 20 // 64 MiB
)

// FrameCodec reads and writes length-prefixed MessagePack frames over any
// io.ReadWriter — a raw TCP/WS byte stream or, in tests, an in-memory pipe.
// Each frame is a 4-byte big-endian length prefix followed by that many
// bytes of MessagePack-encoded Event.
type FrameCodec struct {
	rw             io.ReadWriter
	maxMessageSize int
}

// NewFrameCodec wraps rw, rejecting any frame (incoming or outgoing) larger
// than maxMessageSize bytes.
func NewFrameCodec(rw io.ReadWriter, maxMessageSize int) *FrameCodec {
	return &FrameCodec{rw: rw, maxMessageSize: maxMessageSize}
}

// WriteEvent encodes and writes one frame.
func (c *FrameCodec) WriteEvent(e Event) error {
	body, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("peerproto: encode event: %w", err)
	}
	if len(body) > c.maxMessageSize {
		return fmt.Errorf("peerproto: outgoing frame %d bytes exceeds max %d", len(body), c.maxMessageSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := c.rw.Write(header[:]); err != nil {
		return fmt.Errorf("peerproto: write frame header: %w", err)
	}
	if _, err := c.rw.Write(body); err != nil {
		return fmt.Errorf("peerproto: write frame body: %w", err)
	}
	return nil
}

// ReadEvent blocks for the next frame and decodes it.
func (c *FrameCodec) ReadEvent() (Event, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return Event{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if int(size) > c.maxMessageSize {
		return Event{}, fmt.Errorf("peerproto: incoming frame %d bytes exceeds max %d", size, c.maxMessageSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return Event{}, fmt.Errorf("peerproto: read frame body: %w", err)
	}
	var e Event
	if err := msgpack.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("peerproto: decode event: %w", err)
	}
	return e, nil
}
