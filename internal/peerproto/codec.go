package peerproto

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeEvent marshals e to MessagePack without any length prefix, for
// carriers that are already message-oriented (a WebSocket text/binary
// frame, an SSE "data:" line).
func EncodeEvent(e Event) ([]byte, error) {
	body, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("peerproto: encode event: %w", err)
	}
	return body, nil
}

// DecodeEvent is EncodeEvent's inverse.
func DecodeEvent(body []byte) (Event, error) {
	var e Event
	if err := msgpack.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("peerproto: decode event: %w", err)
	}
	return e, nil
}
