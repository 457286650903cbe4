// Package service implements the protocol-agnostic request/response
// abstraction (C6): a typed Command/Response surface decoupled from
// transport, grounded on spec.md §4.5 and the teacher's Peer/RPC interface
// shape in pkg/mcast/core/peer.go.
package service

// Format selects how a Response body is serialized, chosen by the caller
// via Request.Accept.
type Format int

const (
	FormatJSON Format = iota
	FormatMessagePack
)

func (f Format) String() string {
	if f == FormatMessagePack {
		return "msgpack"
	}
	return "json"
}
