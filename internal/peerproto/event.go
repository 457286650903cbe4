// Package peerproto implements the peer event protocol (C7): the tagged
// Change|Request|Response|RemoteLocal|Error event set exchanged over a
// duplex channel between parent and child, MessagePack-encoded over a
// length-prefixed binary frame. Grounded on the wire envelope in
// pkg/mcast/protocol.go, generalized from the teacher's single-purpose
// multicast message to a five-variant peer event.
package peerproto

import (
	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/service"
)

// EventKind tags which of Event's payload fields is populated.
type EventKind string

const (
	EventChange      EventKind = "change"
	EventRequest     EventKind = "request"
	EventResponse    EventKind = "response"
	EventRemoteLocal EventKind = "remote_local"
	EventError       EventKind = "error"
)

// Event is one frame's payload. Exactly one field is populated per Kind,
// the same one-of-struct shape used by entity.Change for the same
// forward-compatibility reason: both ends of a connection may be running
// different versions.
type Event struct {
	Kind EventKind

	Change      *entity.ChangelogEntry `msgpack:",omitempty" json:",omitempty"`
	Request     *WireRequest           `msgpack:",omitempty" json:",omitempty"`
	Response    *WireResponse          `msgpack:",omitempty" json:",omitempty"`
	RemoteLocal *bus.LocalNodeEvent    `msgpack:",omitempty" json:",omitempty"`
	Error       string                 `msgpack:",omitempty" json:",omitempty"`
}

// WireRequest is service.Request flattened to a form safe to serialize:
// Operator is not itself encoded (the receiving end derives it from the
// authenticated session the frame arrived on), only the command payload
// travels.
type WireRequest struct {
	ID      [16]byte
	Accept  service.Format
	AsOwner bool
	Command service.Command
}

// WireResponse mirrors service.Response for the wire; Err, when present,
// is the same ServiceError shape service callers see locally.
type WireResponse struct {
	ID         [16]byte
	BodyFormat service.Format
	Body       []byte
	Err        *service.ServiceError `msgpack:",omitempty" json:",omitempty"`
}

func ChangeEvent(entry entity.ChangelogEntry) Event {
	return Event{Kind: EventChange, Change: &entry}
}

func RequestEvent(req WireRequest) Event {
	return Event{Kind: EventRequest, Request: &req}
}

func ResponseEvent(resp WireResponse) Event {
	return Event{Kind: EventResponse, Response: &resp}
}

func RemoteLocalEvent(e bus.LocalNodeEvent) Event {
	return Event{Kind: EventRemoteLocal, RemoteLocal: &e}
}

func ErrorEvent(message string) Event {
	return Event{Kind: EventError, Error: message}
}
