package service

import (
	"github.com/google/uuid"

	"github.com/cotoami/cotoami-go/internal/perm"
)

// Request is one call into a NodeService: From identifies the caller's
// capability set, AsOwner asks the server to substitute From with its own
// owner operator for this call only (refused unless From already has owner
// privilege), and Accept selects the Response body's encoding.
type Request struct {
	ID      uuid.UUID
	From    perm.Operator
	Accept  Format
	AsOwner bool
	Command Command
}

// Response always echoes Request.ID so a multiplexed transport (the peer
// event protocol, §4.6) can route it back to the right waiter. Exactly one
// of Body / Err is meaningful.
type Response struct {
	ID         uuid.UUID
	BodyFormat Format
	Body       []byte
	Err        *ServiceError `msgpack:",omitempty" json:",omitempty"`
}

func (r Response) IsOK() bool { return r.Err == nil }

// Service is the transport-agnostic surface every caller — a local HTTP
// handler, a parent-routed proxy (§4.8), a test harness — calls through.
type Service interface {
	Call(req Request) Response
}
