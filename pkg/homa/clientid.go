package homa

import "github.com/google/uuid"

// NewClientID derives a ClientID from a freshly generated random UUID,
// hashing its string form into 64 bits with FNV-1a (addressHash). Homa's wire format only
// budgets 64 bits for a client identity (rpcid.go), so callers that would
// otherwise reach for a UUID as their process/session identity (as the
// packaged transport-discovery and routing types do) can still get one
// without spending a full 128 bits on the wire.
func NewClientID() uint64 {
	id := uuid.New()
	return addressHash(uuidAddr(id))
}

type uuidAddr uuid.UUID

func (u uuidAddr) String() string { return uuid.UUID(u).String() }
