package client

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mnehpets/nsrpc/jsonrpc"
)

// IDGenerator hands out request correlation ids. Ids must not repeat for the
// lifetime of a Client.
type IDGenerator interface {
	Next() jsonrpc.ID
}

// SequentialIDs yields 1, 2, 3, ... It is the default generator.
type SequentialIDs struct {
	n atomic.Uint64
}

func (s *SequentialIDs) Next() jsonrpc.ID {
	return jsonrpc.NumberID(s.n.Add(1))
}

// UUIDIDs yields random UUID strings.
type UUIDIDs struct{}

func (UUIDIDs) Next() jsonrpc.ID {
	return jsonrpc.StringID(uuid.NewString())
}
