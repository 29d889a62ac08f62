// ============================================================================
// LSSEFT Transport - peer-to-peer message passing
// ============================================================================
//
// Package: internal/transport
// File: transport.go
// Purpose: The Endpoint abstraction used by master and workers.
//
// Ranks:
//   0 is the master, 1..N are workers. Worker number w maps to rank w+1.
//
// Guarantees:
//   - Messages between one pair of peers arrive in send order.
//   - Recv returns the next message from any peer, whichever source it
//     came from, and blocks until one arrives or ctx ends.
//
// Implementations:
//   Network  in-process mailboxes, for standalone runs and tests
//   Server   gRPC stream endpoint for the master
//   Client   gRPC stream endpoint for a remote worker
//
// ============================================================================

package transport

import (
	"context"
	"errors"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
)

// MasterRank is the rank of the master peer.
const MasterRank = 0

var (
	ErrClosed      = errors.New("transport closed")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrPeerLost    = errors.New("peer lost")
)

// Endpoint is one peer's view of the communicator.
type Endpoint interface {
	Rank() int
	// Size counts every peer, master included.
	Size() int
	Send(ctx context.Context, to int, tag protocol.Tag, body []byte) error
	Recv(ctx context.Context) (protocol.Message, error)
	Close() error
}

// WorkerRank converts a worker number to its rank.
func WorkerRank(w int) int { return w + 1 }

// WorkerNumber converts a rank to its worker number.
func WorkerNumber(rank int) int { return rank - 1 }
