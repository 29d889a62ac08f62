package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
)

// Network is an in-process communicator with one buffered mailbox per rank.
type Network struct {
	boxes  []chan protocol.Message
	closed chan struct{}
	once   sync.Once
}

// NewNetwork creates a master plus workers peers.
func NewNetwork(workers int) *Network {
	n := &Network{
		boxes:  make([]chan protocol.Message, workers+1),
		closed: make(chan struct{}),
	}
	// the master mailbox holds one pending message per worker
	n.boxes[MasterRank] = make(chan protocol.Message, workers+1)
	for r := 1; r <= workers; r++ {
		n.boxes[r] = make(chan protocol.Message, 2)
	}
	return n
}

// Endpoint returns the view of rank r.
func (n *Network) Endpoint(r int) *LocalEndpoint {
	return &LocalEndpoint{net: n, rank: r}
}

// Close unblocks every pending Send and Recv with ErrClosed.
func (n *Network) Close() {
	n.once.Do(func() { close(n.closed) })
}

// LocalEndpoint is one peer on a Network.
type LocalEndpoint struct {
	net  *Network
	rank int
}

func (e *LocalEndpoint) Rank() int { return e.rank }

func (e *LocalEndpoint) Size() int { return len(e.net.boxes) }

func (e *LocalEndpoint) Send(ctx context.Context, to int, tag protocol.Tag, body []byte) error {
	if to < 0 || to >= len(e.net.boxes) {
		return fmt.Errorf("%w: rank %d", ErrUnknownPeer, to)
	}
	msg := protocol.Message{Source: e.rank, Tag: tag, Body: body}
	select {
	case <-e.net.closed:
		return ErrClosed
	default:
	}
	select {
	case e.net.boxes[to] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.net.closed:
		return ErrClosed
	}
}

func (e *LocalEndpoint) Recv(ctx context.Context) (protocol.Message, error) {
	select {
	case msg := <-e.net.boxes[e.rank]:
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-e.net.closed:
		return protocol.Message{}, ErrClosed
	}
}

// Close is a no-op for a single endpoint; close the Network instead.
func (e *LocalEndpoint) Close() error { return nil }
