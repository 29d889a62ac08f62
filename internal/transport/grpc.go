package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shamaton/msgpack/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
)

// The exchange service has a single bidirectional stream per worker. It is
// declared by hand; frames travel as msgpack.
const (
	serviceName = "lsseft.transport.v1.Exchange"
	streamName  = "Stream"
	fullMethod  = "/" + serviceName + "/" + streamName
)

// Transport-private tags used to assign ranks when a stream opens.
const (
	tagHello   protocol.Tag = 0xFFF0
	tagWelcome protocol.Tag = 0xFFF1
)

type frame struct {
	Source int
	Dest   int
	Size   int
	Tag    uint16
	Body   []byte
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return "msgpack" }

type exchangeServer interface {
	exchange(stream grpc.ServerStream) error
}

var exchangeDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName: streamName,
		Handler: func(srv any, stream grpc.ServerStream) error {
			return srv.(exchangeServer).exchange(stream)
		},
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "lsseft/transport/v1/exchange",
}

// ============================================================================
// Master side
// ============================================================================

// Server is the master endpoint. Workers receive ranks 1..N in the order
// their streams open.
type Server struct {
	workers int
	grpc    *grpc.Server
	log     *zap.Logger

	inbox  chan protocol.Message
	lost   chan error
	joined chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	peers   map[int]*serverPeer
	next    int
	closing bool
	once    sync.Once
}

type serverPeer struct {
	mu     sync.Mutex
	stream grpc.ServerStream

	// set under Server.mu once Terminate has gone out
	retired bool
}

// NewServer prepares a master endpoint expecting workers peers.
func NewServer(workers int, opts ...grpc.ServerOption) *Server {
	s := &Server{
		workers: workers,
		log:     logger.Named("transport"),
		inbox:   make(chan protocol.Message, workers+1),
		lost:    make(chan error, workers),
		joined:  make(chan struct{}),
		done:    make(chan struct{}),
		peers:   make(map[int]*serverPeer),
	}
	opts = append(opts, grpc.ForceServerCodec(msgpackCodec{}))
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&exchangeDesc, s)
	return s
}

// Serve accepts worker streams on lis until Close.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// WaitForWorkers blocks until every worker rank is taken.
func (s *Server) WaitForWorkers(ctx context.Context) error {
	select {
	case <-s.joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *Server) exchange(stream grpc.ServerStream) error {
	var hello frame
	if err := stream.RecvMsg(&hello); err != nil {
		return err
	}
	if protocol.Tag(hello.Tag) != tagHello {
		return status.Errorf(codes.InvalidArgument, "expected hello, got tag %d", hello.Tag)
	}

	s.mu.Lock()
	if s.closing || len(s.peers) >= s.workers {
		s.mu.Unlock()
		return status.Error(codes.ResourceExhausted, "all worker ranks are taken")
	}
	s.next++
	rank := s.next
	p := &serverPeer{stream: stream}
	// held until the welcome frame is out so no phase traffic overtakes it
	p.mu.Lock()
	s.peers[rank] = p
	full := len(s.peers) == s.workers
	s.mu.Unlock()

	err := stream.SendMsg(&frame{Source: MasterRank, Dest: rank, Size: s.workers + 1, Tag: uint16(tagWelcome)})
	p.mu.Unlock()
	if err != nil {
		s.peerGone(rank, err)
		return err
	}
	s.log.Info("worker joined", zap.Int("rank", rank))
	if full {
		close(s.joined)
	}

	for {
		var f frame
		if err := stream.RecvMsg(&f); err != nil {
			s.peerGone(rank, err)
			return nil
		}
		select {
		case s.inbox <- protocol.Message{Source: rank, Tag: protocol.Tag(f.Tag), Body: f.Body}:
		case <-s.done:
			return nil
		}
	}
}

func (s *Server) peerGone(rank int, cause error) {
	s.mu.Lock()
	closing := s.closing
	retired := s.peers[rank] != nil && s.peers[rank].retired
	s.mu.Unlock()
	if closing {
		return
	}
	if retired {
		s.log.Debug("worker hung up after terminate", zap.Int("rank", rank))
		return
	}
	s.log.Warn("worker stream ended", zap.Int("rank", rank), zap.Error(cause))
	select {
	case s.lost <- fmt.Errorf("%w: rank %d: %v", ErrPeerLost, rank, cause):
	default:
	}
}

func (s *Server) Rank() int { return MasterRank }

func (s *Server) Size() int { return s.workers + 1 }

func (s *Server) Send(ctx context.Context, to int, tag protocol.Tag, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	p, ok := s.peers[to]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: rank %d", ErrUnknownPeer, to)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stream.SendMsg(&frame{Source: MasterRank, Dest: to, Tag: uint16(tag), Body: body}); err != nil {
		return fmt.Errorf("%w: rank %d: %v", ErrPeerLost, to, err)
	}
	if tag == protocol.TagTerminate {
		s.mu.Lock()
		p.retired = true
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) Recv(ctx context.Context) (protocol.Message, error) {
	// drain delivered frames before reporting a lost peer
	select {
	case msg := <-s.inbox:
		return msg, nil
	default:
	}
	select {
	case msg := <-s.inbox:
		return msg, nil
	case err := <-s.lost:
		return protocol.Message{}, err
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-s.done:
		return protocol.Message{}, ErrClosed
	}
}

// drainTimeout bounds how long Close waits for workers to hang up.
const drainTimeout = 2 * time.Second

// Close unblocks Recv and stops the gRPC server. Workers get drainTimeout to
// read their last frames and close their streams before connections are cut.
func (s *Server) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		close(s.done)

		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(drainTimeout):
			s.grpc.Stop()
			<-stopped
		}
	})
	return nil
}

// ============================================================================
// Worker side
// ============================================================================

// Client is a worker endpoint connected to a remote master.
type Client struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
	rank   int
	size   int

	sendMu sync.Mutex
	inbox  chan protocol.Message
	failed chan struct{}
	err    error
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the master at target and waits for a rank.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(msgpackCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to master %s: %w", target, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	stream, err := conn.NewStream(sctx, &exchangeDesc.Streams[0], fullMethod)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("open exchange stream: %w", err)
	}

	c := &Client{
		conn:   conn,
		stream: stream,
		cancel: cancel,
		inbox:  make(chan protocol.Message, 2),
		failed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	welcomed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-welcomed:
		}
	}()
	err = c.handshake()
	close(welcomed)
	if err != nil {
		c.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) handshake() error {
	if err := c.stream.SendMsg(&frame{Tag: uint16(tagHello)}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	var welcome frame
	if err := c.stream.RecvMsg(&welcome); err != nil {
		return fmt.Errorf("await welcome: %w", err)
	}
	if protocol.Tag(welcome.Tag) != tagWelcome {
		return fmt.Errorf("expected welcome, got tag %d", welcome.Tag)
	}
	c.rank = welcome.Dest
	c.size = welcome.Size
	return nil
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.stream.RecvMsg(&f); err != nil {
			c.err = fmt.Errorf("%w: master: %v", ErrPeerLost, err)
			close(c.failed)
			return
		}
		select {
		case c.inbox <- protocol.Message{Source: f.Source, Tag: protocol.Tag(f.Tag), Body: f.Body}:
		case <-c.done:
			return
		}
	}
}

func (c *Client) Rank() int { return c.rank }

func (c *Client) Size() int { return c.size }

func (c *Client) Send(ctx context.Context, to int, tag protocol.Tag, body []byte) error {
	if to != MasterRank {
		return fmt.Errorf("%w: workers only talk to the master, got rank %d", ErrUnknownPeer, to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(&frame{Source: c.rank, Dest: to, Tag: uint16(tag), Body: body}); err != nil {
		return fmt.Errorf("%w: master: %v", ErrPeerLost, err)
	}
	return nil
}

func (c *Client) Recv(ctx context.Context) (protocol.Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.failed:
		return protocol.Message{}, c.err
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-c.done:
		return protocol.Message{}, ErrClosed
	}
}

// Close half-closes the stream and releases the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.sendMu.Lock()
		_ = c.stream.CloseSend()
		c.sendMu.Unlock()
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
