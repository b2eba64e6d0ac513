package grpctransport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/event"
)

// relayedMetadataKey marks an event that arrived over the wire, so
// PeerBus.Publish doesn't forward it straight back out to the peer it
// came from.
const relayedMetadataKey = "amcp.relayed"

// sender abstracts the two kinds of relay stream PeerBus writes to: a
// client stream it dialed out, or a server stream a peer dialed into us.
type sender interface {
	Send(*wrapperspb.BytesValue) error
}

// PeerBus wraps a local bus.Bus and relays events matching a configured
// set of patterns to every connected peer, while republishing whatever a
// peer relays to us onto the local bus. It implements bus.Bus itself so
// callers can use it as a drop-in distributed bus.
type PeerBus struct {
	local  bus.Bus
	logger *slog.Logger

	relayPatterns []event.Pattern

	mu      sync.Mutex
	peers   map[string]sender
	cancels map[string]context.CancelFunc

	grpcServer *grpc.Server
	listener   net.Listener
}

// relayServerImpl implements relayServer, dispatching each accepted
// stream back into PeerBus's inbound/outbound loops.
type relayServerImpl struct {
	bus *PeerBus
}

// NewPeerBus constructs a PeerBus over local. logger may be nil.
func NewPeerBus(local bus.Bus, logger *slog.Logger) *PeerBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerBus{
		local:   local,
		logger:  logger,
		peers:   make(map[string]sender),
		cancels: make(map[string]context.CancelFunc),
	}
}

// RelayTopic marks pattern as one whose matching events should be
// forwarded to every connected peer.
func (b *PeerBus) RelayTopic(pattern event.Pattern) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relayPatterns = append(b.relayPatterns, pattern)
}

func (b *PeerBus) shouldRelay(topic string) bool {
	for _, p := range b.relayPatterns {
		if p.Match(topic) {
			return true
		}
	}
	return false
}

// Start starts the wrapped local bus. Listen and Dial manage the gRPC
// side separately, since a PeerBus can be a listener, a dialer, or both.
func (b *PeerBus) Start(ctx context.Context) error {
	return b.local.Start(ctx)
}

// Publish delegates to the local bus, then forwards evt to every
// connected peer if its topic matches a relayed pattern and it did not
// itself arrive from a peer.
func (b *PeerBus) Publish(ctx context.Context, evt event.Event) error {
	if err := b.local.Publish(ctx, evt); err != nil {
		return err
	}
	if evt.Metadata()[relayedMetadataKey] == "true" {
		return nil
	}
	if !b.shouldRelay(evt.Topic()) {
		return nil
	}
	b.broadcast(evt)
	return nil
}

func (b *PeerBus) broadcast(evt event.Event) {
	msg, err := encodeEvent(evt)
	if err != nil {
		b.logger.Warn("grpctransport: failed to encode event for relay", "topic", evt.Topic(), "error", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for addr, s := range b.peers {
		if err := s.Send(msg); err != nil {
			b.logger.Warn("grpctransport: failed to send to peer, dropping", "peer", addr, "error", err)
		}
	}
}

func (b *PeerBus) Subscribe(subscriberID string, pattern event.Pattern, handler bus.Handler, opts ...bus.SubscribeOption) (bus.Handle, error) {
	return b.local.Subscribe(subscriberID, pattern, handler, opts...)
}

func (b *PeerBus) Unsubscribe(h bus.Handle) error {
	return b.local.Unsubscribe(h)
}

// Shutdown stops accepting peer connections, closes every peer stream,
// and shuts down the local bus.
func (b *PeerBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	for addr, cancel := range b.cancels {
		cancel()
		delete(b.cancels, addr)
	}
	b.peers = make(map[string]sender)
	b.mu.Unlock()

	if b.grpcServer != nil {
		b.grpcServer.GracefulStop()
	}
	return b.local.Shutdown(ctx)
}

// Listen starts accepting relay connections from peers on addr.
func (b *PeerBus) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpctransport: listen on %s: %w", addr, err)
	}
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	srv.RegisterService(&serviceDesc, &relayServerImpl{bus: b})

	b.grpcServer = srv
	b.listener = lis

	go func() {
		b.logger.Info("grpctransport: relay server listening", "addr", addr)
		if err := srv.Serve(lis); err != nil {
			b.logger.Warn("grpctransport: relay server stopped", "error", err)
		}
	}()
	return nil
}

// Relay is relayServer's method, invoked once per peer connection
// accepted by Listen. It registers the stream as a broadcast target and
// republishes everything it receives onto the local bus until the peer
// disconnects.
func (r *relayServerImpl) Relay(stream grpc.ServerStream) error {
	adapter := serverStreamAdapter{stream}
	key := fmt.Sprintf("inbound-%p", stream)
	return r.bus.serveStream(key, adapter, adapter)
}

// serverStreamAdapter lets a grpc.ServerStream satisfy the small
// Send/Recv surface serveStream needs, matching relayClientStream's
// shape without embedding a client-only type.
type serverStreamAdapter struct {
	grpc.ServerStream
}

func (s serverStreamAdapter) Send(msg *wrapperspb.BytesValue) error {
	return s.ServerStream.SendMsg(msg)
}

func (s serverStreamAdapter) Recv() (*wrapperspb.BytesValue, error) {
	msg := new(wrapperspb.BytesValue)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

type streamer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
}

// Dial connects to a peer's relay server and registers it as a
// broadcast target, reading its relayed events onto the local bus until
// ctx is cancelled or the connection drops.
func (b *PeerBus) Dial(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("grpctransport: dial %s: %w", addr, err)
	}
	stream, err := newRelayClientStream(ctx, conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("grpctransport: open relay stream to %s: %w", addr, err)
	}
	return b.serveStream(addr, stream, stream)
}

// serveStream registers s as a broadcast target under key and runs its
// receive loop until the stream ends.
func (b *PeerBus) serveStream(key string, registerAs sender, s streamer) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.peers[key] = registerAs
	b.cancels[key] = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.peers, key)
		delete(b.cancels, key)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg, err := s.Recv()
		if err != nil {
			b.logger.Info("grpctransport: peer stream closed", "peer", key, "error", err)
			return err
		}
		evt, err := decodeEvent(msg)
		if err != nil {
			b.logger.Warn("grpctransport: dropping malformed relayed event", "peer", key, "error", err)
			continue
		}
		ctorOpts := []event.Option{
			event.WithID(evt.ID()),
			event.WithSender(evt.Sender()),
			event.WithCorrelationID(evt.CorrelationID()),
			event.WithTraceID(evt.TraceID()),
			event.WithTimestamp(evt.Timestamp()),
			event.WithDeliveryOptions(evt.DeliveryOptions()),
		}
		for k, v := range evt.Metadata() {
			ctorOpts = append(ctorOpts, event.WithMetadata(k, v))
		}
		ctorOpts = append(ctorOpts, event.WithMetadata(relayedMetadataKey, "true"))
		evt = event.New(evt.Topic(), evt.Payload(), ctorOpts...)
		if err := b.local.Publish(context.Background(), evt); err != nil {
			b.logger.Warn("grpctransport: failed to republish relayed event locally", "peer", key, "topic", evt.Topic(), "error", err)
		}
	}
}
