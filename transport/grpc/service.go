package grpctransport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName and methodName name the bidirectional-streaming relay RPC.
// No .proto source produced these; the descriptors below are hand-written
// in the shape protoc-gen-go-grpc emits for a single streaming method.
const (
	serviceName = "amcp.transport.Relay"
	methodName  = "Relay"
	fullMethod  = "/" + serviceName + "/" + methodName
)

// relayServer is the server-side handler contract for the Relay method.
type relayServer interface {
	Relay(stream grpc.ServerStream) error
}

func relayStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(relayServer).Relay(stream)
}

// serviceDesc registers the Relay method on a *grpc.Server.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*relayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodName,
			Handler:       relayStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "amcp/transport/grpc/relay",
}

// relayClientStream is the client side of the Relay bidi stream.
type relayClientStream struct {
	grpc.ClientStream
}

func (s *relayClientStream) Send(msg *wrapperspb.BytesValue) error {
	return s.ClientStream.SendMsg(msg)
}

func (s *relayClientStream) Recv() (*wrapperspb.BytesValue, error) {
	msg := new(wrapperspb.BytesValue)
	if err := s.ClientStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func newRelayClientStream(ctx context.Context, conn *grpc.ClientConn) (*relayClientStream, error) {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod)
	if err != nil {
		return nil, err
	}
	return &relayClientStream{ClientStream: stream}, nil
}
