// Package grpctransport relays events between two mesh processes over
// gRPC, so a bus.Bus in one process can reach subscribers running in
// another. It wraps a local bus.Bus (typically a bus.InProcess) and a
// gRPC connection to a peer: every Publish is delivered locally and, for
// topics matching a pattern registered with RelayTopic, forwarded across
// the wire; every
// event the peer forwards to us is republished onto the local bus.
//
// Relayed events travel as a JSON-encoded envelope inside a
// wrapperspb.BytesValue: an opaque payload carried by a real protobuf
// message rather than one generated from a service-specific .proto file.
// No .proto-generated message type exists for this service; the relay
// method's ServiceDesc/StreamDesc is hand-written in the shape
// protoc-gen-go-grpc would emit.
package grpctransport
