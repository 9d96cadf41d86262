package proofprovider

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// jsonCodecName registers a JSON content-subtype codec for the proving
// network's gRPC service. The service's real .proto defines protobuf wire
// messages (out of scope per spec §1: the prover itself is referenced only
// as an opaque service); this codec lets the client speak to it without
// depending on generated stub code this repo doesn't own, the same way
// grpc-gateway services are often dual-homed behind a pluggable codec.
// Well-known protobuf types (e.g. the Empty replies) still take the proto
// wire path.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
