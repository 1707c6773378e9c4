package handshake

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName — content-subtype сообщений (application/grpc+json).
const codecName = "json"

// jsonCodec сериализует сообщения gRPC в JSON.
type jsonCodec struct{}

var _ encoding.Codec = jsonCodec{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
