package encoding

import (
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype served by Codec
const CodecName = "msgpack"

// Codec lets gRPC carry plain Go structs as msgpack instead of protobuf
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal implements encoding.Codec
func (Codec) Marshal(v any) ([]byte, error) {
	return Marshal(v)
}

// Unmarshal implements encoding.Codec
func (Codec) Unmarshal(data []byte, v any) error {
	return Unmarshal(data, v)
}

// Name implements encoding.Codec
func (Codec) Name() string {
	return CodecName
}
