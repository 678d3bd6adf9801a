package rpc

import (
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype under which messages travel.
const CodecName = "cbor"

type cborCodec struct{}

func (cborCodec) Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

func (cborCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(cborCodec{})
}
