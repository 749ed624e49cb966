package admin

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc/encoding.Codec that marshals messages as JSON instead
// of protobuf. Registered under the "json" name so a server (and any admin
// client dialed with grpc.CallContentSubtype("json")) negotiates
// "application/grpc+json" without any .proto-generated stubs — there is no
// protoc in this build environment, and every message this service
// exchanges is a plain Go struct anyway.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("admin: json marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("admin: json unmarshal: %w", err)
	}
	return nil
}

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
