package domain

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePayload converts a plain Go event value into a protobuf Struct so it
// can travel through ApplyChange and the event store like any generated message.
// The value must marshal to a JSON object.
func EncodePayload(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to convert payload to struct: %w", err)
	}
	return s, nil
}

// DecodePayload reverses EncodePayload for the serialized Data of a stored event.
func DecodePayload(data []byte, v any) error {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to convert payload: %w", err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
