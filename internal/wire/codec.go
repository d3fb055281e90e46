package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Encode packs v as msgpack inside a protobuf BytesValue so it can travel
// over the default gRPC codec.
func Encode(v any) (*wrapperspb.BytesValue, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode %T: %w", v, err)
	}
	return wrapperspb.Bytes(b), nil
}

// Decode unpacks a BytesValue produced by Encode into v.
func Decode(in *wrapperspb.BytesValue, v any) error {
	if in == nil {
		return fmt.Errorf("msgpack decode %T: empty envelope", v)
	}
	if err := msgpack.Unmarshal(in.GetValue(), v); err != nil {
		return fmt.Errorf("msgpack decode %T: %w", v, err)
	}
	return nil
}
