package payload

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec flags, stored in the 4 bit flags field of user frames
const (
	FlagRaw     uint8 = 0x0
	FlagJSON    uint8 = 0x1
	FlagMsgpack uint8 = 0x2
)

var (
	ErrUnknownCodec = errors.New("payload: unknown codec")
	ErrRawType      = errors.New("payload: raw codec handles []byte and string only")
)

// Codec turns application values into frame payloads.
type Codec interface {
	Name() string
	Flag() uint8
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type rawCodec struct{}

func (rawCodec) Name() string { return "raw" }
func (rawCodec) Flag() uint8  { return FlagRaw }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrRawType, v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	switch out := v.(type) {
	case *[]byte:
		*out = append((*out)[:0], data...)
	case *string:
		*out = string(data)
	default:
		return fmt.Errorf("%w: got %T", ErrRawType, v)
	}
	return nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Flag() uint8                        { return FlagJSON }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) Flag() uint8                        { return FlagMsgpack }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var (
	Raw     Codec = rawCodec{}
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}

	codecs = []Codec{Raw, JSON, Msgpack}
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// ByFlag returns the codec a frame's flags select.
func ByFlag(flag uint8) (Codec, error) {
	for _, c := range codecs {
		if c.Flag() == flag {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: flag 0x%x", ErrUnknownCodec, flag)
}
