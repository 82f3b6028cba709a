package payload

import (
	"fmt"

	"github.com/Mmx233/SMQ/protocol"
)

// Chat is the demo payload exchanged by smq run.
type Chat struct {
	From   string `json:"from" msgpack:"from"`
	Seq    uint64 `json:"seq" msgpack:"seq"`
	Text   string `json:"text" msgpack:"text"`
	SentAt int64  `json:"sent_at" msgpack:"sent_at"` // unix nanoseconds
}

// Encode builds a user frame for target carrying v encoded with c.
// The codec is recorded in the frame flags.
func Encode(alloc protocol.Allocator, c Codec, target protocol.Address, v any) (*protocol.Message, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", c.Name(), err)
	}
	m, err := protocol.Encode(alloc, protocol.TypeUser, c.Flag(), 0, data)
	if err != nil {
		return nil, err
	}
	m.Target = target
	return m, nil
}

// Decode decodes the payload of m into v with the codec its flags select.
func Decode(m *protocol.Message, v any) error {
	c, err := ByFlag(m.Flags)
	if err != nil {
		return err
	}
	if err := c.Unmarshal(m.Payload(), v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", c.Name(), err)
	}
	return nil
}
