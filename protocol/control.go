package protocol

import (
	"encoding/binary"
	"fmt"
)

// ControlCode selects the control message carried by a TypeConn frame.
type ControlCode uint8

const (
	ControlAuth    ControlCode = 0x01 // Active side announces its address
	ControlAuthAck ControlCode = 0x02 // Passive side acknowledges with its address
)

// ControlSize is the payload size of a control frame: [code:1][address:2]
const ControlSize = 3

func (c ControlCode) String() string {
	switch c {
	case ControlAuth:
		return "auth"
	case ControlAuthAck:
		return "auth-ack"
	default:
		return fmt.Sprintf("control(0x%02x)", uint8(c))
	}
}

// Control is the decoded payload of a TypeConn frame.
type Control struct {
	Code    ControlCode
	Address Address
}

// EncodeControl builds a TypeConn frame for c.
func EncodeControl(alloc Allocator, c Control) *Message {
	m := alloc.Alloc(ControlSize)
	m.Type = TypeConn
	// capacity is at least ControlSize, cannot fail
	_ = m.SetPayloadLength(ControlSize)
	p := m.Payload()
	p[0] = byte(c.Code)
	binary.BigEndian.PutUint16(p[1:3], uint16(c.Address))
	return m
}

// DecodeControl parses the control payload of m.
func DecodeControl(m *Message) (Control, error) {
	if m.Type != TypeConn {
		return Control{}, fmt.Errorf("%w: not a control frame", ErrBadControl)
	}
	p := m.Payload()
	if len(p) < ControlSize {
		return Control{}, fmt.Errorf("%w: %d bytes", ErrBadControl, len(p))
	}
	c := Control{
		Code:    ControlCode(p[0]),
		Address: Address(binary.BigEndian.Uint16(p[1:3])),
	}
	if c.Code != ControlAuth && c.Code != ControlAuthAck {
		return c, fmt.Errorf("%w: unknown code %s", ErrBadControl, c.Code)
	}
	if c.Address == AddressInvalid {
		return c, fmt.Errorf("%w: invalid address", ErrBadControl)
	}
	return c, nil
}
