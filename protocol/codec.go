package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire format, network byte order:
// [ver:2][type:2][flags:4][totalLength:24] [session:32] [payload]

const (
	vtflVersionMask = 0xC0000000
	vtflTypeMask    = 0x30000000
	vtflFlagsMask   = 0x0F000000
	vtflLengthMask  = 0x00FFFFFF
)

// EncodeHeader packs h into the first HeaderSize bytes of b.
func EncodeHeader(h Header, b []byte) {
	vtfl := uint32(h.Version)<<30&vtflVersionMask |
		uint32(h.Type)<<28&vtflTypeMask |
		uint32(h.Flags)<<24&vtflFlagsMask |
		h.Length&vtflLengthMask
	binary.BigEndian.PutUint32(b[0:4], vtfl)
	binary.BigEndian.PutUint32(b[4:8], h.Session)
}

// DecodeHeader unpacks and validates a fixed header.
// Any error is a protocol violation for the connection that produced b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	vtfl := binary.BigEndian.Uint32(b[0:4])
	h := Header{
		Version: uint8((vtfl & vtflVersionMask) >> 30),
		Type:    uint8((vtfl & vtflTypeMask) >> 28),
		Flags:   uint8((vtfl & vtflFlagsMask) >> 24),
		Length:  vtfl & vtflLengthMask,
		Session: binary.BigEndian.Uint32(b[4:8]),
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.Type != TypeUser && h.Type != TypeConn {
		return h, fmt.Errorf("%w: %d", ErrBadType, h.Type)
	}
	if h.Length < HeaderSize {
		return h, fmt.Errorf("%w: %d", ErrLengthTooSmall, h.Length)
	}
	return h, nil
}

// ValidateCapacity reports whether m can hold a frame of totalLength bytes.
func ValidateCapacity(m *Message, totalLength uint32) bool {
	return int(totalLength) <= m.Cap()
}

// Grow returns a message able to hold totalLength bytes carrying m's header.
// When m is already large enough it is returned as is, otherwise m is freed.
func Grow(alloc Allocator, m *Message, totalLength uint32) *Message {
	if ValidateCapacity(m, totalLength) {
		return m
	}
	grown := alloc.Alloc(int(totalLength) - HeaderSize)
	grown.Header = m.Header
	copy(grown.HeaderBytes(), m.HeaderBytes())
	alloc.Free(m)
	return grown
}

// Encode builds a framed message from its parts.
func Encode(alloc Allocator, msgType, flags uint8, session uint32, payload []byte) (*Message, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes", ErrLengthTooLarge, len(payload))
	}
	if msgType != TypeUser && msgType != TypeConn {
		return nil, fmt.Errorf("%w: %d", ErrBadType, msgType)
	}
	m := alloc.Alloc(len(payload))
	m.Type = msgType
	m.Flags = flags & 0x0F
	m.Session = session
	if err := m.SetPayload(payload); err != nil {
		alloc.Free(m)
		return nil, err
	}
	return m, nil
}

// WriteMessage writes one complete frame with a single write call.
func WriteMessage(w io.Writer, m *Message) error {
	if _, err := w.Write(m.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one frame: a fixed header read, a capacity check, then the body.
// The returned message is owned by the caller and must be released with alloc.Free.
func ReadMessage(r io.Reader, alloc Allocator) (*Message, error) {
	m := alloc.Alloc(DefaultPayloadSize)

	if _, err := io.ReadFull(r, m.HeaderBytes()); err != nil {
		alloc.Free(m)
		return nil, fmt.Errorf("read header: %w", err)
	}

	h, err := DecodeHeader(m.HeaderBytes())
	if err != nil {
		alloc.Free(m)
		return nil, err
	}
	m.Header = h
	m = Grow(alloc, m, h.Length)

	if _, err := io.ReadFull(r, m.Payload()); err != nil {
		alloc.Free(m)
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return m, nil
}
