package protocol

// Address identifies a peer inside the dense peer id space.
// It is never sent in the frame header, only in control payloads.
type Address uint16

// AddressInvalid marks an unbound connection or an unset message address.
const AddressInvalid Address = 0xFFFF

// Message types (2 bits on the wire)
const (
	TypeUser uint8 = 0x00 // Opaque application payload
	TypeConn uint8 = 0x01 // Control payload handled by the transport
)

const (
	Version uint8 = 0x00

	HeaderSize     = 8          // vtfl word + session id
	MaxTotalLength = 0x00FFFFFF // 24 bit length field
	MaxPayloadSize = MaxTotalLength - HeaderSize

	// DefaultPayloadSize is the payload capacity of a fresh read buffer.
	// Larger frames are grown after the header has been read.
	DefaultPayloadSize = 64
)

// Header is the decoded fixed frame header.
type Header struct {
	Version uint8
	Type    uint8
	Flags   uint8  // 4 bits, application defined
	Length  uint32 // total frame length including the header
	Session uint32
}

// PayloadLength returns the payload size declared by the header.
func (h Header) PayloadLength() int {
	if h.Length < HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

// Message is one frame plus its local addressing.
// data holds the wire bytes, len(data) is the allocated capacity.
type Message struct {
	Header

	Source Address // stamped by the receiving transport
	Target Address // stamped by the sender before Post

	data []byte
}

// NewMessage wraps buf as message storage. buf must hold at least HeaderSize bytes.
// Custom Allocator implementations use it to hand out messages.
func NewMessage(buf []byte) *Message {
	if len(buf) < HeaderSize {
		buf = make([]byte, HeaderSize)
	}
	m := &Message{data: buf}
	m.Reset()
	return m
}

// Reset clears the header and addressing, leaving an empty payload.
func (m *Message) Reset() {
	m.Header = Header{Version: Version, Length: HeaderSize}
	m.Source = AddressInvalid
	m.Target = AddressInvalid
	clear(m.data[:HeaderSize])
}

// Cap returns the allocated capacity in bytes, header included.
func (m *Message) Cap() int {
	return len(m.data)
}

// Buffer returns the underlying storage, for allocators releasing the message.
func (m *Message) Buffer() []byte {
	return m.data
}

// Payload returns the payload bytes declared by the header.
func (m *Message) Payload() []byte {
	return m.data[HeaderSize:m.Length]
}

// SetPayloadLength resizes the payload within the allocated capacity.
func (m *Message) SetPayloadLength(n int) error {
	if n < 0 || n > MaxPayloadSize {
		return ErrLengthTooLarge
	}
	if HeaderSize+n > m.Cap() {
		return ErrCapacity
	}
	m.Length = uint32(HeaderSize + n)
	return nil
}

// SetPayload copies p into the message and updates the length.
func (m *Message) SetPayload(p []byte) error {
	if err := m.SetPayloadLength(len(p)); err != nil {
		return err
	}
	copy(m.data[HeaderSize:], p)
	return nil
}

// HeaderBytes returns the raw header region, used as the header read target.
func (m *Message) HeaderBytes() []byte {
	return m.data[:HeaderSize]
}

// Bytes encodes the header in place and returns the whole frame.
func (m *Message) Bytes() []byte {
	EncodeHeader(m.Header, m.data[:HeaderSize])
	return m.data[:m.Length]
}
