package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// Payload size constants for benchmarks
const (
	SmallPayloadSize  = 64    // fits the default read buffer
	MediumPayloadSize = 1024  // 1 KB - typical message
	LargePayloadSize  = 65536 // 64 KB - forces a grow on read
)

// generatePayload creates a byte slice of the specified size
func generatePayload(size int) []byte {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	return payload
}

func TestEncodeHeader_BitLayout(t *testing.T) {
	h := Header{Version: 0, Type: TypeConn, Flags: 0x0A, Length: 0x000102, Session: 0xDEADBEEF}
	buf := make([]byte, HeaderSize)
	EncodeHeader(h, buf)

	// type=01 -> bits 29..28, flags=1010 -> bits 27..24
	want := []byte{0x1A, 0x00, 0x01, 0x02, 0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(buf, want) {
		t.Fatalf("header bytes = % X, want % X", buf, want)
	}

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if got != h {
		t.Fatalf("decoded header = %+v, want %+v", got, h)
	}
}

func TestEncodeHeader_FieldsMasked(t *testing.T) {
	// Out of range field values must not bleed into neighbouring fields
	h := Header{Version: 0, Type: TypeUser, Flags: 0xFF, Length: 0xFF000010, Session: 1}
	buf := make([]byte, HeaderSize)
	EncodeHeader(h, buf)

	vtfl := binary.BigEndian.Uint32(buf[:4])
	if vtfl != 0x0F000010 {
		t.Fatalf("vtfl = 0x%08X, want 0x0F000010", vtfl)
	}
}

func TestDecodeHeader_Errors(t *testing.T) {
	tests := []struct {
		name string
		vtfl uint32
		want error
	}{
		{"length below header", 0x00000007, ErrLengthTooSmall},
		{"zero length", 0x00000000, ErrLengthTooSmall},
		{"bad version", 0x40000008, ErrBadVersion},
		{"bad type", 0x20000008, ErrBadType},
		{"type three", 0x30000008, ErrBadType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, HeaderSize)
			binary.BigEndian.PutUint32(buf, tt.vtfl)
			_, err := DecodeHeader(buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := DecodeHeader([]byte{1, 2, 3}); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodeHeader_MaxLength(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf, MaxTotalLength)
	h, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.Length != MaxTotalLength {
		t.Fatalf("length = %d, want %d", h.Length, MaxTotalLength)
	}
}

func TestEncode_RejectsOversizedPayload(t *testing.T) {
	alloc := NewPoolAllocator()
	_, err := Encode(alloc, TypeUser, 0, 0, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrLengthTooLarge) {
		t.Fatalf("expected ErrLengthTooLarge, got %v", err)
	}
}

func TestEncode_RejectsUnknownType(t *testing.T) {
	alloc := NewPoolAllocator()
	_, err := Encode(alloc, 2, 0, 0, nil)
	if !errors.Is(err, ErrBadType) {
		t.Fatalf("expected ErrBadType, got %v", err)
	}
}

func TestWriteReadMessage_RoundTrip(t *testing.T) {
	alloc := NewPoolAllocator()
	sizes := []int{0, 1, SmallPayloadSize, SmallPayloadSize + 1, MediumPayloadSize, LargePayloadSize}

	for _, size := range sizes {
		payload := generatePayload(size)
		m, err := Encode(alloc, TypeUser, 0x5, 42, payload)
		if err != nil {
			t.Fatalf("encode %d bytes: %v", size, err)
		}

		var buf bytes.Buffer
		if err := WriteMessage(&buf, m); err != nil {
			t.Fatalf("write %d bytes: %v", size, err)
		}
		alloc.Free(m)

		if buf.Len() != HeaderSize+size {
			t.Fatalf("wire size = %d, want %d", buf.Len(), HeaderSize+size)
		}

		out, err := ReadMessage(&buf, alloc)
		if err != nil {
			t.Fatalf("read %d bytes: %v", size, err)
		}
		if out.Type != TypeUser || out.Flags != 0x5 || out.Session != 42 {
			t.Fatalf("header mismatch: %+v", out.Header)
		}
		if !bytes.Equal(out.Payload(), payload) {
			t.Fatalf("payload mismatch for %d bytes", size)
		}
		alloc.Free(out)
	}
}

func TestReadMessage_MaxPayload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 16MB frame in short mode")
	}
	alloc := NewPoolAllocator()
	payload := generatePayload(MaxPayloadSize)
	m, err := Encode(alloc, TypeUser, 0, 7, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := ReadMessage(bytes.NewReader(m.Bytes()), alloc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Length != MaxTotalLength {
		t.Fatalf("length = %d, want %d", out.Length, MaxTotalLength)
	}
	if !bytes.Equal(out.Payload(), payload) {
		t.Fatal("payload mismatch")
	}
}

func TestReadMessage_TruncatedBody(t *testing.T) {
	alloc := NewPoolAllocator()
	m, err := Encode(alloc, TypeUser, 0, 0, generatePayload(100))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	wire := m.Bytes()

	_, err = ReadMessage(bytes.NewReader(wire[:50]), alloc)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadMessage_BadLength(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf, 4)
	_, err := ReadMessage(bytes.NewReader(buf), NewPoolAllocator())
	if !errors.Is(err, ErrLengthTooSmall) {
		t.Fatalf("expected ErrLengthTooSmall, got %v", err)
	}
}

func TestGrow_PreservesHeader(t *testing.T) {
	alloc := NewPoolAllocator()
	m := alloc.Alloc(DefaultPayloadSize)
	h := Header{Type: TypeUser, Flags: 0x3, Length: 5000, Session: 99}
	EncodeHeader(h, m.HeaderBytes())
	m.Header = h

	grown := Grow(alloc, m, h.Length)
	if grown.Cap() < 5000 {
		t.Fatalf("grown capacity = %d, want >= 5000", grown.Cap())
	}
	if grown.Header != h {
		t.Fatalf("grown header = %+v, want %+v", grown.Header, h)
	}
	decoded, err := DecodeHeader(grown.HeaderBytes())
	if err != nil {
		t.Fatalf("decode grown header: %v", err)
	}
	if decoded != h {
		t.Fatalf("grown header bytes decode to %+v, want %+v", decoded, h)
	}
	if len(grown.Payload()) != 5000-HeaderSize {
		t.Fatalf("payload length = %d", len(grown.Payload()))
	}
}

func TestGrow_NoopWhenLargeEnough(t *testing.T) {
	alloc := NewPoolAllocator()
	m := alloc.Alloc(DefaultPayloadSize)
	if got := Grow(alloc, m, HeaderSize+10); got != m {
		t.Fatal("expected the same message when capacity suffices")
	}
}

func TestControl_RoundTrip(t *testing.T) {
	alloc := NewPoolAllocator()
	m := EncodeControl(alloc, Control{Code: ControlAuthAck, Address: 513})
	if m.Type != TypeConn {
		t.Fatalf("type = %d, want TypeConn", m.Type)
	}
	if m.Length != HeaderSize+ControlSize {
		t.Fatalf("length = %d", m.Length)
	}
	if !bytes.Equal(m.Payload(), []byte{0x02, 0x02, 0x01}) {
		t.Fatalf("payload = % X", m.Payload())
	}

	c, err := DecodeControl(m)
	if err != nil {
		t.Fatalf("decode control: %v", err)
	}
	if c.Code != ControlAuthAck || c.Address != 513 {
		t.Fatalf("control = %+v", c)
	}
}

func TestDecodeControl_Malformed(t *testing.T) {
	alloc := NewPoolAllocator()

	short, _ := Encode(alloc, TypeConn, 0, 0, []byte{0x01})
	if _, err := DecodeControl(short); !errors.Is(err, ErrBadControl) {
		t.Fatalf("short payload: expected ErrBadControl, got %v", err)
	}

	unknown, _ := Encode(alloc, TypeConn, 0, 0, []byte{0x09, 0x00, 0x01})
	if _, err := DecodeControl(unknown); !errors.Is(err, ErrBadControl) {
		t.Fatalf("unknown code: expected ErrBadControl, got %v", err)
	}

	invalid, _ := Encode(alloc, TypeConn, 0, 0, []byte{0x01, 0xFF, 0xFF})
	if _, err := DecodeControl(invalid); !errors.Is(err, ErrBadControl) {
		t.Fatalf("invalid address: expected ErrBadControl, got %v", err)
	}

	user, _ := Encode(alloc, TypeUser, 0, 0, []byte{0x01, 0x00, 0x01})
	if _, err := DecodeControl(user); !errors.Is(err, ErrBadControl) {
		t.Fatalf("user frame: expected ErrBadControl, got %v", err)
	}
}

// BenchmarkWriteMessage benchmarks frame encoding with various payload sizes
func BenchmarkWriteMessage(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"64B", SmallPayloadSize},
		{"1KB", MediumPayloadSize},
		{"64KB", LargePayloadSize},
	}

	alloc := NewPoolAllocator()
	for _, s := range sizes {
		b.Run(s.name, func(b *testing.B) {
			m, err := Encode(alloc, TypeUser, 0, 1, generatePayload(s.size))
			if err != nil {
				b.Fatalf("encode: %v", err)
			}
			var buf bytes.Buffer
			buf.Grow(s.size + HeaderSize)

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				buf.Reset()
				if err := WriteMessage(&buf, m); err != nil {
					b.Fatalf("WriteMessage failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkReadMessage benchmarks frame decoding, including the grow path
func BenchmarkReadMessage(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"64B", SmallPayloadSize},
		{"1KB", MediumPayloadSize},
		{"64KB", LargePayloadSize},
	}

	alloc := NewPoolAllocator()
	for _, s := range sizes {
		b.Run(s.name, func(b *testing.B) {
			m, err := Encode(alloc, TypeUser, 0, 1, generatePayload(s.size))
			if err != nil {
				b.Fatalf("encode: %v", err)
			}
			wire := append([]byte(nil), m.Bytes()...)
			reader := bytes.NewReader(wire)

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				reader.Reset(wire)
				out, err := ReadMessage(reader, alloc)
				if err != nil {
					b.Fatalf("ReadMessage failed: %v", err)
				}
				alloc.Free(out)
			}
		})
	}
}
