package transport

import "fmt"

// Status packs the socket sub-state (high nibble) and the protocol sub-state
// (low nibble) of a connection.
type Status uint16

const (
	ConnMask         Status = 0xF000
	ConnDisconnected Status = 0x0000
	ConnConnecting   Status = 0x1000
	ConnConnected    Status = 0x2000

	ProtoMask     Status = 0x000F
	ProtoIdle     Status = 0x0000
	ProtoWaitAuth Status = 0x0001
	ProtoReady    Status = 0x0002
	ProtoError    Status = 0x000F
)

// Conn returns the socket sub-state.
func (s Status) Conn() Status { return s & ConnMask }

// Proto returns the protocol sub-state.
func (s Status) Proto() Status { return s & ProtoMask }

// With returns s with the bits selected by mask replaced by value.
func (s Status) With(mask, value Status) Status {
	return s&^mask | value&mask
}

func (s Status) String() string {
	var conn, proto string
	switch s.Conn() {
	case ConnDisconnected:
		conn = "disconnected"
	case ConnConnecting:
		conn = "connecting"
	case ConnConnected:
		conn = "connected"
	default:
		conn = fmt.Sprintf("conn(0x%04x)", uint16(s.Conn()))
	}
	switch s.Proto() {
	case ProtoIdle:
		proto = "idle"
	case ProtoWaitAuth:
		proto = "wait-auth"
	case ProtoReady:
		proto = "ready"
	case ProtoError:
		proto = "error"
	default:
		proto = fmt.Sprintf("proto(0x%x)", uint16(s.Proto()))
	}
	return conn + "/" + proto
}

// Attr records which side opened the connection.
type Attr uint8

const (
	Active  Attr = iota // dialed by this transport, reconnects on loss
	Passive             // accepted by this transport, discarded on loss
)

func (a Attr) String() string {
	switch a {
	case Active:
		return "active"
	case Passive:
		return "passive"
	default:
		return "unknown"
	}
}
