package transport

import (
	"fmt"

	"github.com/Mmx233/SMQ/protocol"
)

// handshakeHost is the part of the transport the handshake drives.
type handshakeHost interface {
	sendControl(c *conn, ctl protocol.Control)
	bindChannel(c *conn, addr protocol.Address) error
	updateStatus(c *conn, mask, value Status)
	violation(c *conn, err error)
}

// handshake binds a freshly connected socket to a peer address.
//
// The active side announces itself with Auth and waits for AuthAck.
// The passive side waits for Auth, binds and answers with AuthAck.
// Everything else on the control channel is a protocol violation.
type handshake struct {
	self protocol.Address
	host handshakeHost
}

// start runs when a connection reaches Connected.
func (h *handshake) start(c *conn) {
	if c.attr == Active {
		h.host.sendControl(c, protocol.Control{Code: protocol.ControlAuth, Address: h.self})
	}
	h.host.updateStatus(c, ProtoMask, ProtoWaitAuth)
}

// handle processes one inbound control frame.
func (h *handshake) handle(c *conn, m *protocol.Message) {
	ctl, err := protocol.DecodeControl(m)
	if err != nil {
		h.host.violation(c, err)
		return
	}
	if c.status.Proto() != ProtoWaitAuth {
		h.host.violation(c, fmt.Errorf("%w: %s in state %s", ErrUnexpectedControl, ctl.Code, c.status))
		return
	}
	if ctl.Address == h.self {
		h.host.violation(c, ErrSelfAddress)
		return
	}

	switch ctl.Code {
	case protocol.ControlAuth:
		if c.attr != Passive {
			h.host.violation(c, fmt.Errorf("%w: %s on %s connection", ErrControlWrongAttr, ctl.Code, c.attr))
			return
		}
		if err := h.host.bindChannel(c, ctl.Address); err != nil {
			h.host.violation(c, err)
			return
		}
		h.host.sendControl(c, protocol.Control{Code: protocol.ControlAuthAck, Address: h.self})
		h.host.updateStatus(c, ProtoMask, ProtoReady)

	case protocol.ControlAuthAck:
		if c.attr != Active {
			h.host.violation(c, fmt.Errorf("%w: %s on %s connection", ErrControlWrongAttr, ctl.Code, c.attr))
			return
		}
		if err := h.host.bindChannel(c, ctl.Address); err != nil {
			h.host.violation(c, err)
			return
		}
		h.host.updateStatus(c, ProtoMask, ProtoReady)
	}
}
