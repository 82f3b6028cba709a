package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Mmx233/SMQ/protocol"
)

// Everything in this file runs on the loop goroutine, except the bodies of
// the I/O goroutines which only touch their captured arguments.

const acceptRetryDelay = 100 * time.Millisecond

func (t *Transport) addConn(c *conn) {
	t.conns[c.id] = c
	t.metrics.connections.WithLabelValues(c.attr.String()).Inc()
}

// current reports whether a completion started at generation gen still
// belongs to the live socket of c.
func (t *Transport) current(c *conn, gen uint64) bool {
	return c.gen == gen && t.conns[c.id] == c
}

// updateStatus applies value under mask and raises statusChanged once per real change.
func (t *Transport) updateStatus(c *conn, mask, value Status) {
	next := c.status.With(mask, value)
	if next == c.status {
		return
	}
	prev := c.status
	c.status = next
	c.logger.Debug().
		Stringer("from", prev).
		Stringer("to", next).
		Msg("status changed")
	t.statusChanged(c, prev, next)
}

// statusChanged is the only place that starts the handshake, tears down,
// schedules reconnects and kicks writes on Ready.
func (t *Transport) statusChanged(c *conn, prev, next Status) {
	if prev.Proto() == ProtoReady && next.Proto() != ProtoReady {
		t.metrics.ready.Dec()
	}
	if next.Proto() == ProtoError {
		t.destroy(c)
		return
	}

	if prev.Conn() != next.Conn() {
		switch next.Conn() {
		case ConnConnected:
			if prev.Conn() == ConnConnecting {
				c.stopTimer()
				c.attempt = 0
			}
			t.armHeaderRead(c)
			t.handshake.start(c)
			return

		case ConnDisconnected:
			if err := c.detach(); err != nil {
				c.logger.Debug().Err(err).Msg("close socket")
			}
			t.unbind(c)
			t.updateStatus(c, ProtoMask, ProtoIdle)
			if c.attr == Active {
				t.scheduleReconnect(c)
			} else {
				t.destroy(c)
			}
			return
		}
	}

	if prev.Proto() != ProtoReady && next.Proto() == ProtoReady {
		t.metrics.ready.Inc()
		c.logger.Info().Msg("connection ready")
		t.kickWrite(c)
	}
}

// fail handles an I/O error: the connection drops to Disconnected.
func (t *Transport) fail(c *conn, err error) {
	if c.status.Conn() == ConnDisconnected {
		return
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.logger.Info().Msg("peer closed connection")
	} else {
		c.logger.Warn().Err(err).Msg("connection lost")
	}
	t.updateStatus(c, ConnMask, ConnDisconnected)
}

// violation tears the connection down for good.
func (t *Transport) violation(c *conn, err error) {
	c.logger.Error().
		Err(err).
		Stringer("status", c.status).
		Msg("protocol violation")
	t.metrics.violations.Inc()
	t.updateStatus(c, ProtoMask, ProtoError)
}

func (t *Transport) destroy(c *conn) {
	if t.conns[c.id] != c {
		return
	}
	c.stopTimer()
	if err := c.detach(); err != nil {
		c.logger.Debug().Err(err).Msg("close socket")
	}
	t.unbind(c)
	delete(t.conns, c.id)
	t.metrics.connections.WithLabelValues(c.attr.String()).Dec()
	c.logger.Info().Msg("connection discarded")
}

// --- channel binding ---

func (t *Transport) bindChannel(c *conn, addr protocol.Address) error {
	_, err := t.channels.bind(addr, c.id, func(id ConnID) bool {
		other, ok := t.conns[id]
		return ok && other.target == addr
	})
	if err != nil {
		return fmt.Errorf("bind address %d: %w", addr, err)
	}
	c.target = addr
	c.refreshLogger()
	return nil
}

func (t *Transport) unbind(c *conn) {
	if c.target == protocol.AddressInvalid {
		return
	}
	if t.channels.unbind(c.target, c.id) {
		c.logger.Debug().Msg("channel unbound")
	}
	c.target = protocol.AddressInvalid
	c.refreshLogger()
}

// boundConn returns the connection bound to ch, dropping stale bindings.
func (t *Transport) boundConn(ch *channel) *conn {
	if ch.conn == 0 {
		return nil
	}
	c, ok := t.conns[ch.conn]
	if !ok || c.target != ch.addr {
		ch.conn = 0
		return nil
	}
	return c
}

// --- send path ---

func (t *Transport) enqueue(m *protocol.Message) {
	ch, err := t.channels.get(m.Target)
	if err != nil {
		t.logger.Warn().Err(err).Msg("dropping message")
		t.alloc.Free(m)
		return
	}
	ch.push(m)
	t.metrics.queued.Inc()
	t.kickChannel(ch)
}

func (t *Transport) kickChannel(ch *channel) {
	if c := t.boundConn(ch); c != nil {
		t.kickWrite(c)
	}
}

// kickWrite starts the next queued write if c is Ready and idle.
func (t *Transport) kickWrite(c *conn) {
	if !c.ready() || !c.wloss || c.sock == nil {
		return
	}
	ch := t.channels.lookup(c.target)
	if ch == nil || ch.conn != c.id {
		return
	}
	m, ok := ch.pop()
	if !ok {
		return
	}
	t.metrics.queued.Dec()
	t.asyncWrite(c, m)
}

func (t *Transport) sendControl(c *conn, ctl protocol.Control) {
	m := protocol.EncodeControl(t.alloc, ctl)
	if c.sock == nil || !c.wloss {
		c.logger.Error().Stringer("code", ctl.Code).Msg("control frame with a write in flight")
		t.alloc.Free(m)
		return
	}
	c.logger.Debug().Stringer("code", ctl.Code).Msg("sending control frame")
	t.asyncWrite(c, m)
}

func (t *Transport) asyncWrite(c *conn, m *protocol.Message) {
	c.wloss = false
	c.wcur = m
	sock, gen, target := c.sock, c.gen, c.target

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		err := protocol.WriteMessage(sock, m)
		t.post(func() {
			t.onWrite(c, gen, m, target, err)
		}, func() {
			t.alloc.Free(m)
		})
	}()
}

func (t *Transport) onWrite(c *conn, gen uint64, m *protocol.Message, target protocol.Address, err error) {
	if !t.current(c, gen) {
		if err != nil {
			t.retryWrite(m, target)
		} else {
			t.wrote(m)
		}
		return
	}

	c.wcur = nil
	c.wloss = true
	if err != nil {
		// unbind first so the retried frame cannot go back to this socket
		t.fail(c, err)
		t.retryWrite(m, target)
		return
	}
	t.wrote(m)
	t.kickWrite(c)
}

func (t *Transport) wrote(m *protocol.Message) {
	if m.Type == protocol.TypeUser {
		t.metrics.framesSent.Inc()
		t.metrics.bytesSent.Add(float64(m.Length))
	}
	t.alloc.Free(m)
}

// retryWrite keeps a user frame whose write failed at the head of its channel.
func (t *Transport) retryWrite(m *protocol.Message, target protocol.Address) {
	if m.Type != protocol.TypeUser {
		t.alloc.Free(m)
		return
	}
	ch := t.channels.lookup(target)
	if ch == nil {
		t.alloc.Free(m)
		return
	}
	ch.requeue(m)
	t.metrics.queued.Inc()
	t.kickChannel(ch)
}

// --- receive path ---

type readDone func(c *conn, gen uint64, m *protocol.Message, err error)

func (t *Transport) armHeaderRead(c *conn) {
	if c.sock == nil {
		return
	}
	m := t.alloc.Alloc(protocol.DefaultPayloadSize)
	c.rstate = readHeader
	t.asyncRead(c, m, m.HeaderBytes(), t.onHeader)
}

func (t *Transport) asyncRead(c *conn, m *protocol.Message, buf []byte, done readDone) {
	c.rcur = m
	sock, gen := c.sock, c.gen

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_, err := io.ReadFull(sock, buf)
		t.post(func() {
			done(c, gen, m, err)
		}, func() {
			t.alloc.Free(m)
		})
	}()
}

func (t *Transport) onHeader(c *conn, gen uint64, m *protocol.Message, err error) {
	if !t.current(c, gen) {
		t.alloc.Free(m)
		return
	}
	c.rcur = nil
	if err != nil {
		t.alloc.Free(m)
		t.fail(c, err)
		return
	}

	h, err := protocol.DecodeHeader(m.HeaderBytes())
	if err != nil {
		t.alloc.Free(m)
		t.violation(c, err)
		return
	}
	m.Header = h
	m = protocol.Grow(t.alloc, m, h.Length)

	if h.PayloadLength() == 0 {
		t.onBody(c, gen, m, nil)
		return
	}
	c.rstate = readBody
	t.asyncRead(c, m, m.Payload(), t.onBody)
}

func (t *Transport) onBody(c *conn, gen uint64, m *protocol.Message, err error) {
	if !t.current(c, gen) {
		t.alloc.Free(m)
		return
	}
	c.rcur = nil
	c.rstate = readIdle
	if err != nil {
		t.alloc.Free(m)
		t.fail(c, err)
		return
	}

	t.handleFrame(c, m)
	if t.current(c, gen) {
		t.armHeaderRead(c)
	}
}

// handleFrame consumes m.
func (t *Transport) handleFrame(c *conn, m *protocol.Message) {
	switch m.Type {
	case protocol.TypeConn:
		t.handshake.handle(c, m)
		t.alloc.Free(m)

	case protocol.TypeUser:
		if !c.ready() {
			t.alloc.Free(m)
			t.violation(c, ErrUserBeforeReady)
			return
		}
		m.Source = c.target
		m.Target = t.self
		t.metrics.framesReceived.Inc()
		t.metrics.bytesReceived.Add(float64(m.Length))
		t.deliver(m)

	default:
		t.alloc.Free(m)
		t.violation(c, protocol.ErrBadType)
	}
}

func (t *Transport) deliver(m *protocol.Message) {
	defer t.alloc.Free(m)
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error().
				Interface("panic", rec).
				Uint16("source", uint16(m.Source)).
				Msg("dispatcher recovered from panic")
		}
	}()
	t.dispatcher.HandleMessage(m.Source, m)
}

// --- connection setup ---

func (t *Transport) armAccept(ln net.Listener) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		sock, err := ln.Accept()
		t.post(func() {
			t.onAccept(ln, sock, err)
		}, func() {
			if sock != nil {
				_ = sock.Close()
			}
		})
	}()
}

func (t *Transport) onAccept(ln net.Listener, sock net.Conn, err error) {
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return
		}
		t.logger.Warn().Err(err).Str("listen", ln.Addr().String()).Msg("accept failed")
		t.clock.AfterFunc(acceptRetryDelay, func() {
			t.post(func() { t.armAccept(ln) }, nil)
		})
		return
	}

	c := newConn(Passive, "", t.logger)
	c.attach(sock)
	t.addConn(c)
	c.logger.Info().Msg("accepted connection")
	t.updateStatus(c, ConnMask, ConnConnected)
	t.armAccept(ln)
}

// connect starts a dial on the same connection object, from Disconnected.
func (t *Transport) connect(c *conn) {
	_ = c.detach()
	t.unbind(c)
	t.updateStatus(c, ConnMask|ProtoMask, ConnConnecting|ProtoIdle)

	gen, addr, timeout, control := c.gen, c.addr, t.dialTimeout, t.control
	c.logger.Debug().Msg("connecting")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(t.ctx, timeout)
		defer cancel()

		d := net.Dialer{Control: control}
		sock, err := d.DialContext(ctx, "tcp", addr)
		t.post(func() {
			t.onDial(c, gen, sock, err)
		}, func() {
			if sock != nil {
				_ = sock.Close()
			}
		})
	}()
}

func (t *Transport) onDial(c *conn, gen uint64, sock net.Conn, err error) {
	if !t.current(c, gen) || c.status.Conn() != ConnConnecting {
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("connect failed")
		t.updateStatus(c, ConnMask, ConnDisconnected)
		return
	}

	c.attach(sock)
	c.logger.Info().Msg("connected")
	t.updateStatus(c, ConnMask, ConnConnected)
}

func (t *Transport) scheduleReconnect(c *conn) {
	c.stopTimer()
	d := t.backoff.Delay(c.attempt)
	c.attempt++
	seq := c.timerSeq

	c.logger.Info().
		Int("attempt", c.attempt).
		Dur("backoff", d).
		Msg("scheduling reconnection attempt")

	c.timer = t.clock.AfterFunc(d, func() {
		t.post(func() {
			t.onReconnectTimer(c, seq)
		}, nil)
	})
}

func (t *Transport) onReconnectTimer(c *conn, seq uint64) {
	if t.conns[c.id] != c || c.timerSeq != seq || c.status.Conn() != ConnDisconnected {
		return
	}
	c.timer = nil
	t.metrics.reconnects.Inc()
	t.connect(c)
}
