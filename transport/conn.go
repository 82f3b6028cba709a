package transport

import (
	"net"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/Mmx233/SMQ/protocol"
)

// ConnID identifies a connection for its whole life, across reconnects.
type ConnID uint64

var connCounter atomic.Uint64

// nextConnID generates a unique connection ID, never zero
func nextConnID() ConnID {
	return ConnID(connCounter.Add(1))
}

type readState uint8

const (
	readIdle readState = iota
	readHeader
	readBody
)

func (s readState) String() string {
	switch s {
	case readHeader:
		return "header"
	case readBody:
		return "body"
	default:
		return "idle"
	}
}

// conn is one TCP link to a peer. Only the loop goroutine touches it.
type conn struct {
	id     ConnID
	attr   Attr
	status Status
	target protocol.Address

	sock   net.Conn
	addr   string // dial address, resolved again on every attempt
	remote string
	gen    uint64 // bumped whenever the socket goes away

	rstate readState
	rcur   *protocol.Message // read in flight, owned by the reader until it completes
	wcur   *protocol.Message // write in flight, owned by the writer until it completes
	wloss  bool              // no write in flight

	timer    *clock.Timer
	timerSeq uint64
	attempt  int

	base   zerolog.Logger
	logger zerolog.Logger
}

func newConn(attr Attr, addr string, logger zerolog.Logger) *conn {
	c := &conn{
		id:     nextConnID(),
		attr:   attr,
		status: ConnDisconnected | ProtoIdle,
		target: protocol.AddressInvalid,
		addr:   addr,
		wloss:  true,
	}
	c.base = logger.With().
		Uint64("conn_id", uint64(c.id)).
		Stringer("attr", attr).
		Logger()
	c.refreshLogger()
	return c
}

// refreshLogger rebuilds the connection logger after remote or target changed.
func (c *conn) refreshLogger() {
	ctx := c.base.With()
	if c.remote != "" {
		ctx = ctx.Str("remote", c.remote)
	} else if c.addr != "" {
		ctx = ctx.Str("remote", c.addr)
	}
	if c.target != protocol.AddressInvalid {
		ctx = ctx.Uint16("target", uint16(c.target))
	}
	c.logger = ctx.Logger()
}

func (c *conn) attach(sock net.Conn) {
	c.sock = sock
	c.remote = sock.RemoteAddr().String()
	c.refreshLogger()
}

// detach closes the socket and forgets every operation still in flight.
// Late completions see a different generation and clean up after themselves.
func (c *conn) detach() error {
	var err error
	if c.sock != nil {
		err = c.sock.Close()
		c.sock = nil
	}
	c.gen++
	c.rstate = readIdle
	c.rcur = nil
	c.wcur = nil
	c.wloss = true
	return err
}

func (c *conn) stopTimer() {
	c.timerSeq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *conn) ready() bool {
	return c.status.Conn() == ConnConnected && c.status.Proto() == ProtoReady
}
