package transport

import (
	"cmp"
	"context"
	"slices"

	"github.com/Mmx233/SMQ/protocol"
)

// ConnInfo describes one connection at snapshot time.
type ConnInfo struct {
	ID      ConnID
	Attr    Attr
	Status  Status
	Target  protocol.Address
	Remote  string
	Attempt int
}

// ChannelInfo describes one channel at snapshot time.
type ChannelInfo struct {
	Address protocol.Address
	Conn    ConnID
	Queued  int
}

// Snapshot is a consistent view of the transport state.
type Snapshot struct {
	Self     protocol.Address
	Conns    []ConnInfo
	Channels []ChannelInfo
}

// Conn returns the connection bound to addr, if any.
func (s Snapshot) Conn(addr protocol.Address) (ConnInfo, bool) {
	for _, ch := range s.Channels {
		if ch.Address != addr || ch.Conn == 0 {
			continue
		}
		for _, c := range s.Conns {
			if c.ID == ch.Conn {
				return c, true
			}
		}
	}
	return ConnInfo{}, false
}

// Snapshot collects the state on the loop goroutine.
func (t *Transport) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	if err := t.loop.Dispatch(func() {
		result <- t.snapshot()
	}, nil); err != nil {
		return Snapshot{}, err
	}

	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-t.stopped:
		return Snapshot{}, ErrClosed
	}
}

func (t *Transport) snapshot() Snapshot {
	s := Snapshot{
		Self:     t.self,
		Conns:    make([]ConnInfo, 0, len(t.conns)),
		Channels: make([]ChannelInfo, 0, len(t.channels.channels)),
	}
	for _, c := range t.conns {
		remote := c.remote
		if c.sock == nil {
			remote = c.addr
		}
		s.Conns = append(s.Conns, ConnInfo{
			ID:      c.id,
			Attr:    c.attr,
			Status:  c.status,
			Target:  c.target,
			Remote:  remote,
			Attempt: c.attempt,
		})
	}
	for _, ch := range t.channels.channels {
		id := ConnID(0)
		if c := t.boundConn(ch); c != nil {
			id = c.id
		}
		s.Channels = append(s.Channels, ChannelInfo{
			Address: ch.addr,
			Conn:    id,
			Queued:  ch.len(),
		})
	}
	slices.SortFunc(s.Conns, func(a, b ConnInfo) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Channels, func(a, b ChannelInfo) int { return cmp.Compare(a.Address, b.Address) })
	return s
}
