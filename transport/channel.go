package transport

import (
	"github.com/emirpasic/gods/v2/queues/linkedlistqueue"

	"github.com/Mmx233/SMQ/protocol"
)

// channel is the outbound route to one peer address.
// Only the loop goroutine touches it.
type channel struct {
	addr  protocol.Address
	conn  ConnID // bound connection, zero when unbound
	retry []*protocol.Message
	queue *linkedlistqueue.Queue[*protocol.Message]
}

func newChannel(addr protocol.Address) *channel {
	return &channel{
		addr:  addr,
		queue: linkedlistqueue.New[*protocol.Message](),
	}
}

func (ch *channel) push(m *protocol.Message) {
	ch.queue.Enqueue(m)
}

// requeue stores a frame whose write failed; it goes out before the queue.
func (ch *channel) requeue(m *protocol.Message) {
	ch.retry = append(ch.retry, m)
}

func (ch *channel) pop() (*protocol.Message, bool) {
	if len(ch.retry) > 0 {
		m := ch.retry[0]
		ch.retry[0] = nil
		ch.retry = ch.retry[1:]
		return m, true
	}
	return ch.queue.Dequeue()
}

func (ch *channel) len() int {
	return len(ch.retry) + ch.queue.Size()
}

// drain frees every pending frame and returns how many were dropped.
func (ch *channel) drain(alloc protocol.Allocator) int {
	n := 0
	for {
		m, ok := ch.pop()
		if !ok {
			return n
		}
		alloc.Free(m)
		n++
	}
}

// channelTable maps peer addresses to channels, created on first use.
type channelTable struct {
	maxPeers int
	channels map[protocol.Address]*channel
}

func newChannelTable(maxPeers int) *channelTable {
	return &channelTable{
		maxPeers: maxPeers,
		channels: make(map[protocol.Address]*channel),
	}
}

func (t *channelTable) valid(addr protocol.Address) bool {
	return int(addr) < t.maxPeers
}

// get returns the channel for addr, creating it if needed.
func (t *channelTable) get(addr protocol.Address) (*channel, error) {
	if !t.valid(addr) {
		return nil, ErrInvalidTarget
	}
	ch, ok := t.channels[addr]
	if !ok {
		ch = newChannel(addr)
		t.channels[addr] = ch
	}
	return ch, nil
}

// lookup returns an existing channel without creating one.
func (t *channelTable) lookup(addr protocol.Address) *channel {
	if !t.valid(addr) {
		return nil
	}
	return t.channels[addr]
}

// bind attaches id to addr. A live binding owned by another connection
// is reported by alive and makes bind fail.
func (t *channelTable) bind(addr protocol.Address, id ConnID, alive func(ConnID) bool) (*channel, error) {
	ch, err := t.get(addr)
	if err != nil {
		return nil, err
	}
	if ch.conn != 0 && ch.conn != id && alive(ch.conn) {
		return nil, ErrAlreadyBound
	}
	ch.conn = id
	return ch, nil
}

// unbind clears the binding of addr if it is still held by id.
func (t *channelTable) unbind(addr protocol.Address, id ConnID) bool {
	ch := t.lookup(addr)
	if ch == nil || ch.conn != id {
		return false
	}
	ch.conn = 0
	return true
}
