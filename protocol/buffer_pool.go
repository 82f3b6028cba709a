package protocol

import "sync"

// Allocator hands out message storage. Alloc never returns nil and the
// returned message has an empty payload and Cap() >= HeaderSize+payloadSize.
type Allocator interface {
	Alloc(payloadSize int) *Message
	Free(m *Message)
}

// Buffer size classes, header included
const (
	SmallBufferSize  = 256         // Control frames and default reads
	MediumBufferSize = 4096        // Typical messages
	LargeBufferSize  = 65536       // Large payloads
	MaxPooledBuffer  = 1024 * 1024 // 1MB - don't pool larger buffers
)

var bufferClasses = [...]int{SmallBufferSize, MediumBufferSize, LargeBufferSize, MaxPooledBuffer}

// PoolAllocator is the default Allocator, backed by one sync.Pool per size class.
// It is safe for concurrent use.
type PoolAllocator struct {
	pools [len(bufferClasses)]sync.Pool
}

// NewPoolAllocator creates a pooled allocator.
func NewPoolAllocator() *PoolAllocator {
	a := &PoolAllocator{}
	for i, size := range bufferClasses {
		a.pools[i].New = func() interface{} {
			return NewMessage(make([]byte, size))
		}
	}
	return a
}

// DefaultAllocator is shared by transports that don't bring their own allocator.
var DefaultAllocator = NewPoolAllocator()

func classOf(size int) int {
	for i, c := range bufferClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// Alloc returns a message able to carry payloadSize bytes.
func (a *PoolAllocator) Alloc(payloadSize int) *Message {
	if payloadSize < 0 {
		payloadSize = 0
	}
	need := HeaderSize + payloadSize

	idx := classOf(need)
	if idx < 0 {
		// Oversized buffers are allocated exactly and never pooled
		return NewMessage(make([]byte, need))
	}

	m := a.pools[idx].Get().(*Message)
	m.Reset()
	return m
}

// Free returns m to its pool. Buffers not matching a size class are dropped.
func (a *PoolAllocator) Free(m *Message) {
	if m == nil {
		return
	}
	idx := classOf(m.Cap())
	if idx < 0 || bufferClasses[idx] != m.Cap() {
		return
	}
	a.pools[idx].Put(m)
}
