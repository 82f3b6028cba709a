package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	"github.com/Mmx233/SMQ/protocol"
)

// Dispatcher receives user messages from Ready connections.
// HandleMessage runs on the transport loop; m is released after it returns,
// so implementations must copy anything they keep.
type Dispatcher interface {
	HandleMessage(source protocol.Address, m *protocol.Message)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(source protocol.Address, m *protocol.Message)

func (f DispatcherFunc) HandleMessage(source protocol.Address, m *protocol.Message) {
	f(source, m)
}

// Options configures a Transport. Self, MaxPeers and Dispatcher are required.
type Options struct {
	Name       string           // node label for logs and metrics
	Self       protocol.Address // our address, announced during the handshake
	MaxPeers   int              // size of the peer address space, addresses are [0, MaxPeers)
	Dispatcher Dispatcher

	Allocator    protocol.Allocator    // default protocol.DefaultAllocator
	Reconnect    Backoff               // delay between reconnection attempts
	DialTimeout  time.Duration         // default 10s
	SocketBuffer int                   // kernel send and receive buffer size, 0 keeps the OS default
	Clock        clock.Clock           // default wall clock
	Logger       *zerolog.Logger       // default global logger
	Registerer   prometheus.Registerer // default a private registry
}

// Transport moves framed messages between a fixed set of peers over TCP.
//
// All connection and channel state lives on one loop goroutine started by Run.
// Post, SetupAcceptor, SetupConnect, Snapshot and Close are safe to call from
// any goroutine.
type Transport struct {
	self        protocol.Address
	maxPeers    int
	dispatcher  Dispatcher
	alloc       protocol.Allocator
	backoff     Backoff
	dialTimeout time.Duration
	control     func(network, address string, c syscall.RawConn) error
	clock       clock.Clock
	logger      zerolog.Logger
	metrics     *metrics

	loop      *loop
	handshake *handshake

	ctx    context.Context // cancelled on shutdown, aborts pending dials
	cancel context.CancelFunc
	wg     sync.WaitGroup // I/O goroutines

	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{} // closed by Close
	stopped   chan struct{} // closed when Run returns

	// loop goroutine only
	conns     map[ConnID]*conn
	channels  *channelTable
	listeners []net.Listener
}

// New validates opts and creates a transport. Nothing happens on the
// network until Run is called.
func New(opts Options) (*Transport, error) {
	if opts.MaxPeers <= 0 || opts.MaxPeers > int(protocol.AddressInvalid) {
		return nil, fmt.Errorf("%w: max peers must be between 1 and %d, got %d",
			ErrInvalidOptions, protocol.AddressInvalid, opts.MaxPeers)
	}
	if int(opts.Self) >= opts.MaxPeers {
		return nil, fmt.Errorf("%w: self address %d outside [0, %d)", ErrInvalidOptions, opts.Self, opts.MaxPeers)
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", ErrInvalidOptions)
	}
	if opts.SocketBuffer < 0 {
		return nil, fmt.Errorf("%w: socket buffer cannot be negative", ErrInvalidOptions)
	}

	if opts.Allocator == nil {
		opts.Allocator = protocol.DefaultAllocator
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.Name == "" {
		opts.Name = strconv.Itoa(int(opts.Self))
	}
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	logger := base.With().
		Str("com", "transport").
		Str("node", opts.Name).
		Logger()

	m, err := newMetrics(opts.Registerer, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		self:        opts.Self,
		maxPeers:    opts.MaxPeers,
		dispatcher:  opts.Dispatcher,
		alloc:       opts.Allocator,
		backoff:     opts.Reconnect,
		dialTimeout: opts.DialTimeout,
		control:     socketControl(opts.SocketBuffer),
		clock:       opts.Clock,
		logger:      logger,
		metrics:     m,
		loop:        newLoop(logger),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		conns:       make(map[ConnID]*conn),
		channels:    newChannelTable(opts.MaxPeers),
	}
	t.handshake = &handshake{self: opts.Self, host: t}
	return t, nil
}

// Self returns the local peer address.
func (t *Transport) Self() protocol.Address {
	return t.self
}

// Allocator returns the allocator messages passed to Post should come from.
func (t *Transport) Allocator() protocol.Allocator {
	return t.alloc
}

// SetupAcceptor binds a TCP listener on addr and accepts peers on it once
// the loop runs. Bind errors are returned immediately.
func (t *Transport) SetupAcceptor(addr string) (net.Addr, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	lc := net.ListenConfig{Control: t.control}
	ln, err := lc.Listen(t.ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	err = t.loop.Dispatch(func() {
		t.listeners = append(t.listeners, ln)
		t.logger.Info().Str("listen", ln.Addr().String()).Msg("accepting peers")
		t.armAccept(ln)
	}, func() {
		_ = ln.Close()
	})
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return ln.Addr(), nil
}

// SetupConnect creates an active connection to addr (host:port). The
// connection reconnects on loss until the transport shuts down.
func (t *Transport) SetupConnect(addr string) error {
	if err := validateAddress(addr); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrClosed
	}
	return t.loop.Dispatch(func() {
		c := newConn(Active, addr, t.logger)
		t.addConn(c)
		t.connect(c)
	}, nil)
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if host == "" {
		return fmt.Errorf("%w: host cannot be empty in %q", ErrInvalidAddress, addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, addr)
	}
	return nil
}

// Post queues m for m.Target. On success the transport owns m; on error
// the caller keeps it. Frames to one target leave in Post order.
func (t *Transport) Post(m *protocol.Message) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidType)
	}
	if int(m.Target) >= t.maxPeers {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidTarget, m.Target, t.maxPeers)
	}
	if m.Target == t.self {
		return fmt.Errorf("%w: %d is this transport", ErrInvalidTarget, m.Target)
	}
	if m.Type != protocol.TypeUser {
		return fmt.Errorf("%w: type %d", ErrInvalidType, m.Type)
	}
	if err := validateFrame(m); err != nil {
		return err
	}
	if t.closed.Load() {
		return ErrClosed
	}
	return t.loop.Dispatch(func() {
		t.enqueue(m)
	}, func() {
		t.alloc.Free(m)
	})
}

// validateFrame checks the header fields a caller may have changed after
// encoding. The writer trusts Length to slice the buffer.
func validateFrame(m *protocol.Message) error {
	if m.Version != protocol.Version {
		return fmt.Errorf("%w: version %d", ErrInvalidFrame, m.Version)
	}
	if m.Length < protocol.HeaderSize || m.Length > protocol.MaxTotalLength {
		return fmt.Errorf("%w: length %d outside [%d, %d]",
			ErrInvalidFrame, m.Length, protocol.HeaderSize, protocol.MaxTotalLength)
	}
	if int(m.Length) > m.Cap() {
		return fmt.Errorf("%w: length %d exceeds capacity %d", ErrInvalidFrame, m.Length, m.Cap())
	}
	return nil
}

// Run drives the transport until ctx is done or Close is called, then tears
// everything down. It returns the errors met while closing sockets.
func (t *Transport) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(t.stopped)

	t.logger.Info().
		Uint16("self", uint16(t.self)).
		Int("max_peers", t.maxPeers).
		Msg("transport started")

	t.loop.run(ctx.Done(), t.done)
	return t.shutdown()
}

// Close asks Run to stop. It does not wait; Run returns once shutdown is complete.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
}

// Done is closed after Run has returned.
func (t *Transport) Done() <-chan struct{} {
	return t.stopped
}

func (t *Transport) shutdown() error {
	t.closed.Store(true)
	t.cancel()

	var err error
	for _, ln := range t.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("close listener %s: %w", ln.Addr(), cerr))
		}
	}
	t.listeners = nil

	for _, c := range t.conns {
		c.stopTimer()
		if cerr := c.detach(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("close connection %d: %w", c.id, cerr))
		}
	}

	// every pending dial, accept, read and write fails fast now
	t.wg.Wait()

	for _, tk := range t.loop.close() {
		if tk.drop != nil {
			tk.drop()
		}
	}

	dropped := 0
	for _, ch := range t.channels.channels {
		dropped += ch.drain(t.alloc)
		ch.conn = 0
	}
	t.conns = make(map[ConnID]*conn)
	t.metrics.connections.Reset()
	t.metrics.ready.Set(0)
	t.metrics.queued.Set(0)

	t.logger.Info().Int("dropped", dropped).Msg("transport stopped")
	return err
}

// post hands a completion to the loop, or releases its resources when the
// loop is gone.
func (t *Transport) post(run, drop func()) {
	if err := t.loop.Dispatch(run, drop); err != nil && drop != nil {
		drop()
	}
}
