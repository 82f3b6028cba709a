package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Mmx233/SMQ/config"
	"github.com/Mmx233/SMQ/payload"
	"github.com/Mmx233/SMQ/protocol"
	"github.com/Mmx233/SMQ/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// node wires a transport to the demo chat payloads.
type node struct {
	cfg       *config.Node
	codec     payload.Codec
	transport *transport.Transport
	logger    zerolog.Logger

	seq      uint64 // sender goroutine only
	received func(source protocol.Address, chat payload.Chat)
}

func newNode(cfg *config.Node, reg prometheus.Registerer) (*node, error) {
	codec, err := payload.ByName(cfg.PayloadCodec)
	if err != nil {
		return nil, err
	}

	n := &node{
		cfg:    cfg,
		codec:  codec,
		logger: log.With().Str("com", "node").Str("node", cfg.Name).Logger(),
	}
	n.transport, err = transport.New(transport.Options{
		Name:       cfg.Name,
		Self:       protocol.Address(cfg.Address),
		MaxPeers:   cfg.MaxPeers,
		Dispatcher: n,
		Reconnect: transport.Backoff{
			Interval:    cfg.Reconnect.Interval,
			MaxInterval: cfg.Reconnect.MaxInterval,
			Factor:      cfg.Reconnect.Factor,
		},
		DialTimeout:  cfg.DialTimeout,
		SocketBuffer: cfg.SocketBuffer,
		Registerer:   reg,
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// start opens the listener and the outbound connections of the configuration.
// It returns the bound listen address, nil when the node does not listen.
func (n *node) start() (net.Addr, error) {
	var addr net.Addr
	if n.cfg.Listen != "" {
		var err error
		if addr, err = n.transport.SetupAcceptor(n.cfg.Listen); err != nil {
			return nil, err
		}
	}
	for _, peer := range n.cfg.Peers {
		if err := n.transport.SetupConnect(peer); err != nil {
			return nil, fmt.Errorf("connect %s: %w", peer, err)
		}
	}
	return addr, nil
}

// HandleMessage logs every chat received from a peer.
func (n *node) HandleMessage(source protocol.Address, m *protocol.Message) {
	var chat payload.Chat
	if m.Flags == payload.FlagRaw {
		if err := payload.Decode(m, &chat.Text); err != nil {
			n.logger.Warn().Err(err).Uint16("source", uint16(source)).Msg("undecodable payload")
			return
		}
	} else if err := payload.Decode(m, &chat); err != nil {
		n.logger.Warn().Err(err).Uint16("source", uint16(source)).Msg("undecodable payload")
		return
	}

	event := n.logger.Info().
		Uint16("source", uint16(source)).
		Str("text", chat.Text)
	if chat.From != "" {
		event = event.Str("from", chat.From).Uint64("seq", chat.Seq)
	}
	if chat.SentAt != 0 {
		event = event.Dur("latency", time.Since(time.Unix(0, chat.SentAt)))
	}
	event.Msg("received message")

	if n.received != nil {
		n.received(source, chat)
	}
}

// send posts text to target encoded with the configured codec.
func (n *node) send(target protocol.Address, text string) error {
	n.seq++
	var v any = payload.Chat{
		From:   n.cfg.Name,
		Seq:    n.seq,
		Text:   text,
		SentAt: time.Now().UnixNano(),
	}
	if n.codec.Flag() == payload.FlagRaw {
		v = text
	}

	alloc := n.transport.Allocator()
	m, err := payload.Encode(alloc, n.codec, target, v)
	if err != nil {
		return err
	}
	if err := n.transport.Post(m); err != nil {
		alloc.Free(m)
		return err
	}
	return nil
}

// sendLoop posts text to every target on each tick and every line read from
// lines, until ctx is done. A nil lines channel or a zero interval disables
// that source.
func (n *node) sendLoop(ctx context.Context, targets []protocol.Address, interval time.Duration, text string, lines <-chan string) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	broadcast := func(text string) error {
		for _, target := range targets {
			if err := n.send(target, text); err != nil {
				if errors.Is(err, transport.ErrClosed) {
					return nil
				}
				return fmt.Errorf("send to %d: %w", target, err)
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := broadcast(text); err != nil {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			if err := broadcast(line); err != nil {
				return err
			}
		}
	}
}

// serveMetrics serves the registry on /metrics until ctx is done.
func serveMetrics(ctx context.Context, ln net.Listener, gatherer prometheus.Gatherer) error {
	logger := log.With().Str("com", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("listen", ln.Addr().String()).Msg("serving metrics")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
