package config

import (
	"fmt"
	"slices"
	"time"
)

// Node configures one transport endpoint.
type Node struct {
	Name          string        `yaml:"name"`           // Label for logs and metrics, default random UUID
	Address       uint16        `yaml:"address"`        // Our peer address
	MaxPeers      int           `yaml:"max_peers"`      // Size of the peer address space, default 256
	Listen        string        `yaml:"listen"`         // Accept peers here, optional
	Peers         []string      `yaml:"peers"`          // host:port of peers to connect to
	DialTimeout   time.Duration `yaml:"dial_timeout"`   // Per attempt, default 10s
	SocketBuffer  int           `yaml:"socket_buffer"`  // Kernel socket buffer bytes, 0 keeps the OS default
	Reconnect     Reconnect     `yaml:"reconnect"`      // Retry policy of outbound connections
	MetricsListen string        `yaml:"metrics_listen"` // Serve /metrics here, optional
	PayloadCodec  string        `yaml:"payload_codec"`  // raw, json or msgpack, default json
}

// Reconnect configures the delay between reconnection attempts.
type Reconnect struct {
	Interval    time.Duration `yaml:"interval"`     // First delay, default 5s
	MaxInterval time.Duration `yaml:"max_interval"` // Cap for grown delays
	Factor      float64       `yaml:"factor"`       // Growth per attempt, default 1 (constant)
}

const (
	MaxPeersLimit = 0xFFFF // 0xFFFF itself is the invalid address
)

// Validate checks the node configuration. Call ApplyDefaults first.
func (n *Node) Validate() error {
	if n.MaxPeers < 1 || n.MaxPeers > MaxPeersLimit {
		return fmt.Errorf("max_peers must be between 1 and %d, got %d", MaxPeersLimit, n.MaxPeers)
	}
	if int(n.Address) >= n.MaxPeers {
		return fmt.Errorf("address %d must be below max_peers %d", n.Address, n.MaxPeers)
	}

	if n.Listen == "" && len(n.Peers) == 0 {
		return fmt.Errorf("at least one of listen or peers must be provided")
	}
	if n.Listen != "" {
		if err := ValidateListenAddress(n.Listen); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	for i, peer := range n.Peers {
		if err := ValidateAddress(peer); err != nil {
			return fmt.Errorf("peers[%d]: %w", i, err)
		}
	}
	if n.MetricsListen != "" {
		if err := ValidateListenAddress(n.MetricsListen); err != nil {
			return fmt.Errorf("metrics_listen: %w", err)
		}
	}

	if n.DialTimeout < 0 {
		return fmt.Errorf("dial_timeout cannot be negative")
	}
	if n.SocketBuffer < 0 {
		return fmt.Errorf("socket_buffer cannot be negative")
	}
	if n.Reconnect.Interval < 0 || n.Reconnect.MaxInterval < 0 {
		return fmt.Errorf("reconnect intervals cannot be negative")
	}
	if n.Reconnect.Factor < 0 {
		return fmt.Errorf("reconnect factor cannot be negative, got %v", n.Reconnect.Factor)
	}

	if n.PayloadCodec != "" && !slices.Contains(PayloadCodecs, n.PayloadCodec) {
		return fmt.Errorf("unknown payload_codec %q, expected one of %v", n.PayloadCodec, PayloadCodecs)
	}

	return nil
}

// DeduplicatePeers removes duplicate peer addresses, keeping the first occurrence.
// It reports whether duplicates were found.
func (n *Node) DeduplicatePeers() bool {
	if len(n.Peers) == 0 {
		return false
	}

	seen := make(map[string]bool, len(n.Peers))
	deduplicated := make([]string, 0, len(n.Peers))
	for _, peer := range n.Peers {
		if !seen[peer] {
			seen[peer] = true
			deduplicated = append(deduplicated, peer)
		}
	}

	if len(deduplicated) == len(n.Peers) {
		return false
	}
	n.Peers = deduplicated
	return true
}
