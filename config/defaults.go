package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values applied to zero-value fields
const (
	// DefaultMaxPeers is the default size of the peer address space
	DefaultMaxPeers = 256

	// DefaultDialTimeout bounds a single connection attempt
	DefaultDialTimeout = 10 * time.Second

	// DefaultReconnectInterval is the delay before an active connection is retried
	DefaultReconnectInterval = 5 * time.Second

	// DefaultReconnectFactor keeps the reconnect delay constant
	DefaultReconnectFactor = 1.0

	// DefaultPayloadCodec is used by the demo sender when none is configured
	DefaultPayloadCodec = "json"
)

// PayloadCodecs lists the accepted payload_codec values
var PayloadCodecs = []string{"raw", "json", "msgpack"}

// GenerateNodeName generates a new UUID for use as a node name.
// This is useful for K8s deployments where multiple pods share the same ConfigMap.
func GenerateNodeName() string {
	return uuid.New().String()
}

// ApplyDefaults fills zero-value fields with their defaults.
func (n *Node) ApplyDefaults() {
	if n.Name == "" {
		n.Name = GenerateNodeName()
	}
	if n.MaxPeers == 0 {
		n.MaxPeers = DefaultMaxPeers
	}
	if n.DialTimeout == 0 {
		n.DialTimeout = DefaultDialTimeout
	}
	if n.Reconnect.Interval == 0 {
		n.Reconnect.Interval = DefaultReconnectInterval
	}
	if n.Reconnect.Factor == 0 {
		n.Reconnect.Factor = DefaultReconnectFactor
	}
	if n.PayloadCodec == "" {
		n.PayloadCodec = DefaultPayloadCodec
	}
}
