package config

import (
	"fmt"
	"net"
	"strconv"
)

const (
	EnvPrefix = "SMQ_"
)

// ValidateAddress validates that an address is in valid host:port format.
// Returns an error if the address is invalid.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format %q: %w", addr, err)
	}

	if host == "" {
		return fmt.Errorf("host cannot be empty in address %q", addr)
	}

	return validatePort(portStr, addr, 1)
}

// ValidateListenAddress is like ValidateAddress but allows an empty host
// (all interfaces) and port 0 (any free port).
func ValidateListenAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format %q: %w", addr, err)
	}

	return validatePort(portStr, addr, 0)
}

func validatePort(portStr, addr string, min int) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in address %q: %w", addr, err)
	}

	if port < min || port > 65535 {
		return fmt.Errorf("port must be between %d and 65535, got %d in address %q", min, port, addr)
	}

	return nil
}
