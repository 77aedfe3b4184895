// Package config holds the node daemon configuration.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/pkg/ring"
)

// Config describes everything a node needs to start.
type Config struct {
	// Host is the address the node advertises to peers. It is part of the
	// node identity hash, so it must be reachable by other ring members.
	Host string

	// Port is the TCP port for ring RPC traffic.
	Port int

	// APIPort is the HTTP port for the monitoring API. Zero disables it.
	APIPort int

	// Bootstrap is the host:port of an existing ring member to join
	// through. Empty means create a new ring.
	Bootstrap string

	// StabilizeInterval is how often the successor pointer is verified.
	StabilizeInterval time.Duration

	// FixFingersInterval is how often one finger entry is refreshed.
	FixFingersInterval time.Duration

	// RPCTimeout bounds every single RPC to a peer.
	RPCTimeout time.Duration

	// LookupHopLimit caps the number of forwarding hops for one lookup.
	// Exceeding it reports a routing loop.
	LookupHopLimit int

	// RouteRetryLimit caps the number of alternate fingers tried when the
	// preferred next hop is unreachable.
	RouteRetryLimit int

	// JoinRetryLimit caps join attempts against a ring whose pointers are
	// still settling.
	JoinRetryLimit int

	// StoreShards is the shard count for the local key store.
	StoreShards int

	// LogLevel and LogFormat configure the logger.
	LogLevel  string
	LogFormat string

	// LogFile enables rotated file logging when non-empty.
	LogFile string
}

// DefaultConfig returns a config suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               7000,
		APIPort:            0,
		StabilizeInterval:  500 * time.Millisecond,
		FixFingersInterval: 100 * time.Millisecond,
		RPCTimeout:         3 * time.Second,
		LookupHopLimit:     2 * ring.M,
		RouteRetryLimit:    4,
		JoinRetryLimit:     3,
		StoreShards:        16,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Validate checks the configuration for values that would prevent the
// node from operating.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("api port %d out of range", c.APIPort)
	}
	if c.APIPort != 0 && c.APIPort == c.Port {
		return fmt.Errorf("api port must differ from ring port")
	}
	if c.Bootstrap != "" {
		host, _, err := net.SplitHostPort(c.Bootstrap)
		if err != nil || host == "" {
			return fmt.Errorf("bootstrap %q is not host:port", c.Bootstrap)
		}
	}
	if c.StabilizeInterval <= 0 {
		return fmt.Errorf("stabilize interval must be positive")
	}
	if c.FixFingersInterval <= 0 {
		return fmt.Errorf("fix fingers interval must be positive")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive")
	}
	if c.LookupHopLimit <= 0 {
		return fmt.Errorf("lookup hop limit must be positive")
	}
	if c.RouteRetryLimit < 0 {
		return fmt.Errorf("route retry limit must not be negative")
	}
	if c.JoinRetryLimit <= 0 {
		return fmt.Errorf("join retry limit must be positive")
	}
	return nil
}

// Address returns the node's advertised host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// RelayTimeout bounds a routed operation end to end: a lookup may spend
// up to RPCTimeout on each of RouteRetryLimit alternate fingers plus the
// final relay to the owner.
func (c *Config) RelayTimeout() time.Duration {
	return c.RPCTimeout * time.Duration(c.RouteRetryLimit+2)
}
