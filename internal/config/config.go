// Package config handles TOML configuration parsing and validation for ip4router.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/soypat/ip4router/router"
)

// Config is the top-level configuration for the router process.
type Config struct {
	Log        LogConfig         `toml:"log"`
	Metrics    MetricsConfig     `toml:"metrics"`
	Interfaces []InterfaceConfig `toml:"interface"`
	Routes     []RouteConfig     `toml:"route"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"; defaults to "info"
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"` // e.g. "127.0.0.1:9100"
}

// InterfaceConfig describes one local interface: its link-layer device name,
// its IPv4 address/subnet, and the transport used to read/write frames on
// it ("tap" for a Linux TUN/TAP device, "bridge" for raw AF_PACKET).
type InterfaceConfig struct {
	Name      string `toml:"name"`
	Transport string `toml:"transport"` // "tap" or "bridge"
	Device    string `toml:"device"`    // OS device/link name backing the transport
	HWAddr    string `toml:"hwaddr"`
	Address   string `toml:"address"` // CIDR, e.g. "10.0.1.1/24"
}

// RouteConfig describes one static routing table entry.
type RouteConfig struct {
	Dest    string `toml:"dest"`    // CIDR
	Gateway string `toml:"gateway"` // empty means directly-connected / on-link
	Iface   string `toml:"iface"`
}

// Load reads and parses a TOML config file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("at least one [[interface]] is required")
	}
	seen := make(map[string]bool, len(cfg.Interfaces))
	for i := range cfg.Interfaces {
		ic := &cfg.Interfaces[i]
		if ic.Name == "" {
			return fmt.Errorf("interface %d: name is required", i)
		}
		if seen[ic.Name] {
			return fmt.Errorf("interface %q: duplicate name", ic.Name)
		}
		seen[ic.Name] = true
		if ic.Transport != "tap" && ic.Transport != "bridge" {
			return fmt.Errorf("interface %q: transport must be \"tap\" or \"bridge\", got %q", ic.Name, ic.Transport)
		}
		if _, err := net.ParseMAC(ic.HWAddr); err != nil {
			return fmt.Errorf("interface %q: invalid hwaddr %q: %w", ic.Name, ic.HWAddr, err)
		}
		if _, err := netip.ParsePrefix(ic.Address); err != nil {
			return fmt.Errorf("interface %q: invalid address %q: %w", ic.Name, ic.Address, err)
		}
	}
	for i := range cfg.Routes {
		rc := &cfg.Routes[i]
		if _, err := netip.ParsePrefix(rc.Dest); err != nil {
			return fmt.Errorf("route %d: invalid dest %q: %w", i, rc.Dest, err)
		}
		if rc.Gateway != "" {
			if _, err := netip.ParseAddr(rc.Gateway); err != nil {
				return fmt.Errorf("route %d: invalid gateway %q: %w", i, rc.Gateway, err)
			}
		}
		if !seen[rc.Iface] {
			return fmt.Errorf("route %d: references unknown interface %q", i, rc.Iface)
		}
	}
	return nil
}

// BuildInterfaces converts the parsed interface configs into a
// router.Interfaces registry.
func BuildInterfaces(cfg *Config) (*router.Interfaces, error) {
	ifaces := make([]*router.Interface, 0, len(cfg.Interfaces))
	for i := range cfg.Interfaces {
		ic := &cfg.Interfaces[i]
		mac, err := net.ParseMAC(ic.HWAddr)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		prefix, err := netip.ParsePrefix(ic.Address)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		ifc := &router.Interface{Name: ic.Name, Addr: prefix}
		copy(ifc.HW[:], mac)
		ifaces = append(ifaces, ifc)
	}
	return router.NewInterfaces(ifaces), nil
}

// BuildRoutes converts the parsed route configs into a router.Routes table.
func BuildRoutes(cfg *Config) (*router.Routes, error) {
	routes := make([]router.Route, 0, len(cfg.Routes))
	for i := range cfg.Routes {
		rc := &cfg.Routes[i]
		dest, err := netip.ParsePrefix(rc.Dest)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		var gw netip.Addr
		if rc.Gateway != "" {
			gw, err = netip.ParseAddr(rc.Gateway)
			if err != nil {
				return nil, fmt.Errorf("route %d: %w", i, err)
			}
		}
		routes = append(routes, router.Route{Dest: dest, Gateway: gw, Iface: rc.Iface})
	}
	return router.NewRoutes(routes), nil
}
