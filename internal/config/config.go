// Package config loads and validates nyat64 daemon configuration using
// koanf/v2.
//
// Supports JSON files, environment variables, and the CLI's -c flag.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	jsonparser "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nyantec/nyat64/internal/xlate"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete nyat64 configuration: the two link endpoints,
// the static mapping table, and the ARP responder toggle.
type Config struct {
	Interfaces Interfaces      `koanf:"interfaces" json:"interfaces"`
	Mappings   []MappingConfig `koanf:"mappings" json:"mappings"`
	SendARP    bool            `koanf:"send_arp" json:"send_arp"`
}

// Interfaces holds the IPv4 (raw Ethernet) and IPv6 (TUN) endpoint
// descriptions.
type Interfaces struct {
	IPv4 InterfaceConfig `koanf:"ipv4" json:"ipv4"`
	IPv6 InterfaceConfig `koanf:"ipv6" json:"ipv6"`
}

// InterfaceConfig describes one link endpoint. In the configuration file
// it may appear either as a bare interface name ("eth0") or as an object
// with an optional address/mask/mtu to apply at startup; UnmarshalJSON
// accepts both shapes.
type InterfaceConfig struct {
	Name    string `koanf:"name" json:"name"`
	Address string `koanf:"address" json:"address,omitempty"`
	Mask    int    `koanf:"mask" json:"mask,omitempty"`
	MTU     int    `koanf:"mtu" json:"mtu,omitempty"`
}

// UnmarshalJSON accepts either a bare JSON string (interpreted as Name)
// or a full object.
func (ic *InterfaceConfig) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		ic.Name = name
		return nil
	}

	type shape InterfaceConfig
	var s shape
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("interface config: %w", err)
	}

	*ic = InterfaceConfig(s)
	return nil
}

// UnmarshalText accepts a bare interface name. Load decodes through
// koanf, which hands a bare-string entry to this method rather than to
// UnmarshalJSON.
func (ic *InterfaceConfig) UnmarshalText(text []byte) error {
	*ic = InterfaceConfig{Name: string(text)}
	return nil
}

// AddrPrefix parses Address/Mask into a netip.Prefix, when Address is set.
func (ic InterfaceConfig) AddrPrefix() (netip.Prefix, bool, error) {
	if ic.Address == "" {
		return netip.Prefix{}, false, nil
	}

	addr, err := netip.ParseAddr(ic.Address)
	if err != nil {
		return netip.Prefix{}, false, fmt.Errorf("parse interface address %q: %w", ic.Address, err)
	}

	return netip.PrefixFrom(addr, ic.Mask), true, nil
}

// MappingConfig is the JSON-level representation of one mapping table
// entry, before the addresses are parsed into xlate.Mapping.
type MappingConfig struct {
	IPv4Local   string `koanf:"ipv4_local" json:"ipv4_local"`
	IPv4Remote  string `koanf:"ipv4_remote" json:"ipv4_remote"`
	IPv6Local   string `koanf:"ipv6_local" json:"ipv6_local"`
	IPv6Remote  string `koanf:"ipv6_remote" json:"ipv6_remote"`
	IPv4Gateway string `koanf:"ipv4_gateway" json:"ipv4_gateway,omitempty"`
}

// mappingKey returns a key identifying the (ipv6_local, ipv6_remote) pair,
// used to reject duplicate entries.
func (mc MappingConfig) mappingKey() string {
	return mc.IPv6Local + "|" + mc.IPv6Remote
}

// ToXlateMappings parses the configured mapping entries into
// xlate.Mapping values, suitable for xlate.NewTable. It returns an error
// naming the first address that does not parse; it does not run the
// other Validate checks.
func (cfg *Config) ToXlateMappings() ([]xlate.Mapping, error) {
	out := make([]xlate.Mapping, 0, len(cfg.Mappings))

	for i, mc := range cfg.Mappings {
		m := xlate.Mapping{}

		var err error
		if m.IPv4Local, err = netip.ParseAddr(mc.IPv4Local); err != nil {
			return nil, fmt.Errorf("mappings[%d].ipv4_local: %w", i, err)
		}
		if m.IPv4Remote, err = netip.ParseAddr(mc.IPv4Remote); err != nil {
			return nil, fmt.Errorf("mappings[%d].ipv4_remote: %w", i, err)
		}
		if m.IPv6Local, err = netip.ParseAddr(mc.IPv6Local); err != nil {
			return nil, fmt.Errorf("mappings[%d].ipv6_local: %w", i, err)
		}
		if m.IPv6Remote, err = netip.ParseAddr(mc.IPv6Remote); err != nil {
			return nil, fmt.Errorf("mappings[%d].ipv6_remote: %w", i, err)
		}

		if mc.IPv4Gateway != "" {
			if m.IPv4GW, err = netip.ParseAddr(mc.IPv4Gateway); err != nil {
				return nil, fmt.Errorf("mappings[%d].ipv4_gateway: %w", i, err)
			}
		}

		out = append(out, m)
	}

	return out, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config with SendARP disabled and no mappings;
// callers are expected to load a real configuration file on top of it.
func DefaultConfig() *Config {
	return &Config{
		SendARP: false,
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for nyat64 configuration.
// Variables are named NYAT64_<SECTION>_<KEY>, e.g. NYAT64_SEND_ARP.
const envPrefix = "NYAT64_"

// Load reads configuration from a JSON file at path, overlays environment
// variable overrides (NYAT64_ prefix), and merges on top of DefaultConfig().
//
// Environment variable mapping:
//
//	NYAT64_SEND_ARP          -> send_arp
//	NYAT64_INTERFACES_IPV4   -> interfaces.ipv4 (bare name only)
//	NYAT64_INTERFACES_IPV6   -> interfaces.ipv6 (bare name only)
//
// Mappings are not overridable by environment variable; they must come
// from the config file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), jsonparser.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper maps a handful of known NYAT64_* environment variables onto
// their koanf keys. Unlike the teacher's uniform "_"->"." replacement,
// send_arp is itself a flat, underscore-bearing key, so a generic
// transform would misfile it under a nonexistent "send.arp" path;
// recognized variables are mapped explicitly instead.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)

	switch s {
	case "send_arp":
		return "send_arp"
	case "interfaces_ipv4":
		return "interfaces.ipv4"
	case "interfaces_ipv6":
		return "interfaces.ipv6"
	default:
		return strings.ReplaceAll(s, "_", ".")
	}
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrEmptyInterfaceName    = errors.New("interface name must not be empty")
	ErrInvalidMappingAddress = errors.New("mapping address is invalid or wrong family")
	ErrInvalidGateway        = errors.New("mapping gateway must be a valid IPv4 host address")
	ErrDuplicateMappingKey   = errors.New("duplicate (ipv6_local, ipv6_remote) mapping pair")
	ErrNoMappings            = errors.New("configuration must declare at least one mapping")
)

// Validate checks the configuration for logical errors. Returns the
// first validation error encountered, wrapped with positional context.
func Validate(cfg *Config) error {
	if cfg.Interfaces.IPv4.Name == "" {
		return fmt.Errorf("interfaces.ipv4: %w", ErrEmptyInterfaceName)
	}

	if cfg.Interfaces.IPv6.Name == "" {
		return fmt.Errorf("interfaces.ipv6: %w", ErrEmptyInterfaceName)
	}

	if len(cfg.Mappings) == 0 {
		return ErrNoMappings
	}

	seen := make(map[string]struct{}, len(cfg.Mappings))

	for i, mc := range cfg.Mappings {
		if err := validateMapping(mc); err != nil {
			return fmt.Errorf("mappings[%d]: %w", i, err)
		}

		key := mc.mappingKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("mappings[%d]: %w: %s", i, ErrDuplicateMappingKey, key)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func validateMapping(mc MappingConfig) error {
	if !isV4(mc.IPv4Local) {
		return fmt.Errorf("ipv4_local %q: %w", mc.IPv4Local, ErrInvalidMappingAddress)
	}

	if !isV4(mc.IPv4Remote) {
		return fmt.Errorf("ipv4_remote %q: %w", mc.IPv4Remote, ErrInvalidMappingAddress)
	}

	if !isV6(mc.IPv6Local) {
		return fmt.Errorf("ipv6_local %q: %w", mc.IPv6Local, ErrInvalidMappingAddress)
	}

	if !isV6(mc.IPv6Remote) {
		return fmt.Errorf("ipv6_remote %q: %w", mc.IPv6Remote, ErrInvalidMappingAddress)
	}

	if mc.IPv4Gateway != "" {
		gw, err := netip.ParseAddr(mc.IPv4Gateway)
		if err != nil || !gw.Is4() || gw.IsUnspecified() || gw.IsMulticast() ||
			gw == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
			return fmt.Errorf("ipv4_gateway %q: %w", mc.IPv4Gateway, ErrInvalidGateway)
		}
	}

	return nil
}

// isV4 reports whether s parses as an IPv4 address.
func isV4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// isV6 reports whether s parses as an IPv6 address (and not an
// IPv4-mapped form, which would be rejected by downstream IPv6-only
// codec assumptions).
func isV6(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is6() && !addr.Is4In6()
}
