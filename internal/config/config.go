// Package config loads resolver settings from a YAML file.
package config

import (
	"fmt"
	"os"

	"github.com/abczzz13/httpip"
	"gopkg.in/yaml.v3"
)

// Preset names accepted in trusted_presets.
const (
	PresetLoopback = "loopback"
	PresetPrivate  = "private"
)

type Config struct {
	TrustedProxies     []httpip.Cidr `yaml:"trusted_proxies"`
	TrustedPresets     []string      `yaml:"trusted_presets"`  // loopback, private
	Headers            []string      `yaml:"headers"`          // in priority order
	MalformedPolicy    string        `yaml:"malformed_policy"` // skip or abort
	MaxChainLength     int           `yaml:"max_chain_length"`
	RemoteAddrFallback *bool         `yaml:"remote_addr_fallback"`
}

// Load reads and parses the YAML file at path, filling in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.MalformedPolicy == "" {
		cfg.MalformedPolicy = httpip.SkipMalformed.String()
	}
	if cfg.MaxChainLength == 0 {
		cfg.MaxChainLength = httpip.DefaultMaxChainLength
	}

	return &cfg, nil
}

// Validate checks the settings that New would otherwise reject with a less
// specific message.
func (c *Config) Validate() error {
	if len(c.TrustedProxies) == 0 && len(c.TrustedPresets) == 0 {
		return fmt.Errorf("at least one trusted proxy range or preset must be defined")
	}

	for i, cidr := range c.TrustedProxies {
		if !cidr.IsValid() {
			return fmt.Errorf("trusted_proxies[%d]: empty CIDR", i)
		}
	}

	for _, preset := range c.TrustedPresets {
		if preset != PresetLoopback && preset != PresetPrivate {
			return fmt.Errorf("trusted_presets must be either '%s' or '%s', got: %s", PresetLoopback, PresetPrivate, preset)
		}
	}

	for i, header := range c.Headers {
		if header == "" {
			return fmt.Errorf("headers[%d]: header name cannot be empty", i)
		}
	}

	if _, err := httpip.ParseMalformedPolicy(c.MalformedPolicy); err != nil {
		return fmt.Errorf("malformed_policy must be either 'skip' or 'abort', got: %s", c.MalformedPolicy)
	}

	if c.MaxChainLength < 0 {
		return fmt.Errorf("max_chain_length must be positive, got: %d", c.MaxChainLength)
	}

	return nil
}

// Options translates c into resolver options. Call Validate first.
func (c *Config) Options() ([]httpip.Option, error) {
	policy, err := httpip.ParseMalformedPolicy(c.MalformedPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid malformed_policy: %w", err)
	}

	opts := []httpip.Option{
		httpip.TrustCidrs(c.TrustedProxies...),
		httpip.WithMalformedPolicy(policy),
	}

	for _, preset := range c.TrustedPresets {
		switch preset {
		case PresetLoopback:
			opts = append(opts, httpip.TrustLoopbackProxy())
		case PresetPrivate:
			opts = append(opts, httpip.TrustPrivateProxyRanges())
		}
	}

	if len(c.Headers) > 0 {
		opts = append(opts, httpip.Priority(c.Headers...))
	}
	if c.MaxChainLength > 0 {
		opts = append(opts, httpip.MaxChainLength(c.MaxChainLength))
	}
	if c.RemoteAddrFallback != nil {
		opts = append(opts, httpip.WithRemoteAddrFallback(*c.RemoteAddrFallback))
	}

	return opts, nil
}
