// Package config loads portal configuration from defaults, an optional YAML
// file and PORTAL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"aiportal.dev/internal/upstream"
)

// Config is the full portal configuration.
type Config struct {
	Server     ServerConfig   `yaml:"server" mapstructure:"server"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
	Database   DatabaseConfig `yaml:"database" mapstructure:"database"`
	Auth       AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Datumo     UpstreamConfig `yaml:"datumo" mapstructure:"datumo"`
	SKTAI      UpstreamConfig `yaml:"sktai" mapstructure:"sktai"`
	Approval   UpstreamConfig `yaml:"approval" mapstructure:"approval"`
	Prometheus UpstreamConfig `yaml:"prometheus" mapstructure:"prometheus"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	GRPCAddr        string        `yaml:"grpc_addr" mapstructure:"grpc_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	// TrustedProxies are addresses or CIDR prefixes whose X-Forwarded-For
	// header is believed. Empty means the header is ignored.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// Proxies parses TrustedProxies.
func (s ServerConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DatabaseConfig is optional; without a DSN tokens live in memory only.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// AuthConfig validates portal bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
	Audience  string `yaml:"audience" mapstructure:"audience"`
}

// UpstreamConfig is the block shared by every external system. Only the
// credential fields relevant to the system are read.
type UpstreamConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSec    float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst         int           `yaml:"burst" mapstructure:"burst"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	SigningSecret string        `yaml:"signing_secret" mapstructure:"signing_secret"`
	ClientID      string        `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string        `yaml:"client_secret" mapstructure:"client_secret"`
	BearerToken   string        `yaml:"bearer_token" mapstructure:"bearer_token"`
}

// Limiter returns the outbound limiter, nil when unthrottled.
func (u UpstreamConfig) Limiter() *rate.Limiter {
	if u.RatePerSec <= 0 {
		return nil
	}
	burst := u.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(u.RatePerSec), burst)
}

// Client is the transport part of the block; callers add auth.
func (u UpstreamConfig) Client() upstream.Config {
	return upstream.Config{
		BaseURL: u.BaseURL,
		Timeout: u.Timeout,
		Limiter: u.Limiter(),
	}
}

// Upstreams lists the upstream blocks by system name.
func (c *Config) Upstreams() map[string]UpstreamConfig {
	return map[string]UpstreamConfig{
		"datumo":     c.Datumo,
		"sktai":      c.SKTAI,
		"approval":   c.Approval,
		"prometheus": c.Prometheus,
	}
}

// Validate checks the configuration as a whole and reports every problem.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if _, err := c.Server.Proxies(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}
	for name, u := range c.Upstreams() {
		if !u.Enabled {
			continue
		}
		if err := validURL(u.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("%s.base_url: %w", name, err))
		}
		if u.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must not be negative", name))
		}
	}
	if c.SKTAI.Enabled && (c.SKTAI.ClientID == "" || c.SKTAI.ClientSecret == "") {
		errs = append(errs, errors.New("sktai.client_id and sktai.client_secret are required"))
	}
	if c.Approval.Enabled && (c.Approval.APIKey == "" || c.Approval.SigningSecret == "") {
		errs = append(errs, errors.New("approval.api_key and approval.signing_secret are required"))
	}
	return errors.Join(errs...)
}

func validURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) url", raw)
	}
	return nil
}

const redacted = "<redacted>"

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	hide := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Auth.JWTSecret = hide(c.Auth.JWTSecret)
	c.Database.DSN = redactDSN(c.Database.DSN)
	for _, u := range []*UpstreamConfig{&c.Datumo, &c.SKTAI, &c.Approval, &c.Prometheus} {
		u.APIKey = hide(u.APIKey)
		u.SigningSecret = hide(u.SigningSecret)
		u.ClientSecret = hide(u.ClientSecret)
		u.BearerToken = hide(u.BearerToken)
	}
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	c.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	return c
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
