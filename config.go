package parley

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-file shape consumed by the binaries. Zero fields fall
// back to the built-in defaults; PARLEY_HOST and PARLEY_PORT environment
// variables override the listen address, matching container conventions.
type Config struct {
	Name       string `yaml:"name"`
	LogLevel   string `yaml:"log_level"`
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
	AdminAddr  string `yaml:"admin_addr"`

	Capacity int `yaml:"capacity"`

	ConnectTimeoutSec   int `yaml:"connect_timeout_sec"`
	HandshakeTimeoutSec int `yaml:"handshake_timeout_sec"`

	HeartbeatIntervalSec int `yaml:"heartbeat_interval_sec"`
	HeartbeatTimeoutSec  int `yaml:"heartbeat_timeout_sec"`

	RateLimit        int `yaml:"rate_limit"`
	RateWindowMillis int `yaml:"rate_window_ms"`
}

// LoadConfig reads cfg from path, then applies environment overrides. An
// empty path yields a Config built from the environment alone.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("parley: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parley: parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if host := os.Getenv("PARLEY_HOST"); host != "" {
		c.ListenHost = host
	}
	if port := os.Getenv("PARLEY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.ListenPort = p
		}
	}
}

// ListenAddr joins the configured host and port, or returns empty when no
// port is set (outbound-only).
func (c Config) ListenAddr() string {
	if c.ListenPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// Options converts the file values to node Options, emitting only the
// fields the file actually set so defaults stay in one place.
func (c Config) Options() []Option {
	var opts []Option
	if addr := c.ListenAddr(); addr != "" {
		opts = append(opts, WithListenAddr(addr))
	}
	if c.AdminAddr != "" {
		opts = append(opts, WithAdminAddr(c.AdminAddr))
	}
	if c.Capacity > 0 {
		opts = append(opts, WithCapacity(c.Capacity))
	}
	if c.ConnectTimeoutSec > 0 {
		opts = append(opts, WithConnectTimeout(time.Duration(c.ConnectTimeoutSec)*time.Second))
	}
	if c.HandshakeTimeoutSec > 0 {
		opts = append(opts, WithHandshakeTimeout(time.Duration(c.HandshakeTimeoutSec)*time.Second))
	}
	if c.HeartbeatIntervalSec > 0 && c.HeartbeatTimeoutSec > 0 {
		opts = append(opts, WithHeartbeat(
			time.Duration(c.HeartbeatIntervalSec)*time.Second,
			time.Duration(c.HeartbeatTimeoutSec)*time.Second,
		))
	}
	if c.RateLimit > 0 && c.RateWindowMillis > 0 {
		opts = append(opts, WithRateLimit(c.RateLimit, time.Duration(c.RateWindowMillis)*time.Millisecond))
	}
	return opts
}
