// Package config provides configuration handling for the pathsock daemon.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/irctrakz/pathsock/pkg/core"
	"github.com/irctrakz/pathsock/pkg/engine"
	"github.com/irctrakz/pathsock/pkg/logging"
)

// Peer is one candidate destination path with optional static quality
// hints. The hints feed the engine's metadata, which the selection profiles
// rank on.
type Peer struct {
	// IA is the peer's AS identifier.
	IA string `json:"ia" yaml:"ia"`

	// Host is the peer's host address.
	Host string `json:"host" yaml:"host"`

	// Port is the peer's engine port.
	Port uint16 `json:"port" yaml:"port"`

	// LatencyMS is the static latency hint in milliseconds.
	LatencyMS int `json:"latencyMS" yaml:"latencyMS"`

	// BandwidthKbps is the static bandwidth hint.
	BandwidthKbps uint64 `json:"bandwidthKbps" yaml:"bandwidthKbps"`

	// LossRate is the static loss-rate hint in [0,1].
	LossRate float64 `json:"lossRate" yaml:"lossRate"`
}

// Address returns the peer as a path address.
func (p Peer) Address() core.Address {
	return core.Address{IA: p.IA, Host: p.Host, Port: p.Port}
}

// Metadata returns the peer's static quality hints.
func (p Peer) Metadata() core.PathMetadata {
	return core.PathMetadata{
		Latency:       time.Duration(p.LatencyMS) * time.Millisecond,
		BandwidthKbps: p.BandwidthKbps,
		LossRate:      p.LossRate,
	}
}

// SocketConfig tunes the socket table.
type SocketConfig struct {
	// SendTimeoutMS bounds how long a send waits for path viability.
	SendTimeoutMS int `json:"sendTimeoutMS" yaml:"sendTimeoutMS"`

	// PollIntervalMS is the viability re-check interval while waiting.
	PollIntervalMS int `json:"pollIntervalMS" yaml:"pollIntervalMS"`

	// SourcePort is the local source port recorded on created sockets.
	SourcePort uint16 `json:"sourcePort" yaml:"sourcePort"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// Config represents the complete daemon configuration.
type Config struct {
	// Engine contains the UDP underlay engine configuration.
	Engine engine.Config `json:"engine" yaml:"engine"`

	// Socket contains the socket table configuration.
	Socket SocketConfig `json:"socket" yaml:"socket"`

	// Peers lists the candidate destination paths, in selection order.
	Peers []Peer `json:"peers" yaml:"peers"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: engine.Config{
			ListenAddress:    "0.0.0.0:30100",
			LocalIA:          "1-ff00:0:110",
			FailureThreshold: 3,
			BacklogSize:      256,
		},
		Socket: SocketConfig{
			SendTimeoutMS:  3000,
			PollIntervalMS: 10,
			SourcePort:     30100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Determine file format based on extension
	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Engine config
	if val := os.Getenv("PATHSOCK_LISTEN_ADDRESS"); val != "" {
		config.Engine.ListenAddress = val
	}
	if val := os.Getenv("PATHSOCK_LOCAL_IA"); val != "" {
		config.Engine.LocalIA = val
	}
	if val := os.Getenv("PATHSOCK_TTL"); val != "" {
		if ttl, err := strconv.Atoi(val); err == nil {
			config.Engine.TTL = ttl
		}
	}
	if val := os.Getenv("PATHSOCK_FAILURE_THRESHOLD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Engine.FailureThreshold = n
		}
	}

	// Socket config
	if val := os.Getenv("PATHSOCK_SEND_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			config.Socket.SendTimeoutMS = ms
		}
	}
	if val := os.Getenv("PATHSOCK_SOURCE_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil && port >= 0 && port <= 65535 {
			config.Socket.SourcePort = uint16(port)
		}
	}

	// Logging config
	if val := os.Getenv("PATHSOCK_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("PATHSOCK_LOG_FILE"); val != "" {
		config.Logging.File = val
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine.ListenAddress) == "" {
		return fmt.Errorf("engine listen address cannot be empty")
	}
	if strings.TrimSpace(c.Engine.LocalIA) == "" {
		return fmt.Errorf("engine local IA cannot be empty")
	}
	if c.Socket.SendTimeoutMS <= 0 {
		return fmt.Errorf("invalid send timeout: %d ms", c.Socket.SendTimeoutMS)
	}
	if c.Socket.PollIntervalMS <= 0 {
		return fmt.Errorf("invalid poll interval: %d ms", c.Socket.PollIntervalMS)
	}

	for i, p := range c.Peers {
		if err := p.Address().Validate(); err != nil {
			return fmt.Errorf("peer %d: %w", i, err)
		}
		if p.Port == 0 {
			return fmt.Errorf("peer %d: port cannot be zero", i)
		}
		if p.LossRate < 0 || p.LossRate > 1 {
			return fmt.Errorf("peer %d: loss rate %f outside [0,1]", i, p.LossRate)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// PeerAddresses returns the configured peers as an ordered address list.
func (c *Config) PeerAddresses() []core.Address {
	addrs := make([]core.Address, len(c.Peers))
	for i, p := range c.Peers {
		addrs[i] = p.Address()
	}
	return addrs
}

// SendTimeout returns the socket send timeout as a duration.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Socket.SendTimeoutMS) * time.Millisecond
}

// PollInterval returns the viability poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Socket.PollIntervalMS) * time.Millisecond
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "info":
		level = logging.InfoLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	default:
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	if c.Logging.File != "" {
		dir := "."
		filename := c.Logging.File
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			dir = c.Logging.File[:lastSlash]
			filename = c.Logging.File[lastSlash+1:]
		}

		err := logging.EnableFileLogging(dir, filename, c.Logging.MaxSize, c.Logging.MaxBackups, c.Logging.MaxAge)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if lastSlash := strings.LastIndex(path, "/"); lastSlash != -1 {
		if err := os.MkdirAll(path[:lastSlash], 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
