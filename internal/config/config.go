// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/satcam/internal/core"
)

// CSP addressing limits (CSP v2 header field widths).
const (
	MaxAddress = 0x3FFF
	MaxPort    = 0x3F
	MaxFlags   = 0x3F
)

// GlobalConfig represents the top-level static configuration.
// Maps to the `satcam:` root key in YAML.
type GlobalConfig struct {
	Node        NodeConfig        `mapstructure:"node" yaml:"node"`
	Network     NetworkConfig     `mapstructure:"network" yaml:"network"`
	Status      StatusConfig      `mapstructure:"status" yaml:"status"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher" yaml:"dispatcher"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Camera      CameraConfig      `mapstructure:"camera" yaml:"camera"`
	Control     ControlConfig     `mapstructure:"control" yaml:"control"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// ─── Node Identity ───

// NodeConfig identifies this subsystem on the bus. Hostname, model and
// revision are answered by the CMP ident service.
type NodeConfig struct {
	Address  uint16 `mapstructure:"address" yaml:"address"`
	Hostname string `mapstructure:"hostname" yaml:"hostname"` // Empty = os.Hostname()
	Model    string `mapstructure:"model" yaml:"model"`
	Revision string `mapstructure:"revision" yaml:"revision"`
}

// ─── Network ───

// NetworkConfig selects the CSP interface and sizes the inbound queue.
type NetworkConfig struct {
	Interface         string        `mapstructure:"interface" yaml:"interface"` // can | udp
	CAN               CANConfig     `mapstructure:"can" yaml:"can"`
	UDP               UDPConfig     `mapstructure:"udp" yaml:"udp"`
	RxQueue           int           `mapstructure:"rx_queue" yaml:"rx_queue"`
	MaxPacketSize     int           `mapstructure:"max_packet_size" yaml:"max_packet_size"`
	ReassemblyTimeout time.Duration `mapstructure:"reassembly_timeout" yaml:"reassembly_timeout"`
	RecordFile        string        `mapstructure:"record_file" yaml:"record_file"` // pcap of inbound packets, empty = off
}

// CANConfig configures the CAN link. Device "virtual" selects the in-process bus.
type CANConfig struct {
	Device  string `mapstructure:"device" yaml:"device"`
	Bitrate int    `mapstructure:"bitrate" yaml:"bitrate"` // informational, set with `ip link`
}

// UDPConfig configures the CSP-over-UDP interface.
type UDPConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Remote string `mapstructure:"remote" yaml:"remote"`
}

// ─── Status Reporting ───

// StatusConfig addresses capture progress reports and log events.
type StatusConfig struct {
	Destination     uint16 `mapstructure:"destination" yaml:"destination"`
	SourcePort      uint8  `mapstructure:"source_port" yaml:"source_port"`
	DestinationPort uint8  `mapstructure:"destination_port" yaml:"destination_port"`
	Flags           uint8  `mapstructure:"flags" yaml:"flags"`
	LogAddress      uint16 `mapstructure:"log_address" yaml:"log_address"`
	LogPort         uint8  `mapstructure:"log_port" yaml:"log_port"`
}

// ─── Tasks ───

// DispatcherConfig configures the network dispatch task.
type DispatcherConfig struct {
	Period      time.Duration `mapstructure:"period" yaml:"period"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// CoordinatorConfig configures the capture coordination task.
type CoordinatorConfig struct {
	Period        time.Duration `mapstructure:"period" yaml:"period"`
	GateTimeout   time.Duration `mapstructure:"gate_timeout" yaml:"gate_timeout"`
	TickPeriod    time.Duration `mapstructure:"tick_period" yaml:"tick_period"`
	EncodeRetries int           `mapstructure:"encode_retries" yaml:"encode_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// CameraConfig describes the video buffer and image pipeline.
type CameraConfig struct {
	Width       int           `mapstructure:"width" yaml:"width"`
	Height      int           `mapstructure:"height" yaml:"height"`
	DMAInterval time.Duration `mapstructure:"dma_interval" yaml:"dma_interval"`
	SetupDelay  time.Duration `mapstructure:"setup_delay" yaml:"setup_delay"`
	Quality     string        `mapstructure:"quality" yaml:"quality"`       // low | mid | high
	OutputDir   string        `mapstructure:"output_dir" yaml:"output_dir"` // empty = keep in memory only
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket" yaml:"socket"`
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level        string           `mapstructure:"level" yaml:"level"` // trace / debug / info / warn / error
	Pattern      string           `mapstructure:"pattern" yaml:"pattern"`
	Time         string           `mapstructure:"time" yaml:"time"`
	ReportCaller bool             `mapstructure:"report_caller" yaml:"report_caller"`
	File         FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures the rotating log file.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `satcam: ...`.
type configRoot struct {
	Satcam GlobalConfig `mapstructure:"satcam"`
}

// Load loads configuration from path. An empty path yields the defaults.
// Env vars use the SATCAM_ prefix (e.g. SATCAM_LOG_LEVEL, SATCAM_NODE_ADDRESS).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `satcam.` key prefix maps to `SATCAM_` through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Satcam

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "satcam." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Node defaults
	v.SetDefault("satcam.node.address", 0x1C1F)
	v.SetDefault("satcam.node.model", "satcam")
	v.SetDefault("satcam.node.revision", "0.1.0")

	// Network defaults
	v.SetDefault("satcam.network.interface", "can")
	v.SetDefault("satcam.network.can.device", "virtual")
	v.SetDefault("satcam.network.can.bitrate", 500000)
	v.SetDefault("satcam.network.udp.listen", ":9600")
	v.SetDefault("satcam.network.udp.remote", "127.0.0.1:9601")
	v.SetDefault("satcam.network.rx_queue", 10)
	v.SetDefault("satcam.network.max_packet_size", 256)
	v.SetDefault("satcam.network.reassembly_timeout", "1s")
	v.SetDefault("satcam.network.record_file", "")

	// Status defaults
	v.SetDefault("satcam.status.destination", 0x1C3F)
	v.SetDefault("satcam.status.source_port", 0x0F)
	v.SetDefault("satcam.status.destination_port", 0x0F)
	v.SetDefault("satcam.status.flags", 0x1D)
	v.SetDefault("satcam.status.log_address", 0x1C3F)
	v.SetDefault("satcam.status.log_port", 0x0F)

	// Task defaults
	v.SetDefault("satcam.dispatcher.period", "1s")
	v.SetDefault("satcam.dispatcher.poll_timeout", "1ms")
	v.SetDefault("satcam.coordinator.period", "950ms")
	v.SetDefault("satcam.coordinator.gate_timeout", "1ms")
	v.SetDefault("satcam.coordinator.tick_period", "1ms")
	v.SetDefault("satcam.coordinator.encode_retries", 2)
	v.SetDefault("satcam.coordinator.retry_delay", "10ms")

	// Camera defaults
	v.SetDefault("satcam.camera.width", 1920)
	v.SetDefault("satcam.camera.height", 1080)
	v.SetDefault("satcam.camera.dma_interval", "33ms")
	v.SetDefault("satcam.camera.setup_delay", "3500ms")
	v.SetDefault("satcam.camera.quality", "mid")
	v.SetDefault("satcam.camera.output_dir", "")

	// Control defaults
	v.SetDefault("satcam.control.socket", "/var/run/satcam.sock")
	v.SetDefault("satcam.control.pid_file", "/var/run/satcam.pid")

	// Metrics defaults
	v.SetDefault("satcam.metrics.enabled", true)
	v.SetDefault("satcam.metrics.listen", ":9091")
	v.SetDefault("satcam.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("satcam.log.level", "info")
	v.SetDefault("satcam.log.pattern", "%time [%level] %msg%field%n")
	v.SetDefault("satcam.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("satcam.log.file.enabled", false)
	v.SetDefault("satcam.log.file.path", "/var/log/satcam/satcam.log")
	v.SetDefault("satcam.log.file.max_size_mb", 100)
	v.SetDefault("satcam.log.file.max_age_days", 30)
	v.SetDefault("satcam.log.file.max_backups", 5)
	v.SetDefault("satcam.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return invalid("log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	// ── Node ──
	if cfg.Node.Address > MaxAddress {
		return invalid("node.address 0x%X exceeds 0x%X", cfg.Node.Address, MaxAddress)
	}
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	// ── Network ──
	switch cfg.Network.Interface {
	case "can":
		if cfg.Network.CAN.Device == "" {
			return invalid("network.can.device is required for the can interface")
		}
	case "udp":
		if cfg.Network.UDP.Listen == "" || cfg.Network.UDP.Remote == "" {
			return invalid("network.udp.listen and network.udp.remote are required for the udp interface")
		}
	default:
		return invalid("network.interface: %q (must be can/udp)", cfg.Network.Interface)
	}
	if cfg.Network.RxQueue <= 0 {
		return invalid("network.rx_queue must be positive")
	}
	if cfg.Network.MaxPacketSize < 8 || cfg.Network.MaxPacketSize > 4096 {
		return invalid("network.max_packet_size %d out of range [8, 4096]", cfg.Network.MaxPacketSize)
	}
	if cfg.Network.ReassemblyTimeout <= 0 {
		return invalid("network.reassembly_timeout must be positive")
	}

	// ── Status ──
	if cfg.Status.Destination > MaxAddress || cfg.Status.LogAddress > MaxAddress {
		return invalid("status addresses must not exceed 0x%X", MaxAddress)
	}
	if cfg.Status.SourcePort > MaxPort || cfg.Status.DestinationPort > MaxPort || cfg.Status.LogPort > MaxPort {
		return invalid("status ports must not exceed %d", MaxPort)
	}
	if cfg.Status.Flags > MaxFlags {
		return invalid("status.flags 0x%X exceeds 0x%X", cfg.Status.Flags, MaxFlags)
	}

	// ── Tasks ──
	if cfg.Dispatcher.Period <= 0 || cfg.Coordinator.Period <= 0 {
		return invalid("task periods must be positive")
	}
	if cfg.Dispatcher.PollTimeout < 0 {
		return invalid("dispatcher.poll_timeout must not be negative")
	}
	if cfg.Coordinator.GateTimeout <= 0 {
		return invalid("coordinator.gate_timeout must be positive")
	}
	if cfg.Coordinator.TickPeriod <= 0 {
		return invalid("coordinator.tick_period must be positive")
	}
	if cfg.Coordinator.EncodeRetries < 0 {
		return invalid("coordinator.encode_retries must not be negative")
	}

	// ── Camera ──
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return invalid("camera dimensions must be positive")
	}
	if cfg.Camera.Width%2 != 0 || cfg.Camera.Height%2 != 0 {
		return invalid("camera dimensions must be even, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	switch strings.ToLower(cfg.Camera.Quality) {
	case "low", "mid", "high":
		cfg.Camera.Quality = strings.ToLower(cfg.Camera.Quality)
	default:
		return invalid("camera.quality: %q (must be low/mid/high)", cfg.Camera.Quality)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
