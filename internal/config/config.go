package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all flowguard configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Cache     CacheConfig     `yaml:"cache"`
	Output    OutputConfig    `yaml:"output"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

// EngineConfig locates the model and the reference dataset. Relative file
// names are resolved against DataDir.
type EngineConfig struct {
	DataDir       string `yaml:"data_dir"`
	Dataset       string `yaml:"dataset"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	ORTLibrary    string `yaml:"ort_library"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CaptureConfig holds live capture settings.
type CaptureConfig struct {
	Backend     string        `yaml:"backend"` // "pcap", "afpacket" or "none"
	Interface   string        `yaml:"interface"`
	MaxPackets  int           `yaml:"max_packets"`
	Timeout     time.Duration `yaml:"timeout"`
	Promiscuous bool          `yaml:"promiscuous"`
	LocalIP     string        `yaml:"local_ip"`
	Interval    time.Duration `yaml:"interval"` // monitor mode only
}

// CacheConfig holds prediction cache settings. An empty RedisAddr disables
// the cache.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// OutputConfig holds prediction event sink settings.
type OutputConfig struct {
	Format         string   `yaml:"format"` // comma-separated: "none", "stdout", "file", "webhook"
	Path           string   `yaml:"path"`
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookClasses []string `yaml:"webhook_classes"` // empty posts every class
	Verbosity      string   `yaml:"verbosity"`       // "minimal", "standard", "full"
	Pretty         bool     `yaml:"pretty"`
	MaxSizeMB      int      `yaml:"max_size_mb"`
}

// TelemetryConfig holds tracing settings. An empty OTLPEndpoint disables
// trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			DataDir:       "..",
			Dataset:       "cyberfeddefender_dataset.csv",
			Model:         "model.onnx",
			FallbackModel: "cnn_multiclass_model.onnx",
		},
		Server: ServerConfig{
			Addr:            ":5001",
			ShutdownTimeout: 10 * time.Second,
		},
		Capture: CaptureConfig{
			Backend:     "pcap",
			MaxPackets:  50,
			Timeout:     3 * time.Second,
			Promiscuous: true,
			Interval:    10 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		Output: OutputConfig{
			Format:    "none",
			Verbosity: "standard",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "flowguard",
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $FLOWGUARD_CONFIG when path is empty), then FLOWGUARD_* environment
// variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FLOWGUARD_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	e := &cfg.Engine
	e.DataDir = getenv("FLOWGUARD_DATA_DIR", e.DataDir)
	e.Dataset = getenv("FLOWGUARD_DATASET", e.Dataset)
	e.Model = getenv("FLOWGUARD_MODEL", e.Model)
	e.FallbackModel = getenv("FLOWGUARD_FALLBACK_MODEL", e.FallbackModel)
	e.ORTLibrary = getenv("FLOWGUARD_ORT_LIBRARY", e.ORTLibrary)

	cfg.Server.Addr = getenv("FLOWGUARD_ADDR", cfg.Server.Addr)

	c := &cfg.Capture
	c.Backend = getenv("FLOWGUARD_CAPTURE_BACKEND", c.Backend)
	c.Interface = getenv("FLOWGUARD_CAPTURE_INTERFACE", c.Interface)
	c.MaxPackets = getenvInt("FLOWGUARD_CAPTURE_MAX_PACKETS", c.MaxPackets)
	c.Timeout = getenvDuration("FLOWGUARD_CAPTURE_TIMEOUT", c.Timeout)
	c.Promiscuous = getenvBool("FLOWGUARD_CAPTURE_PROMISCUOUS", c.Promiscuous)
	c.LocalIP = getenv("FLOWGUARD_LOCAL_IP", c.LocalIP)
	c.Interval = getenvDuration("FLOWGUARD_MONITOR_INTERVAL", c.Interval)

	cfg.Cache.RedisAddr = getenv("FLOWGUARD_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getenv("FLOWGUARD_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getenvInt("FLOWGUARD_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTL = getenvDuration("FLOWGUARD_CACHE_TTL", cfg.Cache.TTL)

	o := &cfg.Output
	o.Format = getenv("FLOWGUARD_OUTPUT", o.Format)
	o.Path = getenv("FLOWGUARD_OUTPUT_PATH", o.Path)
	o.WebhookURL = getenv("FLOWGUARD_WEBHOOK_URL", o.WebhookURL)
	if v := os.Getenv("FLOWGUARD_WEBHOOK_CLASSES"); v != "" {
		o.WebhookClasses = splitList(v)
	}
	o.Verbosity = getenv("FLOWGUARD_VERBOSITY", o.Verbosity)
	o.Pretty = getenvBool("FLOWGUARD_OUTPUT_PRETTY", o.Pretty)
	o.MaxSizeMB = getenvInt("FLOWGUARD_OUTPUT_MAX_SIZE_MB", o.MaxSizeMB)

	cfg.Telemetry.OTLPEndpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = getenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.LogLevel = getenv("FLOWGUARD_LOG_LEVEL", cfg.LogLevel)
}

// Validate checks option values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	formats := c.Output.Formats()
	for _, f := range formats {
		switch f {
		case "none", "stdout", "file", "webhook":
		default:
			errs = append(errs, fmt.Errorf("config: unknown output format %q", f))
		}
	}
	if slices.Contains(formats, "file") && c.Output.Path == "" {
		errs = append(errs, errors.New("config: output format file requires FLOWGUARD_OUTPUT_PATH"))
	}
	if slices.Contains(formats, "webhook") && c.Output.WebhookURL == "" {
		errs = append(errs, errors.New("config: output format webhook requires FLOWGUARD_WEBHOOK_URL"))
	}
	switch c.Output.Verbosity {
	case "minimal", "standard", "full":
	default:
		errs = append(errs, fmt.Errorf("config: unknown verbosity %q", c.Output.Verbosity))
	}
	if c.Capture.MaxPackets <= 0 {
		errs = append(errs, fmt.Errorf("config: capture max_packets must be positive, got %d", c.Capture.MaxPackets))
	}
	if c.Capture.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("config: capture timeout must be positive, got %v", c.Capture.Timeout))
	}
	return errors.Join(errs...)
}

// Formats splits Format into its sink names. An empty Format yields "none".
func (o OutputConfig) Formats() []string {
	out := splitList(o.Format)
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}

// DatasetPath is the reference dataset file.
func (e EngineConfig) DatasetPath() string { return e.resolve(e.Dataset) }

// ModelPath is the primary model file.
func (e EngineConfig) ModelPath() string { return e.resolve(e.Model) }

// FallbackModelPath is the model tried when ModelPath cannot be opened, or
// "" if none is configured.
func (e EngineConfig) FallbackModelPath() string {
	if e.FallbackModel == "" {
		return ""
	}
	return e.resolve(e.FallbackModel)
}

func (e EngineConfig) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.DataDir, name)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
