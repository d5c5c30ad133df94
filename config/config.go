package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
)

// Config represents the complete vmeflow runtime configuration.
// It covers the process surface only: NATS connectivity, the readout feed,
// the stream worker, the monitor service, and run output. The analysis graph
// itself is never configured here; graphs are built through typed engine
// factories.
type Config struct {
	Version string        `json:"version"` // Semantic version of the config schema (e.g., "1.0.0")
	NATS    NATSConfig    `json:"nats"`
	Feed    FeedConfig    `json:"feed"`
	Worker  WorkerConfig  `json:"worker"`
	Service ServiceConfig `json:"service"`
	Run     RunConfig     `json:"run"`
	Logging LoggingConfig `json:"logging"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
}

// FeedConfig defines the readout event feed settings
type FeedConfig struct {
	Subject        string `json:"subject"`               // NATS subject carrying readout frames
	QueueGroup     string `json:"queue_group,omitempty"` // optional queue group for load-shared feeds
	BufferCapacity int    `json:"buffer_capacity"`       // bounded event buffer between feed and worker
}

// WorkerConfig defines the stream worker settings
type WorkerConfig struct {
	TimetickInterval Duration `json:"timetick_interval"` // period of Timetick delivery to the engine
}

// ServiceConfig defines the monitor service settings
type ServiceConfig struct {
	ListenAddr        string   `json:"listen_addr"`        // HTTP listen address (host:port)
	BroadcastInterval Duration `json:"broadcast_interval"` // period of websocket snapshot broadcasts
}

// RunConfig defines per-run output settings
type RunConfig struct {
	OutputDir string `json:"output_dir"` // directory export sinks write into
}

// LoggingConfig defines process logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Duration wraps time.Duration so config files can say "250ms" instead of
// counting nanoseconds. Plain JSON numbers are still accepted and read as
// nanoseconds.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes the human-readable string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string, a nanosecond number, or null
// (which leaves the value unchanged).
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(val)
		return nil
	default:
		return fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}

// DefaultConfig returns the built-in defaults. File layers and environment
// overrides are merged on top of this.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Feed: FeedConfig{
			Subject:        "vmeflow.readout",
			BufferCapacity: 4096,
		},
		Worker: WorkerConfig{
			TimetickInterval: Duration(time.Second),
		},
		Service: ServiceConfig{
			ListenAddr:        ":8080",
			BroadcastInterval: Duration(time.Second),
		},
		Run: RunConfig{
			OutputDir: "runs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required")
	}

	if c.Feed.Subject == "" {
		return errors.New("feed.subject is required")
	}
	if !isValidNATSSubject(c.Feed.Subject) {
		return fmt.Errorf("feed.subject %q is not a valid NATS subject", c.Feed.Subject)
	}
	if c.Feed.QueueGroup != "" && !isValidNATSSubjectPart(c.Feed.QueueGroup) {
		return fmt.Errorf("feed.queue_group %q is not a valid NATS token", c.Feed.QueueGroup)
	}
	if c.Feed.BufferCapacity <= 0 {
		return fmt.Errorf("feed.buffer_capacity must be positive, got %d", c.Feed.BufferCapacity)
	}

	if c.Worker.TimetickInterval <= 0 {
		return fmt.Errorf("worker.timetick_interval must be positive, got %v", c.Worker.TimetickInterval)
	}

	if c.Service.ListenAddr == "" {
		return errors.New("service.listen_addr is required")
	}
	if c.Service.BroadcastInterval <= 0 {
		return fmt.Errorf("service.broadcast_interval must be positive, got %v", c.Service.BroadcastInterval)
	}

	if c.Run.OutputDir == "" {
		return errors.New("run.output_dir is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q invalid (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q invalid (must be json or text)", c.Logging.Format)
	}

	return nil
}

// isValidNATSSubject checks a dotted subject: every token must be non-empty
// and composed of subject-safe characters. Wildcards are rejected; the feed
// subscribes to a concrete subject.
func isValidNATSSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if !isValidNATSSubjectPart(token) {
			return false
		}
	}
	return true
}

// isValidNATSSubjectPart checks if a string is valid for use as a NATS
// subject token. Valid characters are alphanumeric, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "VMEFLOW",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all configuration layers over the defaults, applies
// environment overrides, and optionally validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range l.layers {
		if err := mergeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// mergeFile decodes one JSON layer over cfg. Unmarshal only touches keys
// present in the file, so fields the layer is silent on keep their current
// values, section by section.
func mergeFile(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	if err := validateJSONDepth(data); err != nil {
		return fmt.Errorf("invalid JSON structure: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := l.getenv("_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := l.getenv("_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := l.getenv("_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := l.getenv("_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := l.getenv("_FEED_SUBJECT"); val != "" {
		cfg.Feed.Subject = val
	}
	if val := l.getenv("_LISTEN_ADDR"); val != "" {
		cfg.Service.ListenAddr = val
	}
	if val := l.getenv("_RUN_OUTPUT_DIR"); val != "" {
		cfg.Run.OutputDir = val
	}
	if val := l.getenv("_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// getenv reads a prefixed environment variable, discarding values that fail
// basic validation
func (l *Loader) getenv(suffix string) string {
	key := l.envPrefix + suffix
	val := os.Getenv(key)
	if err := validateEnvVar(key, val); err != nil {
		return ""
	}
	return val
}
