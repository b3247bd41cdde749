package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SleepGrind.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Motion   MotionConfig   `yaml:"motion"`
	Display  DisplayConfig  `yaml:"display"`
	Actions  []ActionConfig `yaml:"actions"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Lock     LockConfig     `yaml:"lock"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig contains script execution settings.
type EngineConfig struct {
	// Confidence is the minimum correlation score a template must strictly
	// exceed to count as a match. Must be in (0, 1].
	Confidence float64 `yaml:"confidence"`

	// LoopLimit is the number of times a single node may be selected
	// during one run before the run is aborted.
	LoopLimit int `yaml:"loop_limit"`

	// AssetsDir is the directory holding reference images.
	AssetsDir string `yaml:"assets_dir"`

	// AssetExt is the file extension appended to image identifiers.
	AssetExt string `yaml:"asset_ext"`

	// Seed seeds the random source used for motion and click jitter.
	// 0 selects a time-based seed.
	Seed uint64 `yaml:"seed"`

	// DeterministicTies breaks equal-priority ties by node id instead of
	// evaluation completion order.
	DeterministicTies bool `yaml:"deterministic_ties"`

	// MatchWorkers bounds the goroutines used to compute one correlation
	// surface. 0 means runtime.NumCPU().
	MatchWorkers int `yaml:"match_workers"`
}

// MotionPreset parameterises one humanized pointer trajectory.
type MotionPreset struct {
	Gravity        float64 `yaml:"gravity"`
	Wind           float64 `yaml:"wind"`
	MaxStep        float64 `yaml:"max_step"`
	SlowdownRadius float64 `yaml:"slowdown_radius"`
}

// MotionConfig contains pointer motion settings.
type MotionConfig struct {
	// Click is used when moving onto a matched template.
	Click MotionPreset `yaml:"click"`

	// Scroll is used for drag gestures performed by scroll actions.
	Scroll MotionPreset `yaml:"scroll"`

	// HoldMin and HoldMax bound the randomized button hold duration.
	HoldMin time.Duration `yaml:"hold_min"`
	HoldMax time.Duration `yaml:"hold_max"`

	// StepInterval is slept after every emitted trajectory point.
	StepInterval time.Duration `yaml:"step_interval"`
}

// DisplayConfig selects and configures the screen/pointer backend.
type DisplayConfig struct {
	// Backend is "browser" or "replay".
	Backend string              `yaml:"backend"`
	Browser BrowserConfig       `yaml:"browser"`
	Replay  ReplayDisplayConfig `yaml:"replay"`
}

// BrowserConfig configures the Chrome DevTools backend.
type BrowserConfig struct {
	URL      string `yaml:"url"`
	Headless bool   `yaml:"headless"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	ExecPath string `yaml:"exec_path"`

	// NoSandbox disables Chrome's sandbox, which refuses to start as root
	// inside most containers.
	NoSandbox bool `yaml:"no_sandbox"`
}

// ReplayDisplayConfig configures the offline frame replay backend.
type ReplayDisplayConfig struct {
	FramesDir string `yaml:"frames_dir"`
	Pattern   string `yaml:"pattern"`
}

// ActionConfig declares a named action backed by configuration instead of code.
type ActionConfig struct {
	Name string `yaml:"name"`

	// Type is "mqtt" or "pause".
	Type string `yaml:"type"`

	// MQTT action fields.
	Topic    string `yaml:"topic,omitempty"`
	Payload  string `yaml:"payload,omitempty"`
	Retained bool   `yaml:"retained,omitempty"`

	// Pause action field.
	Duration time.Duration `yaml:"duration,omitempty"`
}

// DatabaseConfig contains SQLite database settings for the script catalog.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LockConfig contains the Redis display lock settings.
type LockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
	Wait     time.Duration `yaml:"wait"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Display backends.
const (
	BackendBrowser = "browser"
	BackendReplay  = "replay"
)

// Config action types.
const (
	ActionTypeMQTT  = "mqtt"
	ActionTypePause = "pause"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SLEEPGRIND_SECTION_KEY
// For example: SLEEPGRIND_ASSETS_DIR, SLEEPGRIND_MQTT_HOST
//
// Parameters:
//   - path: YAML file to read
//
// Returns:
//   - *Config: Validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults (plus
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg = defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Motion presets match the hand-tuned values the scripts were recorded with.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Confidence: 0.8,
			LoopLimit:  5,
			AssetsDir:  "./assets",
			AssetExt:   ".jpg",
		},
		Motion: MotionConfig{
			Click: MotionPreset{
				Gravity:        9,
				Wind:           5,
				MaxStep:        25,
				SlowdownRadius: 18,
			},
			Scroll: MotionPreset{
				Gravity:        9,
				Wind:           3,
				MaxStep:        30,
				SlowdownRadius: 25,
			},
			HoldMin:      50 * time.Millisecond,
			HoldMax:      200 * time.Millisecond,
			StepInterval: 5 * time.Millisecond,
		},
		Display: DisplayConfig{
			Backend: BackendBrowser,
			Browser: BrowserConfig{
				URL:      "about:blank",
				Headless: false,
				Width:    1280,
				Height:   800,
			},
			Replay: ReplayDisplayConfig{
				Pattern: "**/*.png",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/sleepgrind.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "sleepgrind",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "sleepgrind",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8089,
		},
		Lock: LockConfig{
			Addr: "localhost:6379",
			Key:  "display",
			TTL:  30 * time.Second,
			Wait: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SLEEPGRIND_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Engine
	if v := os.Getenv("SLEEPGRIND_ASSETS_DIR"); v != "" {
		cfg.Engine.AssetsDir = v
	}
	if v := os.Getenv("SLEEPGRIND_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.Seed = seed
		}
	}

	// Display
	if v := os.Getenv("SLEEPGRIND_BROWSER_URL"); v != "" {
		cfg.Display.Browser.URL = v
	}
	if v := os.Getenv("SLEEPGRIND_BROWSER_EXEC"); v != "" {
		cfg.Display.Browser.ExecPath = v
	}

	// Database
	if v := os.Getenv("SLEEPGRIND_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SLEEPGRIND_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SLEEPGRIND_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SLEEPGRIND_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SLEEPGRIND_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Lock
	if v := os.Getenv("SLEEPGRIND_REDIS_ADDR"); v != "" {
		cfg.Lock.Addr = v
	}
	if v := os.Getenv("SLEEPGRIND_REDIS_PASSWORD"); v != "" {
		cfg.Lock.Password = v
	}

	// Logging
	if v := os.Getenv("SLEEPGRIND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so a broken file is fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	// Engine validation
	if c.Engine.Confidence <= 0 || c.Engine.Confidence > 1 {
		errs = append(errs, "engine.confidence must be in (0, 1]")
	}
	if c.Engine.LoopLimit < 1 {
		errs = append(errs, "engine.loop_limit must be at least 1")
	}
	if c.Engine.AssetsDir == "" {
		errs = append(errs, "engine.assets_dir is required")
	}
	if !strings.HasPrefix(c.Engine.AssetExt, ".") {
		errs = append(errs, "engine.asset_ext must start with '.'")
	}
	if c.Engine.MatchWorkers < 0 {
		errs = append(errs, "engine.match_workers must not be negative")
	}

	// Motion validation
	errs = append(errs, validatePreset("motion.click", c.Motion.Click)...)
	errs = append(errs, validatePreset("motion.scroll", c.Motion.Scroll)...)
	if c.Motion.HoldMin < 0 || c.Motion.HoldMax < c.Motion.HoldMin {
		errs = append(errs, "motion.hold_min must be >= 0 and <= motion.hold_max")
	}
	if c.Motion.StepInterval < 0 {
		errs = append(errs, "motion.step_interval must not be negative")
	}

	// Display validation
	switch c.Display.Backend {
	case BackendBrowser:
		if c.Display.Browser.Width <= 0 || c.Display.Browser.Height <= 0 {
			errs = append(errs, "display.browser width and height must be positive")
		}
	case BackendReplay:
		if c.Display.Replay.FramesDir == "" {
			errs = append(errs, "display.replay.frames_dir is required for the replay backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("display.backend %q must be %q or %q", c.Display.Backend, BackendBrowser, BackendReplay))
	}

	// Action validation
	seen := make(map[string]struct{}, len(c.Actions))
	for i, a := range c.Actions {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("actions[%d].name is required", i))
		}
		if _, dup := seen[a.Name]; dup {
			errs = append(errs, fmt.Sprintf("actions[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = struct{}{}

		switch a.Type {
		case ActionTypeMQTT:
			if a.Topic == "" {
				errs = append(errs, fmt.Sprintf("actions[%d].topic is required for mqtt actions", i))
			}
			if !c.MQTT.Enabled {
				errs = append(errs, fmt.Sprintf("actions[%d]: mqtt actions require mqtt.enabled", i))
			}
		case ActionTypePause:
			if a.Duration <= 0 {
				errs = append(errs, fmt.Sprintf("actions[%d].duration must be positive for pause actions", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("actions[%d].type %q must be %q or %q", i, a.Type, ActionTypeMQTT, ActionTypePause))
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Lock validation
	if c.Lock.Enabled {
		if c.Lock.Addr == "" {
			errs = append(errs, "lock.addr is required when the lock is enabled")
		}
		if c.Lock.TTL <= 0 {
			errs = append(errs, "lock.ttl must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validatePreset(name string, p MotionPreset) []string {
	var errs []string
	if p.Gravity <= 0 {
		errs = append(errs, name+".gravity must be positive")
	}
	if p.Wind < 0 {
		errs = append(errs, name+".wind must not be negative")
	}
	if p.MaxStep <= 0 {
		errs = append(errs, name+".max_step must be positive")
	}
	if p.SlowdownRadius < 0 {
		errs = append(errs, name+".slowdown_radius must not be negative")
	}
	return errs
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
