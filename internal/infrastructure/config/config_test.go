package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
engine:
  confidence: 0.9
  loop_limit: 3
  assets_dir: "/tmp/assets"
  asset_ext: ".png"
  seed: 42
motion:
  click:
    gravity: 7
    wind: 4
    max_step: 20
    slowdown_radius: 10
  hold_min: 10ms
  hold_max: 20ms
display:
  backend: replay
  replay:
    frames_dir: "/tmp/frames"
database:
  path: "/tmp/test.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.Confidence != 0.9 {
		t.Errorf("Engine.Confidence = %v, want 0.9", cfg.Engine.Confidence)
	}
	if cfg.Engine.LoopLimit != 3 {
		t.Errorf("Engine.LoopLimit = %d, want 3", cfg.Engine.LoopLimit)
	}
	if cfg.Engine.Seed != 42 {
		t.Errorf("Engine.Seed = %d, want 42", cfg.Engine.Seed)
	}
	if cfg.Motion.Click.Gravity != 7 {
		t.Errorf("Motion.Click.Gravity = %v, want 7", cfg.Motion.Click.Gravity)
	}
	if cfg.Motion.HoldMax != 20*time.Millisecond {
		t.Errorf("Motion.HoldMax = %v, want 20ms", cfg.Motion.HoldMax)
	}
	// Untouched preset keeps its default
	if cfg.Motion.Scroll.MaxStep != 30 {
		t.Errorf("Motion.Scroll.MaxStep = %v, want 30", cfg.Motion.Scroll.MaxStep)
	}
	if cfg.Display.Backend != BackendReplay {
		t.Errorf("Display.Backend = %q, want %q", cfg.Display.Backend, BackendReplay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Engine.Confidence != 0.8 {
		t.Errorf("Engine.Confidence = %v, want default 0.8", cfg.Engine.Confidence)
	}
	if cfg.Engine.LoopLimit != 5 {
		t.Errorf("Engine.LoopLimit = %d, want default 5", cfg.Engine.LoopLimit)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero confidence",
			mutate:  func(c *Config) { c.Engine.Confidence = 0 },
			wantErr: "engine.confidence",
		},
		{
			name:    "confidence above one",
			mutate:  func(c *Config) { c.Engine.Confidence = 1.5 },
			wantErr: "engine.confidence",
		},
		{
			name:   "confidence of exactly one",
			mutate: func(c *Config) { c.Engine.Confidence = 1 },
		},
		{
			name:    "loop limit zero",
			mutate:  func(c *Config) { c.Engine.LoopLimit = 0 },
			wantErr: "engine.loop_limit",
		},
		{
			name:    "extension without dot",
			mutate:  func(c *Config) { c.Engine.AssetExt = "jpg" },
			wantErr: "engine.asset_ext",
		},
		{
			name:    "non-positive gravity",
			mutate:  func(c *Config) { c.Motion.Click.Gravity = 0 },
			wantErr: "motion.click.gravity",
		},
		{
			name:    "hold range inverted",
			mutate:  func(c *Config) { c.Motion.HoldMin = time.Second },
			wantErr: "motion.hold_min",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Display.Backend = "x11" },
			wantErr: "display.backend",
		},
		{
			name:    "replay without frames",
			mutate:  func(c *Config) { c.Display.Backend = BackendReplay },
			wantErr: "frames_dir",
		},
		{
			name: "mqtt action without mqtt",
			mutate: func(c *Config) {
				c.Actions = []ActionConfig{{Name: "notify", Type: ActionTypeMQTT, Topic: "t"}}
			},
			wantErr: "mqtt.enabled",
		},
		{
			name: "duplicate action names",
			mutate: func(c *Config) {
				c.Actions = []ActionConfig{
					{Name: "nap", Type: ActionTypePause, Duration: time.Second},
					{Name: "nap", Type: ActionTypePause, Duration: time.Second},
				}
			},
			wantErr: "duplicate name",
		},
		{
			name:    "qos out of range",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "lock without ttl",
			mutate: func(c *Config) {
				c.Lock.Enabled = true
				c.Lock.TTL = 0
			},
			wantErr: "lock.ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SLEEPGRIND_ASSETS_DIR", "/env/assets")
	t.Setenv("SLEEPGRIND_MQTT_PASSWORD", "env-secret")
	t.Setenv("SLEEPGRIND_SEED", "7")

	cfg, err := Load(writeConfig(t, "engine:\n  assets_dir: /file/assets\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.AssetsDir != "/env/assets" {
		t.Errorf("Engine.AssetsDir = %q, want %q", cfg.Engine.AssetsDir, "/env/assets")
	}
	if cfg.MQTT.Auth.Password != "env-secret" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "env-secret")
	}
	if cfg.Engine.Seed != 7 {
		t.Errorf("Engine.Seed = %d, want 7", cfg.Engine.Seed)
	}
}
