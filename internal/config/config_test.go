package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadLayered_CLIOverridesEverything(t *testing.T) {
	embedded := []byte("printer:\n  address: \"10.0.0.1\"\nhttp:\n  listen: \":9000\"")
	t.Setenv("SFS_PRINTER_ADDRESS", "10.0.0.2")
	cli := CLIOverrides{PrinterAddress: "10.0.0.3", Listen: ":9100"}

	cfg, err := LoadLayered(cli, embedded, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Printer.Address != "10.0.0.3" {
		t.Errorf("Address = %q, want CLI override", cfg.Printer.Address)
	}
	if cfg.HTTP.Listen != ":9100" {
		t.Errorf("Listen = %q, want CLI override", cfg.HTTP.Listen)
	}
}

func TestLoadLayered_EnvOverridesEmbed(t *testing.T) {
	embedded := []byte("printer:\n  address: \"10.0.0.1\"\nsupervisor:\n  timeout: 3s")
	t.Setenv("SFS_PRINTER_ADDRESS", "10.0.0.2")

	cfg, err := LoadLayered(CLIOverrides{}, embedded, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Printer.Address != "10.0.0.2" {
		t.Errorf("Address = %q, want env override", cfg.Printer.Address)
	}
	if cfg.Supervisor.Timeout.Duration != 3*time.Second {
		t.Errorf("Timeout = %v, want embedded value", cfg.Supervisor.Timeout.Duration)
	}
}

func TestLoadLayered_FileOverridesEmbed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("supervisor:\n  first_layer_timeout: 6s\n  pause_on_runout: false"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadLayered(CLIOverrides{}, []byte("supervisor:\n  first_layer_timeout: 5s"), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Supervisor.FirstLayerTimeout.Duration != 6*time.Second || cfg.Supervisor.PauseOnRunout {
		t.Errorf("file values not applied: %+v", cfg.Supervisor)
	}
}

func TestLoadLayered_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	s := cfg.Settings()
	if !s.Enabled || !s.PauseOnRunout || s.Timeout != 2*time.Second || s.FirstLayerTimeout != 4*time.Second || s.StartPrintTimeout != 10*time.Second {
		t.Errorf("unexpected default settings: %+v", s)
	}
	if cfg.Printer.Port != 3030 || cfg.Printer.ReconnectInterval.Duration != 3*time.Second {
		t.Errorf("unexpected printer defaults: %+v", cfg.Printer)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromBytes_BadDuration(t *testing.T) {
	if _, err := LoadFromBytes([]byte("supervisor:\n  timeout: soon")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"timeout too small", func(c *Config) { c.Supervisor.Timeout = Duration{50 * time.Millisecond} }, "timeout"},
		{"first layer too large", func(c *Config) { c.Supervisor.FirstLayerTimeout = Duration{2 * time.Minute} }, "first_layer_timeout"},
		{"start print too small", func(c *Config) { c.Supervisor.StartPrintTimeout = Duration{500 * time.Millisecond} }, "start_print_timeout"},
		{"poll slower than timeout", func(c *Config) { c.Supervisor.PollInterval = Duration{time.Second}; c.Supervisor.Timeout = Duration{500 * time.Millisecond} }, "poll_interval"},
		{"poll slower than first layer timeout", func(c *Config) {
			c.Supervisor.PollInterval = Duration{500 * time.Millisecond}
			c.Supervisor.FirstLayerTimeout = Duration{400 * time.Millisecond}
		}, "first_layer_timeout"},
		{"serial without device", func(c *Config) { c.Sensors.Source = SensorSourceSerial }, "device"},
		{"gpio without paths", func(c *Config) { c.Sensors.Source = SensorSourceGPIO }, "movement_path"},
		{"unknown source", func(c *Config) { c.Sensors.Source = "i2c" }, "sensor source"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteConfig_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Printer.Address = "192.168.1.20"

	if err := WriteConfig(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Printer.Address != "192.168.1.20" {
		t.Errorf("Address = %q after round trip", loaded.Printer.Address)
	}
	if loaded.Supervisor.Timeout.Duration != 2*time.Second {
		t.Errorf("Timeout = %v after round trip", loaded.Supervisor.Timeout.Duration)
	}
}

func TestStore_UpdateSettingsPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewStore(DefaultConfig(), path)

	next := store.Settings()
	next.Timeout = 1500 * time.Millisecond
	next.PrinterAddress = "192.168.1.30"
	next.Enabled = false
	if err := store.UpdateSettings(next); err != nil {
		t.Fatal(err)
	}

	if got := store.Settings(); got != next {
		t.Errorf("Settings() = %+v, want %+v", got, next)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Settings() != next {
		t.Errorf("persisted settings = %+v, want %+v", loaded.Settings(), next)
	}
}

func TestStore_UpdateSettingsRejectsInvalid(t *testing.T) {
	store := NewStore(DefaultConfig(), "")
	before := store.Settings()

	bad := before
	bad.FirstLayerTimeout = 0
	if err := store.UpdateSettings(bad); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("UpdateSettings() = %v, want ErrInvalidSettings", err)
	}
	if store.Settings() != before {
		t.Error("invalid update must not change settings")
	}
}

func TestStore_UpdateSettingsKeepsTimeoutsAbovePollInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Supervisor.PollInterval = Duration{250 * time.Millisecond}
	store := NewStore(cfg, path)
	before := store.Settings()

	for _, mutate := range []func(*Settings){
		func(s *Settings) { s.Timeout = 100 * time.Millisecond },
		func(s *Settings) { s.FirstLayerTimeout = 250 * time.Millisecond },
	} {
		next := before
		mutate(&next)
		if err := store.UpdateSettings(next); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("UpdateSettings(%+v) = %v, want ErrInvalidSettings", next, err)
		}
	}

	if store.Settings() != before {
		t.Error("rejected update changed settings")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rejected update wrote %s (stat err %v)", path, err)
	}

	ok := before
	ok.Timeout = 300 * time.Millisecond
	if err := store.UpdateSettings(ok); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadLayered(CLIOverrides{}, nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("saved config fails startup validation: %v", err)
	}
}
