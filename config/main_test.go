package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %s", err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
cell_size: 10
fps: 60
poll_interval: 2s
store:
  driver: sqlite
  dsn: /tmp/railflux.sqlite
trains:
  - id: a
    track: T4
    reverse: true
    speed: 1.5
crossings:
  LC1: [65, 225]
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	expected := Default()
	expected.CellSize = 10
	expected.FPS = 60
	expected.PollInterval = 2 * time.Second
	expected.Store = StoreConfig{Driver: "sqlite", DSN: "/tmp/railflux.sqlite"}
	expected.Trains = []TrainConfig{{ID: "a", Track: "T4", Reverse: true, Speed: 1.5}}
	expected.Crossings = map[string][2]float64{"LC1": {65, 225}}
	if !cmp.Equal(cfg, expected) {
		t.Fatalf("config diff: %s", cmp.Diff(expected, cfg))
	}
	if got := cfg.TickInterval(); got != time.Second/60 {
		t.Fatalf("tick interval: %s", got)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"poll interval below 1s": func(c *Config) { c.PollInterval = 100 * time.Millisecond },
		"unknown driver":         func(c *Config) { c.Store.Driver = "etcd" },
		"missing dsn":            func(c *Config) { c.Store.DSN = "" },
		"zero fps":               func(c *Config) { c.FPS = 0 },
		"train without track":    func(c *Config) { c.Trains[0].Track = "" },
		"train not moving":       func(c *Config) { c.Trains[0].Speed = 0 },
		"bad http addr":          func(c *Config) { c.HTTP.Addr = "nope" },
		"duplicate train id":     func(c *Config) { c.Trains = append(c.Trains, c.Trains[0]) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
	cfg := Default()
	cfg.Store = StoreConfig{Driver: "memory"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory store needs no dsn: %s", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RAILFLUX_STORE_DRIVER":  "postgres",
		"RAILFLUX_STORE_DSN":     "postgres://localhost/railway_control_system",
		"RAILFLUX_FPS":           "10",
		"RAILFLUX_POLL_INTERVAL": "5s",
		"RAILFLUX_TERMINAL":      "true",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != "postgres" || cfg.FPS != 10 || cfg.PollInterval != 5*time.Second || !cfg.Terminal {
		t.Fatalf("env not applied: %#v", cfg)
	}
	env["RAILFLUX_FPS"] = "fast"
	if err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err == nil {
		t.Fatalf("expected error for bad RAILFLUX_FPS")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "railflux.yml")
	if err := os.WriteFile(path, []byte("fps: 15\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FPS != 15 && os.Getenv("RAILFLUX_FPS") == "" {
		t.Fatalf("expected fps 15, got %d", cfg.FPS)
	}
	if _, err := Load(filepath.Join(dir, "missing.yml")); err != nil {
		t.Fatalf("missing file should fall back to defaults: %s", err)
	}
	if err := os.WriteFile(path, []byte("fps: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) && os.Getenv("RAILFLUX_FPS") == "" {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
