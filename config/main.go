// Package config loads the railflux configuration from a YAML file,
// an optional .env file and RAILFLUX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	// CellSize is the size of one grid cell in pixels.
	CellSize float64 `yaml:"cell_size" validate:"gt=0"`
	FPS      int     `yaml:"fps" validate:"gt=0,lte=240"`
	// PollInterval is how often the store is read.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=1s"`
	Store        StoreConfig   `yaml:"store"`
	HTTP         HTTPConfig    `yaml:"http"`
	Terminal     bool          `yaml:"terminal"`
	// Labels is an optional label file.
	Labels    string                `yaml:"labels"`
	Trains    []TrainConfig         `yaml:"trains" validate:"unique=ID,dive"`
	Crossings map[string][2]float64 `yaml:"crossings"`
	// Seed writes the preset network into the store before starting.
	Seed bool `yaml:"seed"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=bunt buntdb sqlite postgres memory"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver memory"`
}

type HTTPConfig struct {
	// Addr is empty to disable the HTTP server.
	Addr        string   `yaml:"addr" validate:"omitempty,hostname_port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type TrainConfig struct {
	ID      string  `yaml:"id" validate:"required"`
	Track   string  `yaml:"track" validate:"required"`
	Reverse bool    `yaml:"reverse"`
	Speed   float64 `yaml:"speed" validate:"gt=0"`
	Wagons  int     `yaml:"wagons" validate:"gte=0"`
	Spacing int     `yaml:"spacing" validate:"gte=0"`
}

// TickInterval returns the time between two ticks.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// Default returns the configuration used for anything a file leaves out.
func Default() Config {
	return Config{
		CellSize:     4,
		FPS:          30,
		PollInterval: time.Second,
		Store: StoreConfig{
			Driver: "bunt",
			DSN:    "railflux.db",
		},
		HTTP: HTTPConfig{
			Addr:        "127.0.0.1:8001",
			CORSOrigins: []string{"*"},
		},
		Trains: []TrainConfig{
			{ID: "up", Track: "T1", Speed: 2, Wagons: 10, Spacing: 3},
			{ID: "down", Track: "T2", Reverse: true, Speed: 2, Wagons: 10, Spacing: 3},
		},
	}
}

// Parse decodes YAML on top of Default. The result is not validated.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse: %w", err)
	}
	return cfg, nil
}

// Load reads path (if it exists), applies the environment and validates.
// A missing file is not an error; the defaults are used.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg, err = Parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("RAILFLUX_STORE_DRIVER"); ok {
		c.Store.Driver = v
	}
	if v, ok := lookup("RAILFLUX_STORE_DSN"); ok {
		c.Store.DSN = v
	}
	if v, ok := lookup("RAILFLUX_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("RAILFLUX_LABELS"); ok {
		c.Labels = v
	}
	if v, ok := lookup("RAILFLUX_FPS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RAILFLUX_FPS: %w", err)
		}
		c.FPS = n
	}
	if v, ok := lookup("RAILFLUX_POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RAILFLUX_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v, ok := lookup("RAILFLUX_TERMINAL"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RAILFLUX_TERMINAL: %w", err)
		}
		c.Terminal = b
	}
	return nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
