package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "mcache.yaml"

type Config struct {
	Namespace string      `yaml:"namespace"`
	Store     StoreConfig `yaml:"store"`
	Mirror    MirrorConf  `yaml:"mirror"`
	Reconcile string      `yaml:"reconcile"` // count | ids | always
	Lock      string      `yaml:"lock"`      // none | local | redis
	Log       LogConfig   `yaml:"log"`
	Tracing   bool        `yaml:"tracing"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory | mongo | redis

	// mongo
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"` // "" => namespace

	// redis (also used by lock: redis)
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Codec    string `yaml:"codec"` // json | msgpack | cbor
}

type MirrorConf struct {
	Kind       string        `yaml:"kind"` // map | lru | bigcache | ristretto | none
	Size       int           `yaml:"size"`
	LifeWindow time.Duration `yaml:"life_window"` // bigcache
}

type LogConfig struct {
	Kind  string `yaml:"kind"`  // zap | logrus | slog | none
	Level string `yaml:"level"` // debug | info | warn | error
}

func defaultConfig() Config {
	return Config{
		Namespace: "documents",
		Store: StoreConfig{
			Driver:   "memory",
			URI:      "mongodb://localhost:27017",
			Database: "mcache",
			Addr:     "localhost:6379",
			Prefix:   "mcache",
			Codec:    "json",
		},
		Mirror:    MirrorConf{Kind: "map", Size: 10000, LifeWindow: 24 * time.Hour},
		Reconcile: "count",
		Lock:      "none",
		Log:       LogConfig{Kind: "none", Level: "info"},
	}
}

// loadConfig reads path over the defaults. A missing default file is not an error;
// a missing explicit file is.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, cfg.validate()
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Namespace == "" {
		return errors.New("config: namespace is required")
	}
	if c.Store.Collection == "" {
		c.Store.Collection = c.Namespace
	}
	checks := []struct {
		field, val string
		allowed    []string
	}{
		{"store.driver", c.Store.Driver, []string{"memory", "mongo", "redis"}},
		{"store.codec", c.Store.Codec, []string{"json", "msgpack", "cbor"}},
		{"mirror.kind", c.Mirror.Kind, []string{"map", "lru", "bigcache", "ristretto", "none"}},
		{"reconcile", c.Reconcile, []string{"count", "ids", "always"}},
		{"lock", c.Lock, []string{"none", "local", "redis"}},
		{"log.kind", c.Log.Kind, []string{"zap", "logrus", "slog", "none"}},
		{"log.level", c.Log.Level, []string{"debug", "info", "warn", "error"}},
	}
	for _, ch := range checks {
		if !oneOf(ch.val, ch.allowed) {
			return fmt.Errorf("config: %s must be one of %s, got %q", ch.field, strings.Join(ch.allowed, "|"), ch.val)
		}
	}
	if (c.Mirror.Kind == "lru" || c.Mirror.Kind == "ristretto") && c.Mirror.Size <= 0 {
		return fmt.Errorf("config: mirror.size must be positive for %s", c.Mirror.Kind)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
