// Package config loads the memocache CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// EnvRedisAddr overrides redis.addr when set.
const EnvRedisAddr = "MEMOCACHE_REDIS_ADDR"

// Duration reads "90m", "1d", "2w" or plain seconds from YAML. For expire, 0
// means entries never expire.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if n.ShortTag() == "!!int" {
		s += "s"
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

type Tenant struct {
	Multi   bool   `yaml:"multi"`
	ID      string `yaml:"id"`
	Network string `yaml:"network"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

type SQLite struct {
	Path          string   `yaml:"path"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type BigCache struct {
	LifeWindow Duration `yaml:"life_window"`
	MaxSizeMB  int      `yaml:"max_size_mb"`
}

type Config struct {
	Name             string    `yaml:"name"`
	Group            string    `yaml:"group"`
	Expire           Duration  `yaml:"expire"`
	Backend          string    `yaml:"backend"`
	Codec            string    `yaml:"codec"`
	LogLevel         string    `yaml:"log_level"`
	AtomicAggregates bool      `yaml:"atomic_aggregates"`
	Tenant           Tenant    `yaml:"tenant"`
	Redis            Redis     `yaml:"redis"`
	Ristretto        Ristretto `yaml:"ristretto"`
	BigCache         BigCache  `yaml:"bigcache"`
	SQLite           SQLite    `yaml:"sqlite"`
}

func Default() Config {
	return Config{
		Name:     "memocache",
		Expire:   Duration(24 * time.Hour),
		Backend:  "redis",
		Codec:    "string",
		LogLevel: "info",
		Redis:    Redis{Addr: "localhost:6379"},
		Ristretto: Ristretto{
			NumCounters: 1e5,
			MaxCost:     64 << 20,
			BufferItems: 64,
		},
		BigCache: BigCache{LifeWindow: Duration(24 * time.Hour)},
		SQLite:   SQLite{SweepInterval: Duration(time.Minute)},
	}
}

// Load reads path over Default. An empty path yields the defaults; the
// environment override applies in both cases.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		cfg.Redis.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
	case "ristretto":
		if c.Ristretto.NumCounters <= 0 || c.Ristretto.MaxCost <= 0 || c.Ristretto.BufferItems <= 0 {
			errs = append(errs, errors.New("ristretto sizes must be positive"))
		}
	case "bigcache":
		if c.BigCache.LifeWindow <= 0 {
			errs = append(errs, errors.New("bigcache.life_window must be positive"))
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	switch c.Codec {
	case "json", "msgpack", "cbor", "string":
	default:
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if c.Group == "" && c.Name == "" {
		errs = append(errs, errors.New("group or name is required"))
	}
	if c.Expire < 0 {
		errs = append(errs, errors.New("expire must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
