package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	EnvMaxSweeps     = "RENDER_MAX_SWEEPS"
	EnvSettleTimeout = "RENDER_SETTLE_TIMEOUT"
)

const (
	RouterLocal  = "local"
	RouterRemote = "remote"
)

type Config struct {
	MaxSweeps     int
	StallSweeps   int
	SettleTimeout time.Duration
	EffectBuffer  int
	LogLevel      string

	Autorouter AutorouterConfig
	Server     ServerConfig
}

type AutorouterConfig struct {
	Mode    string
	URL     string
	Timeout time.Duration
	Retries int

	// artificial latency of the local router
	Delay time.Duration
}

type ServerConfig struct {
	Addr        string
	CorsOrigins []string
}

func Default() Config {
	return Config{
		MaxSweeps:     10000,
		StallSweeps:   3,
		SettleTimeout: 0,
		EffectBuffer:  64,
		LogLevel:      "info",
		Autorouter: AutorouterConfig{
			Mode:    RouterLocal,
			Timeout: 10 * time.Second,
			Retries: 3,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

type fileConfig struct {
	MaxSweeps     int    `toml:"max_sweeps"`
	StallSweeps   int    `toml:"stall_sweeps"`
	SettleTimeout string `toml:"settle_timeout"`
	EffectBuffer  int    `toml:"effect_buffer"`
	LogLevel      string `toml:"log_level"`

	Autorouter struct {
		Mode    string `toml:"mode"`
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
		Retries int    `toml:"retries"`
		Delay   string `toml:"delay"`
	} `toml:"autorouter"`

	Server struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
	} `toml:"server"`
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "load render config")
	}

	if meta.IsDefined("max_sweeps") {
		cfg.MaxSweeps = raw.MaxSweeps
	}
	if meta.IsDefined("stall_sweeps") {
		cfg.StallSweeps = raw.StallSweeps
	}
	if meta.IsDefined("settle_timeout") {
		d, err := parseDuration("settle_timeout", raw.SettleTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.SettleTimeout = d
	}
	if meta.IsDefined("effect_buffer") {
		cfg.EffectBuffer = raw.EffectBuffer
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("autorouter", "mode") {
		cfg.Autorouter.Mode = strings.ToLower(strings.TrimSpace(raw.Autorouter.Mode))
	}
	if meta.IsDefined("autorouter", "url") {
		cfg.Autorouter.URL = strings.TrimRight(strings.TrimSpace(raw.Autorouter.URL), "/")
	}
	if meta.IsDefined("autorouter", "timeout") {
		d, err := parseDuration("autorouter.timeout", raw.Autorouter.Timeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Autorouter.Timeout = d
	}
	if meta.IsDefined("autorouter", "retries") {
		cfg.Autorouter.Retries = raw.Autorouter.Retries
	}
	if meta.IsDefined("autorouter", "delay") {
		d, err := parseDuration("autorouter.delay", raw.Autorouter.Delay)
		if err != nil {
			return Config{}, err
		}
		cfg.Autorouter.Delay = d
	}

	if meta.IsDefined("server", "addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "cors_origins") {
		cfg.Server.CorsOrigins = normalizeOrigins(raw.Server.CorsOrigins)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overrides the sweep limits from the environment.
func (c *Config) ApplyEnv() error {
	if raw := strings.TrimSpace(os.Getenv(EnvMaxSweeps)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(err, "parse %s", EnvMaxSweeps)
		}
		c.MaxSweeps = n
	}
	if raw := strings.TrimSpace(os.Getenv(EnvSettleTimeout)); raw != "" {
		d, err := parseDuration(EnvSettleTimeout, raw)
		if err != nil {
			return err
		}
		c.SettleTimeout = d
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.MaxSweeps < 1 {
		result = multierror.Append(result, fmt.Errorf("max_sweeps must be positive, got %d", c.MaxSweeps))
	}
	if c.StallSweeps < 1 {
		result = multierror.Append(result, fmt.Errorf("stall_sweeps must be positive, got %d", c.StallSweeps))
	}
	if c.SettleTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("settle_timeout must not be negative, got %s", c.SettleTimeout))
	}
	if c.EffectBuffer < 1 {
		result = multierror.Append(result, fmt.Errorf("effect_buffer must be positive, got %d", c.EffectBuffer))
	}

	switch c.Autorouter.Mode {
	case RouterLocal:
	case RouterRemote:
		if c.Autorouter.URL == "" {
			result = multierror.Append(result, errors.New("autorouter.url is required in remote mode"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown autorouter mode %q", c.Autorouter.Mode))
	}
	if c.Autorouter.Retries < 0 {
		result = multierror.Append(result, fmt.Errorf("autorouter.retries must not be negative, got %d", c.Autorouter.Retries))
	}
	if c.Autorouter.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("autorouter.timeout must be positive, got %s", c.Autorouter.Timeout))
	}

	return result.ErrorOrNil()
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
