package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	pstrings "docguard/pkg/platform/strings"
)

// Config is the full agent configuration. Defaults come from DefaultConfig,
// then an optional file, then DOCGUARD_* environment variables.
type Config struct {
	Server     Server      `toml:"server" yaml:"server"`
	Issuer     Issuer      `toml:"issuer" yaml:"issuer"`
	Session    Session     `toml:"session" yaml:"session"`
	Watermark  Watermark   `toml:"watermark" yaml:"watermark"`
	Threat     Threat      `toml:"threat" yaml:"threat"`
	Revocation Revocation  `toml:"revocation" yaml:"revocation"`
	Telemetry  Telemetry   `toml:"telemetry" yaml:"telemetry"`
	Redis      RedisConfig `toml:"redis" yaml:"redis"`
	Log        Log         `toml:"log" yaml:"log"`
}

// Server captures the local agent API listener.
type Server struct {
	Addr            string        `toml:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type Issuer struct {
	BaseURL         string        `toml:"base_url" yaml:"base_url"`
	Timeout         time.Duration `toml:"timeout" yaml:"timeout"`
	MaxArtifactSize int64         `toml:"max_artifact_size" yaml:"max_artifact_size"`
}

type Session struct {
	ArtifactDir    string        `toml:"artifact_dir" yaml:"artifact_dir"`
	ExpiryInterval time.Duration `toml:"expiry_interval" yaml:"expiry_interval"`
	// WatermarkTick is how often the runner checks for a minute rollover.
	WatermarkTick time.Duration `toml:"watermark_tick" yaml:"watermark_tick"`
	// VerifyPageCount cross-checks the artifact's page count with the grant.
	VerifyPageCount bool `toml:"verify_page_count" yaml:"verify_page_count"`
	// OpenTimeout bounds issuance, download and verification of one open.
	OpenTimeout time.Duration `toml:"open_timeout" yaml:"open_timeout"`
}

type Watermark struct {
	ProductTag string  `toml:"product_tag" yaml:"product_tag"`
	Opacity    float64 `toml:"opacity" yaml:"opacity"`
	Columns    int     `toml:"columns" yaml:"columns"`
	Rows       int     `toml:"rows" yaml:"rows"`
}

type Threat struct {
	Debounce         time.Duration `toml:"debounce" yaml:"debounce"`
	ScreenshotDirs   []string      `toml:"screenshot_dirs" yaml:"screenshot_dirs"`
	WatchScreenSaver bool          `toml:"watch_screensaver" yaml:"watch_screensaver"`
	TrustRoot        string        `toml:"trust_root" yaml:"trust_root"`
	TrustIndicators  []string      `toml:"trust_indicators" yaml:"trust_indicators"`
}

type Revocation struct {
	Timeout          time.Duration `toml:"timeout" yaml:"timeout"`
	BreakerThreshold int           `toml:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `toml:"breaker_cooldown" yaml:"breaker_cooldown"`
}

const (
	TelemetryMemory = "memory"
	TelemetryRedis  = "redis"
)

type Telemetry struct {
	Backend    string        `toml:"backend" yaml:"backend"`
	Buffer     int           `toml:"buffer" yaml:"buffer"`
	PerSession int           `toml:"per_session" yaml:"per_session"`
	TTL        time.Duration `toml:"ttl" yaml:"ttl"`
}

// RedisConfig is only needed when telemetry uses the redis backend.
type RedisConfig struct {
	URL          string        `toml:"url" yaml:"url"`
	PoolSize     int           `toml:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout"`
}

type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Addr:            "127.0.0.1:7420",
			ShutdownTimeout: 10 * time.Second,
		},
		Issuer: Issuer{
			Timeout:         30 * time.Second,
			MaxArtifactSize: 512 << 20,
		},
		Session: Session{
			ArtifactDir:     filepath.Join(os.TempDir(), "docguard"),
			ExpiryInterval:  60 * time.Second,
			WatermarkTick:   10 * time.Second,
			VerifyPageCount: true,
			OpenTimeout:     2 * time.Minute,
		},
		Watermark: Watermark{
			ProductTag: "DOCGUARD",
			Opacity:    0.14,
			Columns:    3,
			Rows:       5,
		},
		Threat: Threat{
			Debounce:         250 * time.Millisecond,
			ScreenshotDirs:   []string{"~/Pictures/Screenshots", "~/Pictures", "~/Desktop"},
			WatchScreenSaver: true,
			TrustRoot:        "/",
		},
		Revocation: Revocation{
			Timeout:          3 * time.Second,
			BreakerThreshold: 3,
			BreakerCooldown:  30 * time.Second,
		},
		Telemetry: Telemetry{
			Backend:    TelemetryMemory,
			Buffer:     1024,
			PerSession: 1000,
			TTL:        24 * time.Hour,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// FromEnv loads the file named by DOCGUARD_CONFIG (if any) and applies
// environment overrides, so main stays lean.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("DOCGUARD_CONFIG"))
}

// Load builds a validated Config. An empty path or a missing file means
// defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnvOverrides reads DOCGUARD_* variables on top of the current values.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("DOCGUARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DOCGUARD_ISSUER_URL"); v != "" {
		c.Issuer.BaseURL = v
	}
	if v := os.Getenv("DOCGUARD_ARTIFACT_DIR"); v != "" {
		c.Session.ArtifactDir = v
	}
	if v := os.Getenv("DOCGUARD_PRODUCT_TAG"); v != "" {
		c.Watermark.ProductTag = v
	}
	if v := os.Getenv("DOCGUARD_SCREENSHOT_DIRS"); v != "" {
		c.Threat.ScreenshotDirs = pstrings.DedupeAndTrim(strings.Split(v, ","))
	}
	if v := os.Getenv("DOCGUARD_WATCH_SCREENSAVER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCGUARD_WATCH_SCREENSAVER: %w", err)
		}
		c.Threat.WatchScreenSaver = b
	}
	if v := os.Getenv("DOCGUARD_EXPIRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOCGUARD_EXPIRY_INTERVAL: %w", err)
		}
		c.Session.ExpiryInterval = d
	}
	if v := os.Getenv("DOCGUARD_TELEMETRY_BACKEND"); v != "" {
		c.Telemetry.Backend = v
	}
	if v := os.Getenv("DOCGUARD_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("DOCGUARD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DOCGUARD_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if u, err := url.Parse(c.Issuer.BaseURL); c.Issuer.BaseURL == "" || err != nil || u.Host == "" {
		errs = append(errs, errors.New("issuer.base_url must be an absolute url"))
	}
	if c.Session.ArtifactDir == "" {
		errs = append(errs, errors.New("session.artifact_dir is required"))
	}
	if c.Session.ExpiryInterval <= 0 {
		errs = append(errs, errors.New("session.expiry_interval must be positive"))
	}
	if c.Session.OpenTimeout <= 0 {
		errs = append(errs, errors.New("session.open_timeout must be positive"))
	}
	if c.Session.WatermarkTick <= 0 || c.Session.WatermarkTick > time.Minute {
		errs = append(errs, errors.New("session.watermark_tick must be in (0, 1m]"))
	}
	if c.Watermark.Opacity <= 0 || c.Watermark.Opacity > 1 {
		errs = append(errs, errors.New("watermark.opacity must be in (0, 1]"))
	}
	if c.Watermark.Columns < 1 || c.Watermark.Rows < 1 {
		errs = append(errs, errors.New("watermark grid must be at least 1x1"))
	}
	if c.Threat.Debounce < 0 {
		errs = append(errs, errors.New("threat.debounce must not be negative"))
	}
	if c.Revocation.Timeout <= 0 {
		errs = append(errs, errors.New("revocation.timeout must be positive"))
	}
	switch c.Telemetry.Backend {
	case TelemetryMemory:
	case TelemetryRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis telemetry backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown telemetry.backend %q", c.Telemetry.Backend))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
