package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/banner"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/raster"
)

type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"` // :8080
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	PublicURL     string        `yaml:"public_url"`  // prefix for download links, empty = relative
	ResultsTTL    time.Duration `yaml:"results_ttl"` // how long a rendered banner can be downloaded
	ResultsMax    int           `yaml:"results_max"` // cap to bound memory
}

type AssetsConfig struct {
	Source     string        `yaml:"source"`   // embed | dir | http
	Dir        string        `yaml:"dir"`      // root holding svgs/ and backgrounds/
	BaseURL    string        `yaml:"base_url"` // e.g. https://banners.example.org/
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"` // attempts per asset, 1 = no retry
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	UserAgent  string        `yaml:"user_agent"`
	MaxBytes   int64         `yaml:"max_bytes"` // largest asset body accepted over http
}

type ChromeConfig struct {
	Headless  bool   `yaml:"headless"`
	NoSandbox bool   `yaml:"no_sandbox"`
	ExecPath  string `yaml:"exec_path"`
}

type RasterConfig struct {
	Backend      string        `yaml:"backend"` // native | chrome
	Timeout      time.Duration `yaml:"timeout"`
	Format       string        `yaml:"format"` // png | bmp | bmp1
	FontPath     string        `yaml:"font_path"`
	BoldFontPath string        `yaml:"bold_font_path"`
	Chrome       ChromeConfig  `yaml:"chrome"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug | info | warn | error
	Development bool   `yaml:"development"`
}

type Config struct {
	Server ServerConfig  `yaml:"server"`
	Assets AssetsConfig  `yaml:"assets"`
	Raster RasterConfig  `yaml:"raster"`
	Banner banner.Policy `yaml:"banner"`
	Log    LogConfig     `yaml:"log"`
}

const (
	SourceEmbed = "embed"
	SourceDir   = "dir"
	SourceHTTP  = "http"

	BackendNative = "native"
	BackendChrome = "chrome"
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress: ":8080",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			ResultsTTL:    time.Hour,
			ResultsMax:    256,
		},
		Assets: AssetsConfig{
			Source:     SourceEmbed,
			Timeout:    10 * time.Second,
			MaxRetries: 1,
			Backoff:    200 * time.Millisecond,
			MaxBackoff: 2 * time.Second,
			UserAgent:  "cpt-banner-generator",
			MaxBytes:   16 << 20,
		},
		Raster: RasterConfig{
			Backend: BackendNative,
			Timeout: raster.DefaultTimeout,
			Format:  string(raster.PNG),
			Chrome:  ChromeConfig{Headless: true},
		},
		Banner: banner.DefaultPolicy(),
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over Default. An empty path returns
// Default unchanged.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("unable parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Assets.Source {
	case SourceEmbed:
	case SourceDir:
		if c.Assets.Dir == "" {
			errs = append(errs, errors.New("assets.dir is required for source dir"))
		}
	case SourceHTTP:
		if c.Assets.BaseURL == "" {
			errs = append(errs, errors.New("assets.base_url is required for source http"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown assets.source %q", c.Assets.Source))
	}
	switch c.Raster.Backend {
	case BackendNative, BackendChrome:
	default:
		errs = append(errs, fmt.Errorf("unknown raster.backend %q", c.Raster.Backend))
	}
	if _, err := raster.ParseFormat(c.Raster.Format); err != nil {
		errs = append(errs, fmt.Errorf("raster.format: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"server.idle_timeout":  c.Server.IdleTimeout,
		"server.results_ttl":   c.Server.ResultsTTL,
		"assets.timeout":       c.Assets.Timeout,
		"raster.timeout":       c.Raster.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Server.ResultsMax <= 0 {
		errs = append(errs, fmt.Errorf("server.results_max must be positive, got %d", c.Server.ResultsMax))
	}
	if c.Assets.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("assets.max_bytes must be positive, got %d", c.Assets.MaxBytes))
	}
	if c.Assets.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("assets.max_retries must be at least 1, got %d", c.Assets.MaxRetries))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
