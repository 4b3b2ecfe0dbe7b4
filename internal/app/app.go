// Package app wires configuration into the components both commands use.
package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/assets"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/banner"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/config"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/metrics"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/raster"
)

func NewLogger(c config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("unable parse log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

// NewStore returns the template and background storage named by c.
func NewStore(c config.AssetsConfig) (assets.Store, error) {
	switch c.Source {
	case config.SourceEmbed, "":
		return assets.NewFSStore(assets.Embedded), nil
	case config.SourceDir:
		if _, err := os.Stat(c.Dir); err != nil {
			return nil, fmt.Errorf("unable open assets dir: %w", err)
		}
		return assets.NewFSStore(os.DirFS(c.Dir)), nil
	case config.SourceHTTP:
		s := assets.NewHTTPStore(c.BaseURL, c.Timeout)
		s.UserAgent = c.UserAgent
		s.MaxRetries = c.MaxRetries
		s.Backoff = c.Backoff
		s.MaxBackoff = c.MaxBackoff
		s.MaxBodyBytes = c.MaxBytes
		return s, nil
	}
	return nil, fmt.Errorf("unknown assets source %q", c.Source)
}

// NewRasterizer starts the backend named by c. The returned func releases
// it.
func NewRasterizer(ctx context.Context, c config.RasterConfig) (raster.Rasterizer, func(), error) {
	switch c.Backend {
	case config.BackendChrome:
		r, cancel, err := raster.NewChrome(ctx, raster.ChromeOptions{
			Headless:  c.Chrome.Headless,
			NoSandbox: c.Chrome.NoSandbox,
			ExecPath:  c.Chrome.ExecPath,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, cancel, nil
	case config.BackendNative, "":
		r, err := raster.NewNative(raster.NativeOptions{
			FontPath:     c.FontPath,
			BoldFontPath: c.BoldFontPath,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown raster backend %q", c.Backend)
}

// NewCompositor builds the compositor for c. Call the returned func when
// done rendering.
func NewCompositor(ctx context.Context, c config.Config, log *zap.Logger, m *metrics.Metrics) (*banner.Compositor, func(), error) {
	store, err := NewStore(c.Assets)
	if err != nil {
		return nil, nil, err
	}
	format, err := raster.ParseFormat(c.Raster.Format)
	if err != nil {
		return nil, nil, err
	}
	r, release, err := NewRasterizer(ctx, c.Raster)
	if err != nil {
		return nil, nil, err
	}
	log.Info("compositor ready",
		zap.String("assets", c.Assets.Source),
		zap.String("rasterizer", r.Name()),
		zap.String("format", string(format)),
	)
	return banner.New(store, r, banner.Options{
		Policy:  c.Banner,
		Format:  format,
		Timeout: c.Raster.Timeout,
		Logger:  log,
		Metrics: m,
	}), release, nil
}
