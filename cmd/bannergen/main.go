package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/app"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/config"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
)

func main() {
	var (
		rec        event.Record
		configPath = flag.String("config", "", "path to YAML config")
		out        = flag.String("out", "", "bitmap output path (default {logon}.{format})")
		icsPath    = flag.String("ics", "", "also write a calendar invite to this path")
		format     = flag.String("format", "", "override raster.format: png, bmp or bmp1")
		backend    = flag.String("backend", "", "override raster.backend: native or chrome")
	)
	flag.StringVar(&rec.Country, "country", "", "country code, e.g. FI")
	flag.StringVar(&rec.ICAO, "icao", "", "location identifier, e.g. EFHK")
	flag.StringVar(&rec.Callsign, "callsign", "", "radio callsign, e.g. Helsinki Tower")
	flag.StringVar(&rec.Logon, "logon", "", "position logon, e.g. EFHK_TWR")
	flag.StringVar(&rec.Type, "type", "", "exam type, e.g. ATC Exam")
	flag.StringVar(&rec.Date, "date", "", `exam date, "02 Jan 2006"`)
	flag.StringVar(&rec.StartTime, "start", "", "start time UTC, 15:04")
	flag.StringVar(&rec.EndTime, "end", "", "end time UTC, 15:04")
	flag.StringVar(&rec.Candidate, "candidate", "", "candidate first name")
	flag.StringVar(&rec.Place, "place", "", "airport name used in the description")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *format != "" {
		cfg.Raster.Format = *format
	}
	if *backend != "" {
		cfg.Raster.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger, rec, *out, *icsPath); err != nil {
		logger.Fatal("unable generate banner", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger, rec event.Record, out, icsPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	compositor, release, err := app.NewCompositor(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer release()

	res, err := compositor.Render(ctx, rec)
	if err != nil {
		return err
	}

	if out == "" {
		name := rec.Logon
		if name == "" {
			name = "banner"
		}
		out = name + "." + res.Format.Ext()
	}
	if err := os.WriteFile(out, res.Bitmap, 0o644); err != nil {
		return fmt.Errorf("unable write bitmap: %w", err)
	}
	logger.Info("banner written", zap.String("path", out), zap.Int("bytes", len(res.Bitmap)))

	if icsPath != "" {
		ics, err := event.Invite(rec, res.Title, time.Now())
		if err != nil {
			return err
		}
		if err := os.WriteFile(icsPath, ics, 0o644); err != nil {
			return fmt.Errorf("unable write invite: %w", err)
		}
		logger.Info("invite written", zap.String("path", icsPath))
	}

	fmt.Println(res.Title)
	if res.Description != "" {
		fmt.Println(res.Description)
	}
	return nil
}
