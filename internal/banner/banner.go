// Package banner renders exam banners: it fills a unit's template with
// the event details, rasterizes it and derives the title and caption.
package banner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/assets"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/blob"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/metrics"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/raster"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/svgdoc"
)

var (
	ErrAssetNotFound     = assets.ErrNotFound
	ErrMalformedTemplate = svgdoc.ErrMalformed
	ErrViewBoxMissing    = svgdoc.ErrNoViewBox
	ErrRasterize         = raster.ErrRasterize
	ErrRasterizeTimeout  = raster.ErrTimeout
)

// Stage names a step of one render. A failed render reports the stage it
// stopped in.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageParse     Stage = "parse"
	StageFill      Stage = "fill"
	StageImages    Stage = "images"
	StageSerialize Stage = "serialize"
	StageRasterize Stage = "rasterize"
	StageDone      Stage = "ok"
)

// Error is returned by Render for every failure.
type Error struct {
	Stage    Stage
	Template string
	Err      error
}

func (e *Error) Error() string {
	if e.Template != "" {
		return fmt.Sprintf("banner %s: %s: %v", e.Template, e.Stage, e.Err)
	}
	return fmt.Sprintf("banner: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is a rendered banner. The caller owns every field.
type Result struct {
	Bitmap      []byte
	ContentType string
	Format      raster.Format
	Width       int
	Height      int
	Template    string
	Title       string
	Description string
}

type Options struct {
	Policy  Policy
	Format  raster.Format
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Compositor renders banners. It holds configuration only, so one
// Compositor serves concurrent renders.
type Compositor struct {
	resolver   *assets.Resolver
	rasterizer raster.Rasterizer
	policy     Policy
	format     raster.Format
	timeout    time.Duration
	log        *zap.Logger
	metrics    *metrics.Metrics

	// released observes the handle store after cleanup; tests only.
	released func(*blob.Store)
}

func New(store assets.Store, r raster.Rasterizer, opts Options) *Compositor {
	policy := opts.Policy.withDefaults()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	format := opts.Format
	if format == "" {
		format = raster.PNG
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = raster.DefaultTimeout
	}
	return &Compositor{
		resolver:   assets.NewResolver(store, policy.Major),
		rasterizer: r,
		policy:     policy,
		format:     format,
		timeout:    timeout,
		log:        log,
		metrics:    opts.Metrics,
	}
}

// Resolver returns the template resolver the compositor uses.
func (c *Compositor) Resolver() *assets.Resolver { return c.resolver }

// Render produces the banner for rec.
func (c *Compositor) Render(ctx context.Context, rec event.Record) (res *Result, err error) {
	done := c.metrics.Start()
	key := c.resolver.Key(rec.ICAO, rec.Country)
	log := c.log.With(zap.String("template", key), zap.String("logon", rec.Logon))

	handles := blob.NewStore()
	defer func() {
		n := handles.RevokeAll()
		log.Debug("released handles", zap.Int("count", n))
		if c.released != nil {
			c.released(handles)
		}

		outcome := string(StageDone)
		var be *Error
		if errors.As(err, &be) {
			outcome = string(be.Stage)
		}
		done(key, outcome)
	}()

	fail := func(stage Stage, err error) (*Result, error) {
		log.Error("unable render banner", zap.String("stage", string(stage)), zap.Error(err))
		return nil, &Error{Stage: stage, Template: key, Err: err}
	}

	key, raw, err := c.resolver.Template(ctx, rec.ICAO, rec.Country)
	if err != nil {
		return fail(StageFetch, err)
	}

	doc, err := svgdoc.Parse(raw)
	if err != nil {
		return fail(StageParse, err)
	}

	c.fill(doc, rec)

	c.resolveBackgrounds(ctx, log, key, doc, handles)

	svg, err := doc.Serialize()
	if err != nil {
		return fail(StageSerialize, err)
	}
	docRef := handles.Put(svg, "image/svg+xml;charset=utf-8")

	vb, err := doc.ViewBox()
	if err != nil {
		return fail(StageRasterize, err)
	}
	width, height := vb.Size()

	img, err := raster.Run(ctx, c.rasterizer, raster.Job{
		Doc:    docRef,
		Width:  width,
		Height: height,
		Blobs:  handles,
	}, c.timeout)
	if err != nil {
		return fail(StageRasterize, err)
	}
	bitmap, err := raster.Encode(img, c.format)
	if err != nil {
		return fail(StageRasterize, fmt.Errorf("%w: %v", raster.ErrRasterize, err))
	}

	description, err := Description(rec, c.policy.Description)
	if err != nil {
		// the banner itself is fine; ship it without a caption
		log.Warn("unable render description", zap.Error(err))
		description = ""
	}

	log.Info("banner rendered",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("bytes", len(bitmap)),
		zap.String("rasterizer", c.rasterizer.Name()),
	)

	return &Result{
		Bitmap:      bitmap,
		ContentType: c.format.ContentType(),
		Format:      c.format,
		Width:       width,
		Height:      height,
		Template:    key,
		Title:       Title(rec.Logon, rec.Type),
		Description: description,
	}, nil
}

// SlotValues returns the text written into each slot for rec.
func (c *Compositor) SlotValues(rec event.Record) map[string]string {
	p := c.policy
	return map[string]string{
		SlotCallsign:  orDefault(rec.Callsign, p.DefaultCallsign),
		SlotType:      rec.Type,
		SlotDate:      rec.Date,
		SlotTime:      rec.Slot(),
		SlotCandidate: orDefault(Capitalize(strings.TrimSpace(rec.Candidate)), p.MissingCandidate),
		SlotICAO:      orDefault(rec.ICAO, p.MissingICAO),
	}
}

func (c *Compositor) fill(doc *svgdoc.Document, rec event.Record) {
	values := c.SlotValues(rec)
	for _, slot := range Slots {
		doc.SetText(slot, values[slot])
	}
	// long identifiers would run out of the badge
	if len([]rune(rec.ICAO)) > c.policy.MaxICAOLength {
		doc.SetAttr(SlotICAO, "style", c.policy.LongICAOStyle)
	}
}

type fetched struct {
	img  *svgdoc.Image
	data []byte
	err  error
}

// resolveBackgrounds fetches every linked background concurrently and
// rewrites each link to an in-memory handle. A failed fetch is logged and
// the link is left as is.
func (c *Compositor) resolveBackgrounds(ctx context.Context, log *zap.Logger, key string, doc *svgdoc.Document, handles *blob.Store) {
	var pending []*fetched
	for _, img := range doc.Images() {
		if strings.HasPrefix(img.Href, "data:") || blob.IsRef(img.Href) {
			continue
		}
		pending = append(pending, &fetched{img: img})
	}
	if len(pending) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, f := range pending {
		wg.Add(1)
		go func(f *fetched) {
			defer wg.Done()
			f.data, f.err = c.resolver.Background(ctx, f.img.Href)
		}(f)
	}
	wg.Wait()

	for _, f := range pending {
		if f.err != nil {
			log.Warn("unable fetch background image", zap.String("href", f.img.Href), zap.Error(f.err))
			c.metrics.BackgroundFailed(key)
			continue
		}
		f.img.Rewrite(handles.Put(f.data, http.DetectContentType(f.data)))
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
