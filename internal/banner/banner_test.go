package banner

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/assets"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/blob"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/metrics"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/raster"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/svgdoc"
)

const testTemplate = `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 400 200">
  <image id="background" width="400" height="200" xlink:href="bg.png"/>
  <text id="icao">XXXX</text>
  <text id="type">T</text>
  <text id="candidate">C</text>
  <text id="callsign">CS</text>
  <text id="date">D</text>
  <text id="time">TM</text>
</svg>`

// captureRasterizer records the document it was asked to draw.
type captureRasterizer struct {
	mu     sync.Mutex
	doc    []byte
	images map[string]bool
	delay  time.Duration
	err    error
}

func (c *captureRasterizer) Name() string { return "capture" }

func (c *captureRasterizer) Rasterize(ctx context.Context, job raster.Job) (image.Image, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	b, _, err := job.Blobs.Get(job.Doc)
	if err != nil {
		return nil, err
	}
	doc, err := svgdoc.Parse(b)
	if err != nil {
		return nil, err
	}
	resolved := map[string]bool{}
	for _, img := range doc.Images() {
		_, _, err := job.Blobs.Get(img.Href)
		resolved[img.Href] = err == nil
	}

	c.mu.Lock()
	c.doc = b
	c.images = resolved
	c.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, job.Width, job.Height)), nil
}

func (c *captureRasterizer) document(t *testing.T) *svgdoc.Document {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := svgdoc.Parse(c.doc)
	if err != nil {
		t.Fatalf("captured document: %v", err)
	}
	return doc
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func testStore(t *testing.T, tpl string) fstest.MapFS {
	return fstest.MapFS{
		"svgs/EFHK.svg":      {Data: []byte(tpl)},
		"svgs/FI.svg":        {Data: []byte(tpl)},
		"svgs/SE.svg":        {Data: []byte(strings.Replace(tpl, `viewBox="0 0 400 200"`, "", 1))},
		"svgs/DK.svg":        {Data: []byte("this is not markup")},
		"svgs/NO.svg":        {Data: []byte(strings.Replace(tpl, "bg.png", "missing.png", 1))},
		"svgs/IS.svg":        {Data: []byte(`<svg viewBox="0 0 10 10"><text id="icao">x</text></svg>`)},
		"backgrounds/bg.png": {Data: tinyPNG(t)},
	}
}

type harness struct {
	c        *Compositor
	r        *captureRasterizer
	mu       sync.Mutex
	released []*blob.Store
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{r: &captureRasterizer{}}
	h.c = New(assets.NewFSStore(testStore(t, testTemplate)), h.r, opts)
	h.c.released = func(s *blob.Store) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.released = append(h.released, s)
	}
	return h
}

func (h *harness) assertReleased(t *testing.T, n int) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.released) != n {
		t.Fatalf("released %d stores, want %d", len(h.released), n)
	}
	for _, s := range h.released {
		if s.Len() != 0 {
			t.Fatalf("store still holds %d handles", s.Len())
		}
	}
}

func exam() event.Record {
	return event.Record{
		Country:   "FI",
		Callsign:  "Helsinki Tower",
		ICAO:      "EFHK",
		Logon:     "EFHK_TWR",
		Type:      "ATC Exam",
		Date:      "01 Mar 2025",
		StartTime: "17:00",
		EndTime:   "19:00",
		Candidate: "anna",
	}
}

func TestRenderFillsSlots(t *testing.T) {
	h := newHarness(t, Options{})
	res, err := h.c.Render(context.Background(), exam())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Width != 400 || res.Height != 200 {
		t.Fatalf("size = %dx%d, want 400x200", res.Width, res.Height)
	}
	if res.Template != "EFHK" || res.Title != "EFHK_TWR | ATC Exam" {
		t.Fatalf("template %q title %q", res.Template, res.Title)
	}
	if res.ContentType != "image/png" {
		t.Fatalf("content type = %q", res.ContentType)
	}
	if _, err := png.Decode(bytes.NewReader(res.Bitmap)); err != nil {
		t.Fatalf("bitmap is not a png: %v", err)
	}

	doc := h.r.document(t)
	want := map[string]string{
		SlotICAO:      "EFHK",
		SlotType:      "ATC Exam",
		SlotCandidate: "Anna",
		SlotCallsign:  "Helsinki Tower",
		SlotDate:      "01 Mar 2025",
		SlotTime:      "17:00 - 19:00z",
	}
	for id, v := range want {
		if got := doc.Text(id); got != v {
			t.Errorf("slot %s = %q, want %q", id, got, v)
		}
	}
	if got := doc.Attr(SlotICAO, "style"); got != "" {
		t.Errorf("four letter identifier got style %q", got)
	}
	for href, ok := range h.r.images {
		if !blob.IsRef(href) || !ok {
			t.Errorf("image %q not rewritten to a live handle", href)
		}
	}
	h.assertReleased(t, 1)
}

func TestRenderDefaults(t *testing.T) {
	h := newHarness(t, Options{})
	rec := exam()
	rec.Callsign = ""
	rec.Candidate = "  "
	if _, err := h.c.Render(context.Background(), rec); err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc := h.r.document(t)
	if got := doc.Text(SlotCallsign); got != "Donlon Tower" {
		t.Errorf("callsign = %q", got)
	}
	if got := doc.Text(SlotCandidate); got != "Error" {
		t.Errorf("candidate = %q", got)
	}

	if got := h.c.SlotValues(event.Record{})[SlotICAO]; got != "ZZZZ" {
		t.Errorf("missing icao = %q, want ZZZZ", got)
	}
}

func TestRenderLongICAO(t *testing.T) {
	h := newHarness(t, Options{})
	rec := exam()
	rec.ICAO = "EFHKX"
	if _, err := h.c.Render(context.Background(), rec); err != nil {
		t.Fatalf("Render: %v", err)
	}
	doc := h.r.document(t)
	if got := doc.Attr(SlotICAO, "style"); got != "font-size: 46px;" {
		t.Fatalf("style = %q", got)
	}
	if got := doc.Text(SlotICAO); got != "EFHKX" {
		t.Fatalf("icao = %q", got)
	}
}

func TestRenderLowerCaseICAOUsesCountryTemplate(t *testing.T) {
	h := newHarness(t, Options{})
	rec := exam()
	rec.ICAO = "efhk"
	res, err := h.c.Render(context.Background(), rec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Template != "FI" {
		t.Fatalf("template = %q, want FI", res.Template)
	}
	if got := h.r.document(t).Text(SlotICAO); got != "efhk" {
		t.Fatalf("icao = %q", got)
	}

	n, err := raster.NewNative(raster.NativeOptions{})
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	res, err = New(assets.NewFSStore(assets.Embedded), n, Options{}).Render(context.Background(), rec)
	if err != nil {
		t.Fatalf("Render embedded: %v", err)
	}
	if res.Template != "FI" || res.Width != 1200 || res.Height != 630 {
		t.Fatalf("embedded result = %s %dx%d", res.Template, res.Width, res.Height)
	}
}

func TestRenderMissingSlotIsSkipped(t *testing.T) {
	h := newHarness(t, Options{})
	rec := exam()
	rec.ICAO = "BIRK"
	rec.Country = "IS"
	res, err := h.c.Render(context.Background(), rec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Width != 10 || res.Height != 10 {
		t.Fatalf("size = %dx%d", res.Width, res.Height)
	}
	if got := h.r.document(t).Text(SlotICAO); got != "BIRK" {
		t.Fatalf("icao = %q", got)
	}
}

func TestRenderBackgroundFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(t, Options{Metrics: m})
	rec := exam()
	rec.ICAO = "ENBR"
	rec.Country = "NO"

	res, err := h.c.Render(context.Background(), rec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res == nil || len(res.Bitmap) == 0 {
		t.Fatal("no bitmap")
	}
	if got := h.r.images["missing.png"]; got {
		t.Fatal("missing background should stay unresolved")
	}
	if _, ok := h.r.images["missing.png"]; !ok {
		t.Fatalf("original link not kept: %v", h.r.images)
	}
	if got := testutil.ToFloat64(m.BackgroundFailures().WithLabelValues("NO")); got != 1 {
		t.Fatalf("background failures = %v", got)
	}
	if got := testutil.ToFloat64(m.Renders().WithLabelValues("NO", "ok")); got != 1 {
		t.Fatalf("ok renders = %v", got)
	}
	h.assertReleased(t, 1)
}

func TestRenderErrors(t *testing.T) {
	for _, c := range []struct {
		name    string
		country string
		icao    string
		want    error
		stage   Stage
	}{
		{"missing template", "XX", "XXXX", ErrAssetNotFound, StageFetch},
		{"malformed", "DK", "EKBI", ErrMalformedTemplate, StageParse},
		{"no view box", "SE", "ESGG", ErrViewBoxMissing, StageRasterize},
	} {
		t.Run(c.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			h := newHarness(t, Options{Metrics: m})
			rec := exam()
			rec.Country, rec.ICAO = c.country, c.icao

			res, err := h.c.Render(context.Background(), rec)
			if res != nil {
				t.Fatalf("unexpected result %+v", res)
			}
			if !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
			var be *Error
			if !errors.As(err, &be) || be.Stage != c.stage {
				t.Fatalf("err = %#v, want stage %s", err, c.stage)
			}
			if got := testutil.ToFloat64(m.Renders().WithLabelValues(c.country, string(c.stage))); got != 1 {
				t.Fatalf("renders{%s,%s} = %v", c.country, c.stage, got)
			}
			h.assertReleased(t, 1)
		})
	}
}

func TestRenderTimeout(t *testing.T) {
	h := newHarness(t, Options{Timeout: 20 * time.Millisecond})
	h.r.delay = time.Second

	start := time.Now()
	_, err := h.c.Render(context.Background(), exam())
	if !errors.Is(err, ErrRasterizeTimeout) {
		t.Fatalf("err = %v, want ErrRasterizeTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("render took %s", elapsed)
	}
	h.assertReleased(t, 1)
}

func TestRenderRasterizeError(t *testing.T) {
	h := newHarness(t, Options{})
	h.r.err = errors.New("boom")
	_, err := h.c.Render(context.Background(), exam())
	if !errors.Is(err, ErrRasterize) {
		t.Fatalf("err = %v, want ErrRasterize", err)
	}
	h.assertReleased(t, 1)
}

func TestRenderConcurrent(t *testing.T) {
	h := newHarness(t, Options{})
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.c.Render(context.Background(), exam()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Render: %v", err)
	}
	h.assertReleased(t, 8)
}

func TestRenderEmbeddedNative(t *testing.T) {
	n, err := raster.NewNative(raster.NativeOptions{})
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	c := New(assets.NewFSStore(assets.Embedded), n, Options{})
	rec := exam()
	rec.Place = "Helsinki-Vantaa"

	res, err := c.Render(context.Background(), rec)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(res.Bitmap))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1200 || b.Dy() != 630 {
		t.Fatalf("bounds = %v, want 1200x630", b)
	}
	if res.Title != "EFHK_TWR | ATC Exam" {
		t.Fatalf("title = %q", res.Title)
	}
	for _, want := range []string{"1st of March 2025", "Anna", "Helsinki-Vantaa"} {
		if !strings.Contains(res.Description, want) {
			t.Errorf("description missing %q", want)
		}
	}
}

func TestRenderBitmapFormat(t *testing.T) {
	h := newHarness(t, Options{Format: raster.BMP1})
	res, err := h.c.Render(context.Background(), exam())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.ContentType != "image/bmp" || !bytes.HasPrefix(res.Bitmap, []byte("BM")) {
		t.Fatalf("content type %q prefix %q", res.ContentType, res.Bitmap[:2])
	}
}
