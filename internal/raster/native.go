package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"net/url"
	"os"
	"strings"

	"github.com/beevik/etree"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/blob"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/svgdoc"
)

// NativeOptions selects the fonts used for <text>. Empty paths use the
// embedded Go fonts.
type NativeOptions struct {
	FontPath     string
	BoldFontPath string
}

// Native rasterizes in-process: backgrounds with imaging, shapes with
// oksvg/rasterx and text with gg. It covers the subset of SVG the banner
// templates use; Chrome renders everything else.
type Native struct {
	regular *truetype.Font
	bold    *truetype.Font
}

func NewNative(opts NativeOptions) (*Native, error) {
	regular, err := loadFont(opts.FontPath, goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("unable load font: %w", err)
	}
	bold, err := loadFont(opts.BoldFontPath, gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("unable load bold font: %w", err)
	}
	return &Native{regular: regular, bold: bold}, nil
}

func loadFont(path string, fallback []byte) (*truetype.Font, error) {
	b := fallback
	if path != "" {
		var err error
		if b, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	return truetype.Parse(b)
}

func (n *Native) Name() string { return "native" }

func (n *Native) Rasterize(ctx context.Context, job Job) (image.Image, error) {
	raw, err := document(job)
	if err != nil {
		return nil, err
	}
	doc, err := svgdoc.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterize, err)
	}
	var vb svgdoc.ViewBox
	if v, err := doc.ViewBox(); err == nil {
		vb = v
	}

	canvas := image.NewRGBA(image.Rect(0, 0, job.Width, job.Height))

	for _, el := range doc.Root().FindElements("//image") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n.drawImage(canvas, el, vb, job.Blobs)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(raw), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: shapes: %v", ErrRasterize, err)
	}
	icon.SetTarget(0, 0, float64(job.Width), float64(job.Height))
	scanner := rasterx.NewScannerGV(job.Width, job.Height, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(job.Width, job.Height, scanner), 1.0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dc := gg.NewContextForRGBA(canvas)
	for _, el := range doc.Root().FindElements("//text") {
		n.drawText(dc, el, vb)
	}
	return canvas, nil
}

func (n *Native) drawImage(dst *image.RGBA, el *etree.Element, vb svgdoc.ViewBox, blobs blob.Getter) {
	data, ok := imageBytes(svgdoc.Href(el), blobs)
	if !ok {
		return
	}
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}

	tx, ty := translation(el)
	x, _ := parseLength(el.SelectAttrValue("x", "0"))
	y, _ := parseLength(el.SelectAttrValue("y", "0"))
	w, wok := parseLength(el.SelectAttrValue("width", ""))
	h, hok := parseLength(el.SelectAttrValue("height", ""))
	if !wok || w <= 0 {
		w = float64(src.Bounds().Dx())
	}
	if !hok || h <= 0 {
		h = float64(src.Bounds().Dy())
	}
	bw, bh := int(w+0.5), int(h+0.5)
	if bw < 1 || bh < 1 {
		return
	}

	var fitted image.Image
	par := el.SelectAttrValue("preserveAspectRatio", "")
	switch {
	case strings.HasPrefix(strings.TrimSpace(par), "none"):
		fitted = imaging.Resize(src, bw, bh, imaging.Lanczos)
	case strings.Contains(par, "slice"):
		fitted = imaging.Fill(src, bw, bh, imaging.Center, imaging.Lanczos)
	default:
		fitted = imaging.Fit(src, bw, bh, imaging.Lanczos)
	}

	fb := fitted.Bounds()
	ox := int(x+tx-vb.MinX+0.5) + (bw-fb.Dx())/2
	oy := int(y+ty-vb.MinY+0.5) + (bh-fb.Dy())/2
	r := image.Rect(ox, oy, ox+fb.Dx(), oy+fb.Dy())
	draw.Draw(dst, r, fitted, fb.Min, draw.Over)
}

func (n *Native) drawText(dc *gg.Context, el *etree.Element, vb svgdoc.ViewBox) {
	// nested <text> is drawn by its own iteration
	if p := el.Parent(); p != nil && p.Tag == "text" {
		return
	}
	s := strings.TrimSpace(strings.Join(strings.Fields(svgdoc.TextContent(el)), " "))
	if s == "" {
		return
	}
	st := resolveTextStyle(el)
	if st.Hidden || st.Opacity == 0 {
		return
	}

	x, xok := parseLength(el.SelectAttrValue("x", ""))
	y, yok := parseLength(el.SelectAttrValue("y", ""))
	if span := el.SelectElement("tspan"); span != nil {
		if !xok {
			x, _ = parseLength(span.SelectAttrValue("x", "0"))
		}
		if !yok {
			y, _ = parseLength(span.SelectAttrValue("y", "0"))
		}
	}
	tx, ty := translation(el)

	f := n.regular
	if st.Bold {
		f = n.bold
	}
	face := truetype.NewFace(f, &truetype.Options{Size: st.Size, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()

	dc.SetFontFace(face)
	dc.SetColor(withOpacity(st.Fill, st.Opacity))
	dc.DrawStringAnchored(s, x+tx-vb.MinX, y+ty-vb.MinY, st.Anchor, st.Baseline)
}

func withOpacity(c color.Color, opacity float64) color.Color {
	if opacity >= 1 {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * opacity)
	return n
}

// imageBytes resolves a blob: or data: link. Anything else was not
// resolved by the compositor and is skipped.
func imageBytes(href string, blobs blob.Getter) ([]byte, bool) {
	switch {
	case blob.IsRef(href):
		if blobs == nil {
			return nil, false
		}
		b, _, err := blobs.Get(href)
		return b, err == nil
	case strings.HasPrefix(href, "data:"):
		b, _, err := decodeDataURI(href)
		return b, err == nil
	}
	return nil, false
}

func decodeDataURI(uri string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("data uri without payload")
	}
	mime, _, _ := strings.Cut(meta, ";")
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		return b, mime, err
	}
	s, err := url.PathUnescape(payload)
	return []byte(s), mime, err
}

func dataURI(mime string, b []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}
