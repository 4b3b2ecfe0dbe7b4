package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"regexp"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/blob"
)

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	Headless  bool
	NoSandbox bool
	ExecPath  string
}

// Chrome rasterizes through a headless browser, the same engine the
// templates are designed in. One browser is shared; every job runs in
// its own tab.
type Chrome struct {
	browser context.Context
}

// NewChrome starts the browser allocator. The returned cancel func shuts
// the browser down.
func NewChrome(parent context.Context, opts ChromeOptions) (*Chrome, context.CancelFunc, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", opts.NoSandbox),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	browser, browserCancel := chromedp.NewContext(allocCtx)

	// start the browser now so the first render does not pay for it
	if err := chromedp.Run(browser); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("unable start chrome: %w", err)
	}
	return &Chrome{browser: browser}, func() {
		browserCancel()
		allocCancel()
	}, nil
}

func (c *Chrome) Name() string { return "chrome" }

func (c *Chrome) Rasterize(ctx context.Context, job Job) (image.Image, error) {
	raw, err := document(job)
	if err != nil {
		return nil, err
	}
	svg, err := inlineBlobs(raw, job.Blobs)
	if err != nil {
		return nil, err
	}
	doc := bannerPage(svg, job.Width, job.Height)

	tabCtx, tabCancel := chromedp.NewContext(c.browser)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var decoded bool
	var shot []byte
	err = chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(job.Width), int64(job.Height)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.WaitReady("#banner", chromedp.ByID),
		chromedp.Evaluate(`document.getElementById("banner").decode().then(() => true)`, &decoded,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) }),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: chrome: %v", ErrRasterize, err)
	}
	if !decoded {
		return nil, fmt.Errorf("%w: chrome could not decode document", ErrRasterize)
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot decode: %v", ErrRasterize, err)
	}
	return img, nil
}

var blobRef = regexp.MustCompile(`blob:[0-9a-fA-F-]{36}`)

// inlineBlobs swaps blob: links for data: URIs; the browser cannot see the
// request's blob store.
func inlineBlobs(svg []byte, blobs blob.Getter) ([]byte, error) {
	var firstErr error
	out := blobRef.ReplaceAllFunc(svg, func(ref []byte) []byte {
		b, mime, err := blobs.Get(string(ref))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: %v", ErrRasterize, ref, err)
			}
			return ref
		}
		return []byte(dataURI(mime, b))
	})
	return out, firstErr
}

func bannerPage(svg []byte, w, h int) string {
	src := "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(svg)
	return fmt.Sprintf(`<!doctype html><html><head><style>html,body{margin:0;padding:0;overflow:hidden;background:transparent}img{display:block}</style></head>`+
		`<body><img id="banner" width="%d" height="%d" src="%s"></body></html>`, w, h, src)
}
