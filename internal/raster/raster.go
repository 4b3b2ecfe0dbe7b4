// Package raster turns a serialized banner document into a bitmap.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/blob"
)

var (
	// ErrRasterize is returned when a backend fails to decode or draw the document.
	ErrRasterize = errors.New("rasterize failed")
	// ErrTimeout is returned when a backend does not finish within the bounded wait.
	ErrTimeout = errors.New("rasterize timed out")
)

// DefaultTimeout bounds a single rasterization.
const DefaultTimeout = 10 * time.Second

// Job describes one document to draw. Doc and every image link inside the
// document that starts with blob: resolve through Blobs.
type Job struct {
	Doc    string
	Width  int
	Height int
	Blobs  blob.Getter
}

// Rasterizer draws a Job onto a Width x Height canvas.
type Rasterizer interface {
	Name() string
	Rasterize(ctx context.Context, job Job) (image.Image, error)
}

type result struct {
	img image.Image
	err error
}

// Run executes r with a bounded wait. Backends that ignore ctx are still
// abandoned once the deadline passes.
func Run(ctx context.Context, r Rasterizer, job Job, timeout time.Duration) (image.Image, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("%w: %s panic: %v", ErrRasterize, r.Name(), p)}
			}
		}()
		img, err := r.Rasterize(ctx, job)
		done <- result{img: img, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, res.err)
			}
			if errors.Is(res.err, ErrRasterize) || errors.Is(res.err, ErrTimeout) {
				return nil, res.err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrRasterize, r.Name(), res.err)
		}
		if res.img == nil {
			return nil, fmt.Errorf("%w: %s returned no image", ErrRasterize, r.Name())
		}
		return res.img, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}

func document(job Job) ([]byte, error) {
	if job.Blobs == nil {
		return nil, fmt.Errorf("%w: no blob store", ErrRasterize)
	}
	b, _, err := job.Blobs.Get(job.Doc)
	if err != nil {
		return nil, fmt.Errorf("%w: document %s: %v", ErrRasterize, job.Doc, err)
	}
	return b, nil
}
