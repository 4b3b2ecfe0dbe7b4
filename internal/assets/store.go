package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a template or background asset cannot be read.
var ErrNotFound = errors.New("asset not found")

// Store is read-only static storage addressed by slash-separated paths
// such as "svgs/EFHK.svg" or "backgrounds/helsinki.jpg".
type Store interface {
	Open(ctx context.Context, name string) ([]byte, error)
}

// FSStore serves assets from a file system (embedded or on disk).
type FSStore struct {
	FS fs.FS
}

func NewFSStore(fsys fs.FS) *FSStore {
	return &FSStore{FS: fsys}
}

func (s *FSStore) Open(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	b, err := fs.ReadFile(s.FS, clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, clean, err)
	}
	return b, nil
}

// HTTPStore fetches assets relative to a base URL, e.g. a static site
// serving svgs/ and backgrounds/.
type HTTPStore struct {
	BaseURL    string
	UserAgent  string
	Client     *http.Client
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration

	// MaxBodyBytes caps a single response body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes bounds an asset fetched over HTTP.
const DefaultMaxBodyBytes = 16 << 20

func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Client:       NewHTTPClient(timeout),
		MaxRetries:   1,
		Backoff:      200 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

func (s *HTTPStore) Open(ctx context.Context, name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	u := s.BaseURL + "/" + escapePath(clean)

	var body []byte
	err = retry(ctx, s.MaxRetries, s.Backoff, s.MaxBackoff, func() error {
		b, err := s.get(ctx, u)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, clean, err)
	}
	return body, nil
}

func (s *HTTPStore) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status: %s", resp.Status)
	}
	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("body larger than %d bytes", limit)
	}
	return b, nil
}

// retry runs fn up to attempts times with doubling backoff capped at max.
func retry(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	d := initial
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
			if d < max {
				d *= 2
				if d > max {
					d = max
				}
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func cleanName(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || !fs.ValidPath(clean) {
		return "", fmt.Errorf("%w: invalid path %q", ErrNotFound, name)
	}
	return clean, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
