package assets

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMajor lists the airports that have their own template. Every
// other unit falls back to its country template.
var DefaultMajor = []string{"EFHK", "ESSA", "EKCH", "ENGM", "BIKF"}

const (
	templateDir   = "svgs"
	backgroundDir = "backgrounds"
	templateExt   = "svg"
)

// Resolver picks the template for a unit and reads it, together with the
// background images it references, from a Store.
type Resolver struct {
	store Store
	major map[string]struct{}
}

func NewResolver(store Store, major []string) *Resolver {
	if major == nil {
		major = DefaultMajor
	}
	m := make(map[string]struct{}, len(major))
	for _, id := range major {
		m[strings.TrimSpace(id)] = struct{}{}
	}
	return &Resolver{store: store, major: m}
}

// Key returns icao when it is a major identifier and country otherwise.
// Identifiers match the allow-list exactly, so "efhk" is not "EFHK".
func (r *Resolver) Key(icao, country string) string {
	icao = strings.TrimSpace(icao)
	if _, ok := r.major[icao]; ok {
		return icao
	}
	return strings.TrimSpace(country)
}

// Template resolves the key for icao/country and returns it with the raw
// template markup.
func (r *Resolver) Template(ctx context.Context, icao, country string) (string, []byte, error) {
	key := r.Key(icao, country)
	if key == "" {
		return "", nil, fmt.Errorf("%w: no template key for icao %q country %q", ErrNotFound, icao, country)
	}
	b, err := r.store.Open(ctx, TemplatePath(key))
	if err != nil {
		return key, nil, fmt.Errorf("unable fetch template %s: %w", key, err)
	}
	return key, b, nil
}

// Background reads an image referenced by a template.
func (r *Resolver) Background(ctx context.Context, href string) ([]byte, error) {
	b, err := r.store.Open(ctx, backgroundDir+"/"+strings.TrimPrefix(href, "/"))
	if err != nil {
		return nil, fmt.Errorf("unable fetch background %s: %w", href, err)
	}
	return b, nil
}

func TemplatePath(key string) string {
	return fmt.Sprintf("%s/%s.%s", templateDir, key, templateExt)
}
