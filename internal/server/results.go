package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/banner"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
)

// Rendered is a banner kept for download.
type Rendered struct {
	ID        string
	Record    event.Record
	Result    *banner.Result
	CreatedAt time.Time
}

// Results keeps rendered banners for a limited time. When full, the
// oldest entry makes room for the new one.
type Results struct {
	mu    sync.RWMutex
	items map[string]*Rendered
	order []string
	ttl   time.Duration
	max   int
	now   func() time.Time
}

func NewResults(ttl time.Duration, max int) *Results {
	return &Results{
		items: make(map[string]*Rendered),
		ttl:   ttl,
		max:   max,
		now:   time.Now,
	}
}

func (r *Results) Put(rec event.Record, res *banner.Result) *Rendered {
	item := &Rendered{
		ID:        uuid.NewString(),
		Record:    rec,
		Result:    res,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.max > 0 && len(r.order) >= r.max {
		delete(r.items, r.order[0])
		r.order = r.order[1:]
	}
	r.items[item.ID] = item
	r.order = append(r.order, item.ID)
	return item
}

func (r *Results) Get(id string) (*Rendered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok || r.expired(item, r.now()) {
		return nil, false
	}
	return item, true
}

func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Sweep drops expired entries and returns how many were dropped.
func (r *Results) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	n := 0
	for _, id := range r.order {
		if r.expired(r.items[id], now) {
			delete(r.items, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return n
}

func (r *Results) expired(item *Rendered, now time.Time) bool {
	return r.ttl > 0 && now.Sub(item.CreatedAt) >= r.ttl
}

// StartJanitor sweeps the store every interval until ctx is done.
func (r *Results) StartJanitor(ctx context.Context, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					log.Debug("expired banners dropped", zap.Int("count", n), zap.Int("kept", r.Len()))
				}
			case <-ctx.Done():
				log.Info("results janitor stopped", zap.Error(ctx.Err()))
				return
			}
		}
	}()
}
