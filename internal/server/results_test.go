package server

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/banner"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
)

func TestResultsCap(t *testing.T) {
	r := NewResults(time.Hour, 2)
	a := r.Put(event.Record{Logon: "a"}, &banner.Result{})
	b := r.Put(event.Record{Logon: "b"}, &banner.Result{})
	c := r.Put(event.Record{Logon: "c"}, &banner.Result{})

	if _, ok := r.Get(a.ID); ok {
		t.Fatal("oldest entry should be evicted")
	}
	for _, item := range []*Rendered{b, c} {
		if got, ok := r.Get(item.ID); !ok || got.Record.Logon != item.Record.Logon {
			t.Fatalf("Get(%s) = %v, %v", item.Record.Logon, got, ok)
		}
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestResultsExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewResults(time.Minute, 10)
	r.now = func() time.Time { return now }

	old := r.Put(event.Record{}, &banner.Result{})
	now = now.Add(30 * time.Second)
	fresh := r.Put(event.Record{}, &banner.Result{})
	now = now.Add(45 * time.Second)

	if _, ok := r.Get(old.ID); ok {
		t.Fatal("expired entry returned")
	}
	if _, ok := r.Get(fresh.ID); !ok {
		t.Fatal("fresh entry missing")
	}
	if n := r.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestJanitorStops(t *testing.T) {
	r := NewResults(time.Nanosecond, 10)
	r.Put(event.Record{}, &banner.Result{})

	ctx, cancel := context.WithCancel(context.Background())
	r.StartJanitor(ctx, time.Millisecond, zap.NewNop())
	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if r.Len() != 0 {
		t.Fatalf("janitor left %d entries", r.Len())
	}
}
