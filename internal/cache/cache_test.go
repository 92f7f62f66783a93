package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/sentri-project/sentri/internal/model"
)

func TestGetOrStartMissThenHit(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	_, hit, handle, err := c.GetOrStart(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetOrStart: %v", err)
	}
	if hit {
		t.Fatal("expected miss on first call")
	}
	handle.Finish(model.Record{Domain: "example.com"})

	rec, hit, handle2, err := c.GetOrStart(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetOrStart: %v", err)
	}
	if !hit {
		t.Fatal("expected hit on second call")
	}
	if handle2 != nil {
		t.Fatal("expected nil handle on hit")
	}
	if rec.Domain != "example.com" {
		t.Fatalf("got %+v", rec)
	}
}

func TestGetOrStartCoalescesConcurrentCallers(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	_, hit, handle, err := c.GetOrStart(ctx, "example.com")
	if err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}

	const waiters = 10
	var wg sync.WaitGroup
	results := make([]model.Record, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, hit, h, err := c.GetOrStart(ctx, "example.com")
			if err != nil {
				t.Errorf("GetOrStart: %v", err)
				return
			}
			if !hit || h != nil {
				t.Errorf("waiter %d should have hit the in-flight marker", i)
				return
			}
			results[i] = rec
		}(i)
	}

	handle.Finish(model.Record{Domain: "example.com", ProcessingTimeMs: 42})
	wg.Wait()

	for i, r := range results {
		if r.Domain != "example.com" || r.ProcessingTimeMs != 42 {
			t.Errorf("waiter %d got %+v", i, r)
		}
	}
}

func TestAbortAllowsRetryFromScratch(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	_, hit, handle, err := c.GetOrStart(ctx, "example.com")
	if err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
	handle.Abort()

	_, hit, handle2, err := c.GetOrStart(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetOrStart after abort: %v", err)
	}
	if hit {
		t.Fatal("expected a fresh miss after abort")
	}
	handle2.Finish(model.Record{Domain: "example.com"})
}

type countingProber struct {
	calls int
}

func (p *countingProber) Probe(ctx context.Context, raw string) model.Record {
	p.calls++
	return model.Record{Domain: raw, ProcessingTimeMs: uint64(p.calls)}
}

func TestCachingProberShortCircuitsDuplicates(t *testing.T) {
	inner := &countingProber{}
	p := NewCachingProber(New(0), inner)
	ctx := context.Background()

	first := p.Probe(ctx, "example.com")
	second := p.Probe(ctx, "example.com")

	if inner.calls != 1 {
		t.Fatalf("expected inner Probe called once, got %d", inner.calls)
	}
	if first.ProcessingTimeMs != second.ProcessingTimeMs {
		t.Fatalf("expected the cached record to be reused: %+v vs %+v", first, second)
	}
}

func TestCachingProberNormalizesKeyAcrossCaseVariants(t *testing.T) {
	inner := &countingProber{}
	p := NewCachingProber(New(0), inner)
	ctx := context.Background()

	first := p.Probe(ctx, "Example.COM")
	second := p.Probe(ctx, "  example.com  ")

	if inner.calls != 1 {
		t.Fatalf("expected inner Probe called once across case/whitespace variants, got %d", inner.calls)
	}
	if first.ProcessingTimeMs != second.ProcessingTimeMs {
		t.Fatalf("expected the cached record to be reused: %+v vs %+v", first, second)
	}
}

func TestEvictionKeepsCacheBounded(t *testing.T) {
	c := New(4)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		_, hit, handle, err := c.GetOrStart(ctx, key)
		if err != nil {
			t.Fatalf("GetOrStart: %v", err)
		}
		if !hit {
			handle.Finish(model.Record{Domain: key})
		}
	}
	if c.Len() > 4+1 {
		t.Fatalf("cache grew past bound: %d entries", c.Len())
	}
}
