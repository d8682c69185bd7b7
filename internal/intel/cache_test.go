package intel

import (
	"testing"
	"time"
)

func testVerdict(addr string, tier Tier) *Verdict {
	return &Verdict{Address: addr, Tier: tier, Confidence: 0.8, Sources: []string{"test"}}
}

func TestCacheHit(t *testing.T) {
	c := NewCache(time.Hour, 10)
	c.Put("0xabc", testVerdict("0xabc", TierHigh))

	got := c.Get("0xabc")
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if got.Tier != TierHigh {
		t.Errorf("tier = %s, want high", got.Tier)
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(time.Hour, 10)
	if got := c.Get("0xmissing"); got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Hour, 10)
	c.now = func() time.Time { return now }

	c.Put("0xabc", testVerdict("0xabc", TierLow))

	now = now.Add(59 * time.Minute)
	if c.Get("0xabc") == nil {
		t.Fatal("entry expired before TTL")
	}

	now = now.Add(2 * time.Minute)
	if got := c.Get("0xabc"); got != nil {
		t.Errorf("expected expiry after TTL, got %+v", got)
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, len = %d", c.Len())
	}
}

func TestCacheEvictsOldestWritten(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Hour, 2)
	c.now = func() time.Time { return now }

	c.Put("0xfirst", testVerdict("0xfirst", TierLow))
	now = now.Add(time.Minute)
	c.Put("0xsecond", testVerdict("0xsecond", TierLow))
	now = now.Add(time.Minute)
	c.Put("0xthird", testVerdict("0xthird", TierLow))

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if c.Get("0xfirst") != nil {
		t.Error("oldest-written entry should have been evicted")
	}
	if c.Get("0xsecond") == nil || c.Get("0xthird") == nil {
		t.Error("newer entries should survive eviction")
	}
}

func TestCachePutRefreshesExisting(t *testing.T) {
	c := NewCache(time.Hour, 1)
	c.Put("0xabc", testVerdict("0xabc", TierLow))
	// Updating an existing key at capacity must not evict it.
	c.Put("0xabc", testVerdict("0xabc", TierHigh))

	got := c.Get("0xabc")
	if got == nil || got.Tier != TierHigh {
		t.Errorf("got %+v, want refreshed high-tier verdict", got)
	}
}
