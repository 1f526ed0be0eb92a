package fetch

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiter_New(t *testing.T) {
	l := NewHostLimiter(10, 5)
	if l.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", l.defaultBurst)
	}

	l2 := NewHostLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestHostLimiter_Wait(t *testing.T) {
	l := NewHostLimiter(100, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "http://example.com/source"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := l.Wait(ctx, "http://other.example/source"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestHostLimiter_PerHostIsolation(t *testing.T) {
	l := NewHostLimiter(1, 1)

	if !l.Allow("http://slow.example/a") {
		t.Error("first request should pass")
	}
	if l.Allow("http://slow.example/b") {
		t.Error("second request to the same host should be throttled")
	}
	// A different host has its own bucket.
	if !l.Allow("http://fast.example/a") {
		t.Error("other host should be unaffected")
	}
}

func TestHostLimiter_SetHostRate(t *testing.T) {
	l := NewHostLimiter(10, 10)
	l.SetHostRate("slow.example", 0.1, 1)

	if !l.Allow("http://slow.example/a") {
		t.Error("first request should pass")
	}
	if l.Allow("http://slow.example/b") {
		t.Error("second request should be throttled by the host override")
	}
	if !l.Allow("http://fast.example/a") {
		t.Error("default-rate host should pass")
	}
}

func TestHostLimiter_WaitWithDelay(t *testing.T) {
	l := NewHostLimiter(100, 1)

	start := time.Now()
	if err := l.WaitWithDelay(context.Background(), "http://example.com", 50*time.Millisecond); err != nil {
		t.Fatalf("WaitWithDelay failed: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("crawl delay not honored")
	}
}

func TestHostOf(t *testing.T) {
	host, err := hostOf("http://example.com/source")
	if err != nil {
		t.Fatalf("hostOf failed: %v", err)
	}
	if host != "example.com" {
		t.Errorf("expected example.com, got %s", host)
	}

	if _, err := hostOf("::invalid"); err == nil {
		t.Error("expected error for an unparseable locator")
	}
}
