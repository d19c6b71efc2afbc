package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 qps = one token every 100ms, burst 1.
	l := New(10, 1)
	ctx := context.Background()

	start := time.Now()
	if err := l.Wait(ctx, "https://smithcpa.com/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	// The burst token is gone, so the second wait paces out ~100ms.
	start = time.Now()
	if err := l.Wait(ctx, "https://smithcpa.com/about"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	// 1 qps so a shared bucket would block for a full second.
	l := New(1, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "https://smithcpa.com/1"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "https://jonesaccounting.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("second host blocked unexpectedly")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(0, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx, "https://smithcpa.com/"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("unlimited limiter introduced delay")
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(1, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "https://smithcpa.com/"); err != nil {
		t.Fatal(err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Wait(canceled, "https://smithcpa.com/"); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
