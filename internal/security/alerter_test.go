package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter := NewAuditAlerter(client, "test:alerts")
	if alerter == nil {
		t.Fatalf("expected alerter")
	}
	return alerter
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newAlerter(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		result, err := alerter.Observe(ctx, "signin", OutcomeFailure, "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered != (i == 10) {
			t.Fatalf("attempt %d: triggered = %v", i, result.Triggered)
		}
	}
}

func TestAuditAlerterCountsPerIP(t *testing.T) {
	alerter := newAlerter(t)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		if _, err := alerter.Observe(ctx, "signin", OutcomeFailure, "10.0.0.1"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	result, err := alerter.Observe(ctx, "signin", OutcomeFailure, "10.0.0.2")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 || result.Triggered {
		t.Fatalf("unexpected result for fresh ip: %+v", result)
	}
}

func TestAuditAlerterWindowRollsOver(t *testing.T) {
	alerter := newAlerter(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return now }
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if _, err := alerter.Observe(ctx, "upload", OutcomeRateLimited, "1.2.3.4"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	now = now.Add(time.Minute)
	result, err := alerter.Observe(ctx, "upload", OutcomeRateLimited, "1.2.3.4")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected new window, got count %d", result.Count)
	}
}

func TestAuditAlerterIgnoresUnknownRule(t *testing.T) {
	alerter := newAlerter(t)
	ctx := context.Background()
	for _, tc := range []struct{ event, outcome string }{
		{"signin", "success"},
		{"custom", OutcomeFailure},
	} {
		result, err := alerter.Observe(ctx, tc.event, tc.outcome, "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered || result.Count != 0 {
			t.Fatalf("unexpected result for %s/%s: %+v", tc.event, tc.outcome, result)
		}
	}
}

func TestNilAlerterObservesNothing(t *testing.T) {
	var alerter *AuditAlerter
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without client")
	}
	result, err := alerter.Observe(context.Background(), "signin", OutcomeFailure, "127.0.0.1")
	if err != nil || result.Triggered {
		t.Fatalf("nil alerter: %+v %v", result, err)
	}
}
