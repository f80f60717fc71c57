package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

func newClockedQuota(t *testing.T, requests, maxKeys int) (*MemoryQuota, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	q, err := NewMemoryQuota(domain.QuotaPolicy{Requests: requests, Window: time.Minute}, MemoryOptions{
		Now:     func() time.Time { return now },
		MaxKeys: maxKeys,
	})
	if err != nil {
		t.Fatalf("new quota: %v", err)
	}
	return q, &now
}

func TestMemoryQuota_BurstThenDeny(t *testing.T) {
	q, now := newClockedQuota(t, 3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		adm, err := q.Admit(ctx, "client-a")
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if !adm.Allowed || adm.Remaining != 2-i || adm.RetryAfter != 0 {
			t.Fatalf("request %d: unexpected admission %+v", i, adm)
		}
	}
	adm, err := q.Admit(ctx, "client-a")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if adm.Allowed || adm.Remaining != 0 {
		t.Fatalf("expected deny after burst, got %+v", adm)
	}
	if adm.RetryAfter <= 0 || adm.RetryAfter > 20*time.Second {
		t.Fatalf("expected retry within one refill interval, got %v", adm.RetryAfter)
	}
	if !adm.ResetAt.After(*now) {
		t.Fatalf("expected reset in the future, got %v", adm.ResetAt)
	}

	other, err := q.Admit(ctx, "client-b")
	if err != nil || !other.Allowed {
		t.Fatalf("clients must not share a bucket: %+v %v", other, err)
	}

	*now = now.Add(time.Minute)
	adm, err = q.Admit(ctx, "client-a")
	if err != nil || !adm.Allowed {
		t.Fatalf("expected refill after window: %+v %v", adm, err)
	}
}

func TestMemoryQuota_RejectsDisabledPolicy(t *testing.T) {
	if _, err := NewMemoryQuota(domain.QuotaPolicy{}, MemoryOptions{}); err == nil {
		t.Fatal("expected error for empty policy")
	}
}

func TestMemoryQuota_Capacity(t *testing.T) {
	q, now := newClockedQuota(t, 1, 1)
	ctx := context.Background()

	if _, err := q.Admit(ctx, "a"); err != nil {
		t.Fatalf("first key: %v", err)
	}
	if _, err := q.Admit(ctx, "b"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity error while first client is active, got %v", err)
	}
	*now = now.Add(2 * time.Minute)
	if _, err := q.Admit(ctx, "b"); err != nil {
		t.Fatalf("expected idle client to be evicted: %v", err)
	}
}
