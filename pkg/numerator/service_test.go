package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core/id"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences: every call bumps the counter by the
// increment argument (1 for strict, RangeSize for cached).
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	var increment int64 = 1
	if len(args) == 3 {
		if val, ok := args[2].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestNext_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	orgID := id.New()
	cfg := DefaultConfig("TEST")
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	num, err := svc.Next(ctx, orgID, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "TEST-2026-00001" {
		t.Errorf("expected TEST-2026-00001, got %s", num)
	}

	num, err = svc.Next(ctx, orgID, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "TEST-2026-00002" {
		t.Errorf("expected TEST-2026-00002, got %s", num)
	}
}

func TestNext_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	orgID := id.New()
	cfg := DefaultConfig("PR")
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	opts := &Options{
		Strategy:  StrategyCached,
		RangeSize: 10,
	}

	// First call allocates 1..10 and returns 1.
	num, err := svc.Next(ctx, orgID, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "PR-2026-00001" {
		t.Errorf("expected PR-2026-00001, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}

	// Second call comes from memory, DB unchanged.
	num, err = svc.Next(ctx, orgID, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "PR-2026-00002" {
		t.Errorf("expected PR-2026-00002, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to stay 10, got %d", q.currentValue)
	}

	// Exhaust the range, next call allocates 11..20.
	for i := 0; i < 8; i++ {
		_, _ = svc.Next(ctx, orgID, cfg, opts, period)
	}

	num, err = svc.Next(ctx, orgID, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "PR-2026-00011" {
		t.Errorf("expected PR-2026-00011, got %s", num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestNext_CachedIsolatedPerOrganization(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("PR")
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	orgA := id.New()
	orgB := id.New()

	// Each org gets its own cached range even through a shared service.
	numA, err := svc.Next(ctx, orgA, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	numB, err := svc.Next(ctx, orgB, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The shared mock counter means orgB's range starts at 11, which is
	// exactly what proves the caches are separate.
	if numA != "PR-2026-00001" {
		t.Errorf("expected PR-2026-00001, got %s", numA)
	}
	if numB != "PR-2026-00011" {
		t.Errorf("expected PR-2026-00011, got %s", numB)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"PR-2026-00042", 42},
		{"TPR-00007", 7},
		{"garbage", -1},
	}

	for _, tc := range cases {
		if got := ParseNumber(tc.in); got != tc.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
