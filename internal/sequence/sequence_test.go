package sequence

import (
	"context"
	"errors"
	"os"
	"testing"

	redis "github.com/redis/go-redis/v9"

	"caissepro/backend/internal/store"
)

func TestFormatAppendsLuhnDigit(t *testing.T) {
	cases := []struct {
		prefix string
		n      int64
		want   string
	}{
		{ScopeSale, 42, "VENT-000042-2"},
		{ScopeInvoice, 1, "FACT-000001-8"},
		{ScopePayment, 1234567, "PAY-1234567-4"},
	}
	for _, tc := range cases {
		got := Format(tc.prefix, tc.n)
		if got != tc.want {
			t.Fatalf("Format(%s, %d) = %s, want %s", tc.prefix, tc.n, got, tc.want)
		}
		if !Valid(tc.prefix, got) {
			t.Fatalf("expected %s to validate", got)
		}
	}
}

func TestValidRejectsTamperedCodes(t *testing.T) {
	for _, code := range []string{"VENT-000042-3", "VENT-00004-2", "PAY-000042-2", "VENT-0000x2-2", "VENT-000042"} {
		if Valid(ScopeSale, code) {
			t.Fatalf("expected %s to be rejected", code)
		}
	}
}

func countingCounter() (CounterFunc, *int64) {
	var n int64
	return func(context.Context, string) (int64, error) {
		n++
		return n, nil
	}, &n
}

func TestGeneratorSkipsTakenCodes(t *testing.T) {
	counter, _ := countingCounter()
	gen := NewGenerator(counter)
	taken := map[string]bool{Format(ScopeSale, 1): true, Format(ScopeSale, 2): true}

	code, err := gen.Next(context.Background(), ScopeSale, func(_ context.Context, code string) (bool, error) {
		return taken[code], nil
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if code != Format(ScopeSale, 3) {
		t.Fatalf("expected third code, got %s", code)
	}
}

func TestGeneratorGivesUpAfterMaxAttempts(t *testing.T) {
	counter, calls := countingCounter()
	gen := NewGenerator(counter)

	_, err := gen.Next(context.Background(), ScopeInvoice, func(context.Context, string) (bool, error) {
		return true, nil
	})
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected exhausted conflict, got %v", err)
	}
	if *calls != MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxAttempts, *calls)
	}
}

func TestNotFoundMeansFree(t *testing.T) {
	exists := NotFoundMeansFree(func(_ context.Context, code string) (string, error) {
		if code == "known" {
			return code, nil
		}
		return "", store.ErrNotFound
	})
	ctx := context.Background()
	if taken, err := exists(ctx, "known"); err != nil || !taken {
		t.Fatalf("expected known code to be taken, got %v %v", taken, err)
	}
	if taken, err := exists(ctx, "other"); err != nil || taken {
		t.Fatalf("expected other code to be free, got %v %v", taken, err)
	}
}

func TestRedisCounterIntegration(t *testing.T) {
	addr := os.Getenv("CAISSEPRO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CAISSEPRO_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	scope := "TEST"
	if err := client.Del(ctx, "caissepro:seq:"+scope).Err(); err != nil {
		t.Fatalf("reset counter: %v", err)
	}
	counter := NewRedisCounter(client)
	first, err := counter.Next(ctx, scope)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := counter.Next(ctx, scope)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected 1 then 2, got %d then %d", first, second)
	}
}

func TestRedisCounterRaiseNeverLowers(t *testing.T) {
	addr := os.Getenv("CAISSEPRO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CAISSEPRO_TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	scope := "TESTRAISE"
	if err := client.Del(ctx, redisKey(scope)).Err(); err != nil {
		t.Fatalf("reset counter: %v", err)
	}
	counter := NewRedisCounter(client)

	if got, err := counter.Raise(ctx, scope, 5); err != nil || got != 5 {
		t.Fatalf("raise to 5: got %d, %v", got, err)
	}
	if got, err := counter.Raise(ctx, scope, 2); err != nil || got != 5 {
		t.Fatalf("raise to 2 must keep 5: got %d, %v", got, err)
	}
	if next, err := counter.Next(ctx, scope); err != nil || next != 6 {
		t.Fatalf("expected 6 after raise, got %d, %v", next, err)
	}
}
