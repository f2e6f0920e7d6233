package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLatestTriggerWins(t *testing.T) {
	d := New(30 * time.Millisecond)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []error
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Wait(ctx, "user-1")
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	var winners, superseded int
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrSuperseded):
			superseded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if superseded != 2 {
		t.Fatalf("superseded = %d, want 2", superseded)
	}
}

func TestKeysDoNotInterfere(t *testing.T) {
	d := New(20 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, key := range []string{"user-1", "user-2"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			errs[i] = d.Wait(ctx, key)
		}(i, key)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("key %d: %v, want nil", i, err)
		}
	}
}

func TestZeroQuietPeriodPassesThrough(t *testing.T) {
	d := New(0)
	start := time.Now()
	if err := d.Wait(context.Background(), "user-1"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Fatal("zero quiet period should not block")
	}
}

func TestWaitHonorsContextCancel(t *testing.T) {
	d := New(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := d.Wait(ctx, "user-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
