// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_SingleExecutionPerBurst(t *testing.T) {
	c := New[string](0)

	const callers = 20
	var executions atomic.Int32
	release := make(chan struct{})

	producer := func(ctx context.Context) (string, error) {
		executions.Add(1)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = c.Do(context.Background(), "k", producer)
		}(i)
	}

	// Let every caller reach the wait before releasing the producer.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := executions.Load(); got != 1 {
		t.Errorf("producer executed %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error: %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Errorf("caller %d result = %q, want %q", i, results[i], "result")
		}
	}
}

func TestDo_SharedError(t *testing.T) {
	c := New[int](0)

	boom := errors.New("boom")
	release := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
				<-release
				return 0, boom
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("caller %d error = %v, want shared boom", i, err)
		}
	}
}

func TestDo_MemoWindow(t *testing.T) {
	c := New[int](time.Minute)
	base := time.Now()
	now := base
	c.now = func() time.Time { return now }

	var executions int
	producer := func(ctx context.Context) (int, error) {
		executions++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Do(context.Background(), "k", producer)
		if err != nil {
			t.Fatal(err)
		}
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	}
	if executions != 1 {
		t.Errorf("executions = %d, want 1 (memo should serve repeats)", executions)
	}

	// Past the memo window the producer runs again.
	now = base.Add(2 * time.Minute)
	if _, err := c.Do(context.Background(), "k", producer); err != nil {
		t.Fatal(err)
	}
	if executions != 2 {
		t.Errorf("executions = %d, want 2 after memo expiry", executions)
	}
}

func TestDo_ErrorsNotMemoized(t *testing.T) {
	c := New[int](time.Minute)

	var executions int
	producer := func(ctx context.Context) (int, error) {
		executions++
		if executions == 1 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}

	if _, err := c.Do(context.Background(), "k", producer); err == nil {
		t.Fatal("expected first call to fail")
	}
	v, err := c.Do(context.Background(), "k", producer)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if v != 7 {
		t.Errorf("got %d, want 7", v)
	}
	if executions != 2 {
		t.Errorf("executions = %d, want 2 (errors must not be memoized)", executions)
	}
}

func TestDo_CancelOneCallerKeepsOthersWaiting(t *testing.T) {
	c := New[string](0)

	release := make(chan struct{})
	producerCancelled := make(chan struct{}, 1)

	producer := func(ctx context.Context) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			producerCancelled <- struct{}{}
			return "", ctx.Err()
		}
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx1, "k", producer)
		errCh <- err
	}()

	resCh := make(chan string, 1)
	go func() {
		v, _ := c.Do(context.Background(), "k", producer)
		resCh <- v
	}()

	time.Sleep(50 * time.Millisecond)
	cancel1()

	// The cancelled caller returns its own ctx error promptly.
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	// The surviving caller still gets the real result.
	close(release)
	select {
	case v := <-resCh:
		if v != "done" {
			t.Errorf("surviving caller got %q, want %q", v, "done")
		}
	case <-time.After(time.Second):
		t.Fatal("surviving caller did not receive result")
	}

	select {
	case <-producerCancelled:
		t.Error("producer was cancelled while a caller was still waiting")
	default:
	}
}

func TestDo_AllCallersCancelledStopsProducer(t *testing.T) {
	c := New[string](0)

	producerCancelled := make(chan struct{})
	producer := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(producerCancelled)
		return "", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = c.Do(ctx, "k", producer)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	select {
	case <-producerCancelled:
	case <-time.After(time.Second):
		t.Fatal("producer context was not cancelled after the last caller left")
	}
}

func TestDo_FreshCallerAfterCancellationRunsFresh(t *testing.T) {
	c := New[string](0)

	windingDown := make(chan struct{})
	first := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(windingDown)
		// Linger so the execution is still inside singleflight when the
		// fresh caller arrives.
		time.Sleep(200 * time.Millisecond)
		return "", ctx.Err()
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = c.Do(ctx1, "k", first)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel1()
	<-done
	<-windingDown

	// A fresh caller with a live context must get its own execution, not the
	// doomed one's cancellation.
	var secondRan atomic.Bool
	v, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
		secondRan.Store(true)
		return "fresh", nil
	})
	if err != nil {
		t.Fatalf("fresh caller error = %v, want nil", err)
	}
	if v != "fresh" {
		t.Errorf("fresh caller got %q, want %q", v, "fresh")
	}
	if !secondRan.Load() {
		t.Error("fresh caller's producer did not run")
	}
}

func TestClearCache(t *testing.T) {
	c := New[int](time.Hour)

	var executions int
	producer := func(ctx context.Context) (int, error) {
		executions++
		return executions, nil
	}

	if _, err := c.Do(context.Background(), "k", producer); err != nil {
		t.Fatal(err)
	}
	c.ClearCache("k")

	v, err := c.Do(context.Background(), "k", producer)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("got %d, want 2 (ClearCache should force re-execution)", v)
	}
}

func TestClear_AllKeys(t *testing.T) {
	c := New[int](time.Hour)

	var executions int
	producer := func(ctx context.Context) (int, error) {
		executions++
		return executions, nil
	}

	for _, key := range []string{"a", "b"} {
		if _, err := c.Do(context.Background(), key, producer); err != nil {
			t.Fatal(err)
		}
	}
	c.Clear()

	for _, key := range []string{"a", "b"} {
		if _, err := c.Do(context.Background(), key, producer); err != nil {
			t.Fatal(err)
		}
	}
	if executions != 4 {
		t.Errorf("executions = %d, want 4 after Clear", executions)
	}
}

func TestStats(t *testing.T) {
	c := New[int](time.Hour)

	producer := func(ctx context.Context) (int, error) { return 1, nil }

	if _, err := c.Do(context.Background(), "k", producer); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(context.Background(), "k", producer); err != nil {
		t.Fatal(err)
	}

	stats := c.Stats()
	if stats.Executions != 1 {
		t.Errorf("Executions = %d, want 1", stats.Executions)
	}
	if stats.MemoHits != 1 {
		t.Errorf("MemoHits = %d, want 1", stats.MemoHits)
	}
}

func TestDo_DistinctKeysExecuteIndependently(t *testing.T) {
	c := New[string](0)

	var executions atomic.Int32
	release := make(chan struct{})
	producer := func(ctx context.Context) (string, error) {
		executions.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			_, _ = c.Do(context.Background(), k, producer)
		}(key)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := executions.Load(); got != 3 {
		t.Errorf("executions = %d, want 3 (one per key)", got)
	}
}
