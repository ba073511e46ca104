package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func TestManualRunsInTimeOrder(t *testing.T) {
	m := NewManual(epoch)
	var got []string
	m.Schedule(2*time.Second, func() { got = append(got, "b") })
	m.Schedule(time.Second, func() { got = append(got, "a") })
	m.Post(func() { got = append(got, "now") })

	if n := m.RunReady(); n != 1 {
		t.Fatalf("expected 1 ready task, ran %d", n)
	}
	m.Advance(5 * time.Second)

	want := []string{"now", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !m.Now().Equal(epoch.Add(5 * time.Second)) {
		t.Fatalf("clock not advanced: %v", m.Now())
	}
}

func TestManualCancel(t *testing.T) {
	m := NewManual(epoch)
	ran := false
	tok := m.Schedule(time.Second, func() { ran = true })
	if m.PendingTimers() != 1 {
		t.Fatalf("expected one pending timer")
	}
	if !m.Cancel(tok) {
		t.Fatal("expected cancel to find the timer")
	}
	if m.Cancel(tok) {
		t.Fatal("second cancel should report nothing pending")
	}
	m.Advance(time.Minute)
	if ran {
		t.Fatal("cancelled timer ran")
	}
}

func TestManualAwaitQueuesCompletion(t *testing.T) {
	m := NewManual(epoch)
	var order []string
	m.Await(func() { order = append(order, "work") }, func() { order = append(order, "done") })
	if len(order) != 1 {
		t.Fatalf("completion must wait for RunReady, got %v", order)
	}
	m.RunReady()
	if len(order) != 2 || order[1] != "done" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestDispatcherSerializesTasks(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	var (
		mu      sync.Mutex
		running int
		overlap bool
		count   int
	)
	task := func() {
		mu.Lock()
		running++
		if running > 1 {
			overlap = true
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		running--
		count++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Post(task)
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	d.Await(func() {}, func() { close(done) })
	<-done

	cancel()
	<-runErr

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Fatal("tasks overlapped")
	}
	if count != 20 {
		t.Fatalf("expected 20 tasks, ran %d", count)
	}
}

func TestDispatcherCancelledTimerDoesNotRun(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	fired := make(chan struct{}, 1)
	tok := d.Schedule(20*time.Millisecond, func() { fired <- struct{}{} })
	if !d.Cancel(tok) {
		t.Fatal("expected pending timer")
	}

	later := make(chan struct{})
	d.Schedule(40*time.Millisecond, func() { close(later) })
	<-later

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	default:
	}

	cancel()
	<-runErr
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	d.Post(func() { panic("boom") })
	done := make(chan struct{})
	d.Post(func() { close(done) })
	<-done

	cancel()
	<-runErr
}
