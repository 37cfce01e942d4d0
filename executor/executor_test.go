package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lanctl/upnpcp/logging"
)

func testLogger() logging.Logger {
	return logging.New(logging.Config{OutputPaths: []string{"/dev/null"}})
}

func TestSubmitIORunsAndBounds(t *testing.T) {
	e := New(testLogger(), 2)
	defer e.Terminate()

	var running int32
	var maxRunning int32
	var wg sync.WaitGroup
	release := make(chan struct{})

	for i := 0; i < 2; i++ {
		wg.Add(1)
		ok := e.SubmitIO(func() {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxRunning)
				if n <= old || atomic.CompareAndSwapInt32(&maxRunning, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		})
		if !ok {
			t.Fatalf("expected SubmitIO to accept task %d", i)
		}
	}

	if ok := e.SubmitIO(func() {}); ok {
		t.Fatalf("expected saturated pool to reject a third task")
	}

	// Both tasks must be running before they are released, or a slow
	// scheduler can run them one after the other.
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&running) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected both io tasks to run concurrently, %d running", atomic.LoadInt32(&running))
		}
		time.Sleep(time.Millisecond)
	}

	close(release)
	wg.Wait()

	if maxRunning != 2 {
		t.Fatalf("expected exactly 2 concurrent io tasks, saw %d", maxRunning)
	}
}

func TestSubmitCallbackPreservesOrder(t *testing.T) {
	e := New(testLogger(), 1)
	defer e.Terminate()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		if !e.SubmitCallback(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}) {
			t.Fatalf("expected callback %d to be accepted", i)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("callback order violated: %v", order)
		}
	}
}

func TestSubmitServerStopsOnTerminate(t *testing.T) {
	e := New(testLogger(), 1)

	started := make(chan struct{})
	stopped := make(chan struct{})
	e.SubmitServer(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("server task never started")
	}

	e.Terminate()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("server task never observed cancellation")
	}
}

func TestTerminateRejectsFurtherSubmissions(t *testing.T) {
	e := New(testLogger(), 1)
	e.Terminate()

	if e.SubmitIO(func() {}) {
		t.Fatal("expected SubmitIO to reject after Terminate")
	}
	if e.SubmitCallback(func() {}) {
		t.Fatal("expected SubmitCallback to reject after Terminate")
	}
}
