package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "go-image-optimizer/internal/errors"
	"go-image-optimizer/internal/observer"
	"go-image-optimizer/internal/transform"
)

// blockingProcessor tracks concurrency and blocks until released.
type blockingProcessor struct {
	mu         sync.Mutex
	running    int
	maxRunning int
	release    chan struct{}
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{release: make(chan struct{})}
}

func (b *blockingProcessor) Process(data []byte, opts transform.Options) (*transform.Result, error) {
	b.mu.Lock()
	b.running++
	if b.running > b.maxRunning {
		b.maxRunning = b.running
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.running--
	b.mu.Unlock()
	return &transform.Result{Data: data}, nil
}

// instantProcessor resolves immediately, optionally failing or panicking
// on marked inputs.
type instantProcessor struct {
	calls atomic.Int64
}

func (i *instantProcessor) Process(data []byte, opts transform.Options) (*transform.Result, error) {
	i.calls.Add(1)
	switch string(data) {
	case "fail":
		return nil, apperrors.NewProcessingError("bad input", nil)
	case "panic":
		panic("encoder blew up")
	}
	return &transform.Result{Data: data, OptimizedSize: len(data)}, nil
}

func TestNew_DefaultSize(t *testing.T) {
	p := New(&instantProcessor{}, 0, nil, nil)
	defer p.Close()
	if p.Size() < 1 {
		t.Errorf("Expected pool size >= 1, got %d", p.Size())
	}
}

func TestPool_SubmitResolves(t *testing.T) {
	p := New(&instantProcessor{}, 2, nil, nil)
	defer p.Close()

	future := p.Submit(NewTask([]byte("img"), transform.Options{}))
	result, err := future.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if string(result.Data) != "img" {
		t.Errorf("Expected task payload back, got %q", result.Data)
	}
}

func TestPool_Saturation(t *testing.T) {
	const size = 3
	const total = 10

	proc := newBlockingProcessor()
	p := New(proc, size, nil, nil)
	defer p.Close()

	futures := make([]*Future, total)
	for i := 0; i < total; i++ {
		futures[i] = p.Submit(NewTask([]byte("x"), transform.Options{}))
	}

	// Give workers time to pick up their first tasks.
	time.Sleep(50 * time.Millisecond)

	stats := p.Stats()
	if stats.Busy != size {
		t.Errorf("Expected exactly %d busy workers, got %d", size, stats.Busy)
	}
	if stats.Queued != total-size {
		t.Errorf("Expected %d queued tasks, got %d", total-size, stats.Queued)
	}

	close(proc.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			t.Fatalf("Task %d did not resolve: %v", i, err)
		}
	}

	if proc.maxRunning > size {
		t.Errorf("Concurrency exceeded pool size: %d > %d", proc.maxRunning, size)
	}
}

func TestPool_FailureRejectsOnlyThatFuture(t *testing.T) {
	p := New(&instantProcessor{}, 2, nil, nil)
	defer p.Close()

	good := p.Submit(NewTask([]byte("ok"), transform.Options{}))
	bad := p.Submit(NewTask([]byte("fail"), transform.Options{}))

	ctx := context.Background()
	if _, err := good.Wait(ctx); err != nil {
		t.Errorf("Expected sibling task to succeed, got %v", err)
	}
	if _, err := bad.Wait(ctx); err == nil {
		t.Error("Expected failing task to reject its future")
	}
}

func TestPool_CrashReplacesWorker(t *testing.T) {
	proc := &instantProcessor{}
	p := New(proc, 1, nil, nil)
	defer p.Close()
	ctx := context.Background()

	crashed := p.Submit(NewTask([]byte("panic"), transform.Options{}))
	if _, err := crashed.Wait(ctx); err == nil {
		t.Fatal("Expected crashed task's future to be rejected")
	} else if !apperrors.IsType(err, apperrors.ErrorTypeProcessing) {
		t.Errorf("Expected a processing error, got %v", err)
	}

	// The replacement worker must keep the pool serving.
	after := p.Submit(NewTask([]byte("ok"), transform.Options{}))
	if _, err := after.Wait(ctx); err != nil {
		t.Errorf("Expected pool to recover after a crash, got %v", err)
	}

	if p.Stats().Replaced != 1 {
		t.Errorf("Expected 1 replaced worker, got %d", p.Stats().Replaced)
	}
}

// collectingObserver records every event it is notified of.
type collectingObserver struct {
	mu     sync.Mutex
	events []observer.PipelineEvent
}

func (c *collectingObserver) OnEvent(ctx context.Context, event observer.PipelineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collectingObserver) GetObserverName() string { return "collecting_observer" }

func (c *collectingObserver) byType(eventType observer.EventType) []observer.PipelineEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []observer.PipelineEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

func TestPool_CrashPublishesWorkerReplaced(t *testing.T) {
	collected := &collectingObserver{}
	events := observer.NewEventPublisher()
	events.Subscribe(collected)

	p := New(&instantProcessor{}, 1, nil, events)
	defer p.Close()
	ctx := context.Background()

	crashed := p.Submit(NewTask([]byte("panic"), transform.Options{}))
	if _, err := crashed.Wait(ctx); err == nil {
		t.Fatal("Expected crashed task's future to be rejected")
	}

	// Run a follow-up task so the replacement has happened before we look.
	after := p.Submit(NewTask([]byte("ok"), transform.Options{}))
	if _, err := after.Wait(ctx); err != nil {
		t.Fatalf("Expected pool to recover after a crash, got %v", err)
	}

	replaced := collected.byType(observer.WorkerReplaced)
	if len(replaced) != 1 {
		t.Fatalf("Expected 1 worker_replaced event, got %d", len(replaced))
	}
	if replaced[0].ErrorMessage == "" {
		t.Error("Expected the event to carry the panic message")
	}
	if _, ok := replaced[0].Metadata["worker"]; !ok {
		t.Error("Expected the event metadata to name the worker")
	}
}

func TestPool_QueueIsFIFO(t *testing.T) {
	proc := newBlockingProcessor()
	p := New(proc, 1, nil, nil)
	defer p.Close()

	first := p.Submit(NewTask([]byte("a"), transform.Options{}))
	second := p.Submit(NewTask([]byte("b"), transform.Options{}))
	third := p.Submit(NewTask([]byte("c"), transform.Options{}))

	close(proc.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ra, _ := first.Wait(ctx)
	rb, _ := second.Wait(ctx)
	rc, _ := third.Wait(ctx)
	if ra == nil || rb == nil || rc == nil {
		t.Fatal("Expected all tasks to resolve")
	}
	if string(ra.Data) != "a" || string(rb.Data) != "b" || string(rc.Data) != "c" {
		t.Error("Expected futures to resolve with their own payloads")
	}
}

func TestPool_SubmitBatchChunks(t *testing.T) {
	const size = 2
	proc := newBlockingProcessor()
	p := New(proc, size, nil, nil)
	defer p.Close()
	close(proc.release) // run without blocking, still tracking concurrency

	tasks := make([]*Task, 7)
	for i := range tasks {
		tasks[i] = NewTask([]byte{byte(i)}, transform.Options{})
	}

	results := p.SubmitBatch(context.Background(), tasks)
	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("Item %d failed: %v", i, r.Err)
		}
	}
	if proc.maxRunning > size {
		t.Errorf("Batch exceeded one chunk in flight: %d > %d", proc.maxRunning, size)
	}
}

func TestPool_BatchItemFailureIsIsolated(t *testing.T) {
	p := New(&instantProcessor{}, 2, nil, nil)
	defer p.Close()

	tasks := []*Task{
		NewTask([]byte("ok"), transform.Options{}),
		NewTask([]byte("fail"), transform.Options{}),
		NewTask([]byte("ok"), transform.Options{}),
	}
	results := p.SubmitBatch(context.Background(), tasks)

	if results[0].Err != nil || results[2].Err != nil {
		t.Error("Expected sibling items to succeed")
	}
	if results[1].Err == nil {
		t.Error("Expected the failing item to carry its error")
	}
}

func TestPool_CloseRejectsQueued(t *testing.T) {
	proc := newBlockingProcessor()
	p := New(proc, 1, nil, nil)

	running := p.Submit(NewTask([]byte("x"), transform.Options{}))
	queued := p.Submit(NewTask([]byte("y"), transform.Options{}))

	time.Sleep(20 * time.Millisecond)
	p.Close()
	close(proc.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := queued.Wait(ctx); err == nil {
		t.Error("Expected queued task to be rejected on shutdown")
	}
	if _, err := running.Wait(ctx); err != nil {
		t.Errorf("Expected in-flight task to run to completion, got %v", err)
	}

	late := p.Submit(NewTask([]byte("z"), transform.Options{}))
	if _, err := late.Wait(ctx); err == nil {
		t.Error("Expected submit after Close to be rejected")
	}
}

func TestRoundRobin_RotatesCursor(t *testing.T) {
	rr := NewRoundRobin()
	idle := []bool{true, true, true}

	first := rr.Next(idle)
	idle[first] = true // keep everyone idle; the cursor should still advance
	second := rr.Next(idle)
	if first == second {
		t.Errorf("Expected the cursor to rotate, got %d twice", first)
	}
}

func TestRoundRobin_NoneIdle(t *testing.T) {
	rr := NewRoundRobin()
	if idx := rr.Next([]bool{false, false}); idx != -1 {
		t.Errorf("Expected -1 when no worker is idle, got %d", idx)
	}
}

func TestRoundRobin_SkipsBusy(t *testing.T) {
	rr := NewRoundRobin()
	idle := []bool{false, false, true}
	if idx := rr.Next(idle); idx != 2 {
		t.Errorf("Expected the only idle worker (2), got %d", idx)
	}
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	proc := newBlockingProcessor()
	p := New(proc, 1, nil, nil)
	defer p.Close()
	defer close(proc.release)

	future := p.Submit(NewTask([]byte("x"), transform.Options{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := future.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}
