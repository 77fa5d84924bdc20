// Package pool runs CPU-bound transformations on a fixed set of workers,
// keeping encoding work off the request path. The pool size is set once
// at startup and never grows; at most that many transformations execute
// concurrently regardless of request volume.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "go-image-optimizer/internal/errors"
	"go-image-optimizer/internal/logger"
	"go-image-optimizer/internal/observer"
	"go-image-optimizer/internal/transform"
)

// Processor executes one transformation. transform.Pipeline satisfies it;
// tests substitute fakes.
type Processor interface {
	Process(data []byte, opts transform.Options) (*transform.Result, error)
}

// Task is one unit of transformation work. The pool owns it exclusively
// from submission until its future resolves.
type Task struct {
	ID       string
	Data     []byte
	Options  transform.Options
	Enqueued time.Time
}

// NewTask wraps input bytes and options with a fresh task identity.
func NewTask(data []byte, opts transform.Options) *Task {
	return &Task{
		ID:       uuid.New().String(),
		Data:     data,
		Options:  opts,
		Enqueued: time.Now(),
	}
}

type outcome struct {
	result *transform.Result
	err    error
}

// Future resolves to a task's result. A task runs to completion once
// dispatched; cancelling the wait abandons the result but not the work.
type Future struct {
	ch chan outcome
}

// Wait blocks until the task resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (*transform.Result, error) {
	select {
	case out := <-f.ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newFuture() *Future {
	return &Future{ch: make(chan outcome, 1)}
}

func (f *Future) resolve(result *transform.Result) {
	f.ch <- outcome{result: result}
}

func (f *Future) reject(err error) {
	f.ch <- outcome{err: err}
}

type dispatched struct {
	task   *Task
	future *Future
}

type worker struct {
	index  int
	taskCh chan *dispatched
}

// Pool is a fixed-size worker pool with a FIFO overflow queue.
//
// Idle/busy bookkeeping and the queue are guarded by one mutex and only
// mutated through Submit and the completion callbacks, mirroring the
// single mutation point the design calls for.
type Pool struct {
	processor Processor
	scheduler Scheduler
	events    observer.Subject

	mu      sync.Mutex
	workers []*worker
	idle    []bool
	queue   []*dispatched
	closed  bool

	processed []atomic.Int64
	replaced  atomic.Int64
}

// DefaultSize derives the pool size from the logical CPU count:
// max(1, floor(0.75 × cores)). Keeping a quarter of the cores free leaves
// headroom for the request path and the cache tiers.
func DefaultSize() int {
	n := runtime.NumCPU() * 3 / 4
	if n < 1 {
		n = 1
	}
	return n
}

// New creates and starts a pool of size workers. Size <= 0 falls back to
// DefaultSize; a nil scheduler falls back to round-robin. events may be
// nil; when set, worker crashes are published to it.
func New(processor Processor, size int, scheduler Scheduler, events observer.Subject) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	if scheduler == nil {
		scheduler = NewRoundRobin()
	}

	p := &Pool{
		processor: processor,
		scheduler: scheduler,
		events:    events,
		workers:   make([]*worker, size),
		idle:      make([]bool, size),
		processed: make([]atomic.Int64, size),
	}
	for i := 0; i < size; i++ {
		p.workers[i] = p.spawn(i)
		p.idle[i] = true
	}

	logger.WithField("workers", size).Info("Worker pool started")
	return p
}

// Size reports the fixed worker count.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Submit hands a task to an idle worker, or appends it to the FIFO queue
// when the pool is saturated. The returned future resolves exactly once.
func (p *Pool) Submit(task *Task) *Future {
	future := newFuture()
	d := &dispatched{task: task, future: future}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		future.reject(apperrors.NewInternalError("worker pool is shut down", nil))
		return future
	}

	if idx := p.scheduler.Next(p.idle); idx >= 0 {
		p.idle[idx] = false
		p.workers[idx].taskCh <- d
		return future
	}

	p.queue = append(p.queue, d)
	return future
}

// SubmitBatch processes tasks in pool-size chunks, waiting for each chunk
// to finish before starting the next. Peak in-flight work is therefore
// bounded at one chunk regardless of batch length. One item's failure
// fills its own slot and never affects siblings.
func (p *Pool) SubmitBatch(ctx context.Context, tasks []*Task) []BatchResult {
	results := make([]BatchResult, len(tasks))
	chunkSize := p.Size()

	for start := 0; start < len(tasks); start += chunkSize {
		end := start + chunkSize
		if end > len(tasks) {
			end = len(tasks)
		}

		futures := make([]*Future, end-start)
		for i, task := range tasks[start:end] {
			futures[i] = p.Submit(task)
		}
		for i, future := range futures {
			result, err := future.Wait(ctx)
			results[start+i] = BatchResult{Result: result, Err: err}
		}
	}
	return results
}

// BatchResult is one slot of a batch response.
type BatchResult struct {
	Result *transform.Result
	Err    error
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Size      int     `json:"size"`
	Busy      int     `json:"busy"`
	Queued    int     `json:"queued"`
	Processed []int64 `json:"processed"`
	Replaced  int64   `json:"replaced"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	busy := 0
	for _, idle := range p.idle {
		if !idle {
			busy++
		}
	}
	queued := len(p.queue)
	p.mu.Unlock()

	processed := make([]int64, len(p.processed))
	for i := range p.processed {
		processed[i] = p.processed[i].Load()
	}
	return Stats{
		Size:      p.Size(),
		Busy:      busy,
		Queued:    queued,
		Processed: processed,
		Replaced:  p.replaced.Load(),
	}
}

// Close stops the pool. Queued tasks are rejected; in-flight tasks run to
// completion on their workers.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	for _, d := range p.queue {
		d.future.reject(apperrors.NewInternalError("worker pool is shut down", nil))
	}
	p.queue = nil
	for _, w := range p.workers {
		close(w.taskCh)
	}
}

// spawn creates the worker goroutine for a slot. The channel is buffered
// for one task so dispatch under the pool lock never blocks.
func (p *Pool) spawn(index int) *worker {
	w := &worker{index: index, taskCh: make(chan *dispatched, 1)}
	go p.run(w)
	return w
}

func (p *Pool) run(w *worker) {
	for d := range w.taskCh {
		p.execute(w, d)
	}
}

// execute runs one task with crash isolation. A panic rejects the task's
// future and terminates this worker; the slot is refilled with a fresh
// worker and the crashed task is not resubmitted.
func (p *Pool) execute(w *worker, d *dispatched) {
	defer func() {
		if r := recover(); r != nil {
			p.replaceWorker(w.index)
			logger.WithFields(logrus.Fields{
				"worker": w.index,
				"task":   d.task.ID,
				"panic":  fmt.Sprintf("%v", r),
			}).Error("Worker crashed, slot replaced")
			p.notifyCrash(w.index, d.task.ID, r)
			// Reject last so anyone woken by the future observes the
			// replacement and the published event.
			d.future.reject(apperrors.NewProcessingError(
				fmt.Sprintf("worker %d crashed", w.index),
				fmt.Errorf("panic: %v", r)))
			// Unwind this goroutine; the replacement owns the slot now.
			runtime.Goexit()
		}
	}()

	result, err := p.processor.Process(d.task.Data, d.task.Options)
	if err != nil {
		d.future.reject(err)
	} else {
		d.future.resolve(result)
	}

	p.processed[w.index].Add(1)
	p.onIdle(w.index, w)
}

// onIdle drains the queue before any other mutation: the freed worker
// picks up the oldest queued task, or is marked idle when none waits.
func (p *Pool) onIdle(index int, w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		w.taskCh <- next
		return
	}
	p.idle[index] = true
}

// notifyCrash publishes the crash-and-replace as a pipeline event.
func (p *Pool) notifyCrash(index int, taskID string, cause interface{}) {
	if p.events == nil {
		return
	}
	p.events.NotifyObservers(context.Background(), observer.PipelineEvent{
		EventType:    observer.WorkerReplaced,
		Timestamp:    time.Now(),
		ErrorMessage: fmt.Sprintf("panic: %v", cause),
		Metadata: map[string]interface{}{
			"worker": index,
			"task":   taskID,
		},
	})
}

// replaceWorker terminates a crashed slot and spawns a fresh worker at
// the same index, then drains the queue into it.
func (p *Pool) replaceWorker(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.replaced.Add(1)
	if p.closed {
		// Close already tore the channels down; nothing to replace.
		return
	}
	close(p.workers[index].taskCh)
	fresh := p.spawn(index)
	p.workers[index] = fresh

	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.idle[index] = false
		fresh.taskCh <- next
		return
	}
	p.idle[index] = true
}
