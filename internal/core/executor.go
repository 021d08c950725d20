package core

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"avular-robenv/internal/types"
)

// CancelToken is a manual-reset cancellation flag. Once set it stays set
// until Reset is called.
type CancelToken struct {
	mu   sync.Mutex
	done chan struct{}
	set  bool
}

func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

var defaultCancelToken = NewCancelToken()

// DefaultCancelToken returns the process-wide token shared by executors
// that were not given their own.
func DefaultCancelToken() *CancelToken {
	return defaultCancelToken
}

func (t *CancelToken) Set() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set {
		return
	}
	t.set = true
	close(t.done)
}

func (t *CancelToken) IsSet() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set
}

// Done is closed when the token is set.
func (t *CancelToken) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *CancelToken) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.set {
		return
	}
	t.set = false
	t.done = make(chan struct{})
}

const (
	futurePending int32 = iota
	futureRunning
	futureDone
	futureCancelled
)

// Future is the pending result of a task submitted to a
// CancelableExecutor.
type Future[T any] struct {
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	value T
	err   error
	task  func(ctx context.Context) (T, error)
	wg    *sync.WaitGroup
}

// Wait blocks until the task finished or was cancelled.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Cancelled reports whether the task was dropped before it started.
func (f *Future[T]) Cancelled() bool {
	return f.state.Load() == futureCancelled
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		f.wg.Done()
	})
}

func (f *Future[T]) cancel() bool {
	if !f.state.CompareAndSwap(futurePending, futureCancelled) {
		return false
	}
	var zero T
	f.resolve(zero, &types.CancelledError{})
	return true
}

func (f *Future[T]) start() bool {
	return f.state.CompareAndSwap(futurePending, futureRunning)
}

func (f *Future[T]) run(ctx context.Context) {
	value, err := f.task(ctx)
	f.state.Store(futureDone)
	f.resolve(value, err)
}

// pendingTask erases the result type so the executor can queue futures
// of any type.
type pendingTask interface {
	start() bool
	cancel() bool
	run(ctx context.Context)
}

type executorConfig struct {
	token   *CancelToken
	signals []os.Signal
}

type ExecutorOption func(*executorConfig)

// WithCancelToken makes the executor set token on interruption instead of
// the process-wide default.
func WithCancelToken(token *CancelToken) ExecutorOption {
	return func(cfg *executorConfig) {
		if token != nil {
			cfg.token = token
		}
	}
}

// WithInterruptSignals overrides the signals that interrupt the executor.
// Passing none disables signal handling.
func WithInterruptSignals(signals ...os.Signal) ExecutorOption {
	return func(cfg *executorConfig) {
		cfg.signals = signals
	}
}

// CancelableExecutor is a bounded worker pool. Tasks start in submission
// order, at most maxWorkers at a time. An interrupt drops every task that
// has not started yet and sets the shared cancel token.
type CancelableExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	token  *CancelToken

	mu          sync.Mutex
	queue       []pendingTask
	tracked     []pendingTask
	notify      chan struct{}
	closed      bool
	stopped     bool
	interrupted atomic.Bool

	tasks   sync.WaitGroup
	signals chan os.Signal
	stop    chan struct{}
}

func NewCancelableExecutor(ctx context.Context, maxWorkers int, opts ...ExecutorOption) *CancelableExecutor {
	cfg := executorConfig{
		token:   DefaultCancelToken(),
		signals: []os.Signal{os.Interrupt},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	execCtx, cancel := context.WithCancel(ctx)
	e := &CancelableExecutor{
		ctx:    execCtx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		token:  cfg.token,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	if len(cfg.signals) > 0 {
		e.signals = make(chan os.Signal, 1)
		signal.Notify(e.signals, cfg.signals...)
		go e.watchSignals()
	}
	go e.dispatch()
	return e
}

// Submit queues fn on the executor. fn receives a context that is
// cancelled when the executor is interrupted.
func Submit[T any](e *CancelableExecutor, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), task: fn, wg: &e.tasks}
	e.tasks.Add(1)

	e.mu.Lock()
	if e.closed || e.stopped || e.interrupted.Load() || e.ctx.Err() != nil {
		e.mu.Unlock()
		f.cancel()
		return f
	}
	e.queue = append(e.queue, f)
	e.tracked = append(e.tracked, f)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	return f
}

// AsCompleted yields the futures in the order they finish.
func AsCompleted[T any](futures []*Future[T]) <-chan *Future[T] {
	out := make(chan *Future[T], len(futures))
	var wg sync.WaitGroup
	wg.Add(len(futures))
	for _, f := range futures {
		go func(f *Future[T]) {
			defer wg.Done()
			<-f.Done()
			out <- f
		}(f)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (e *CancelableExecutor) dispatch() {
	for {
		task, ok := e.next()
		if !ok {
			select {
			case <-e.notify:
				continue
			case <-e.stop:
				e.drain()
				return
			case <-e.ctx.Done():
				e.drain()
				return
			}
		}
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			task.cancel()
			e.drain()
			return
		}
		if e.token.IsSet() || !task.start() {
			task.cancel()
			e.sem.Release(1)
			continue
		}
		go func() {
			defer e.sem.Release(1)
			task.run(e.ctx)
		}()
	}
}

func (e *CancelableExecutor) next() (pendingTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	task := e.queue[0]
	e.queue = e.queue[1:]
	return task, true
}

// drain marks the dispatcher as gone and cancels whatever is still queued.
// Submit checks stopped under the same lock, so nothing is queued after.
func (e *CancelableExecutor) drain() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.CancelPending()
}

func (e *CancelableExecutor) watchSignals() {
	select {
	case sig := <-e.signals:
		log.Warn().Str("signal", sig.String()).Msg("interrupt received, cancelling pending tasks")
		e.Interrupt()
	case <-e.stop:
	}
}

// Interrupt cancels every task that has not started, sets the cancel
// token and cancels the context handed to running tasks. It does not
// wait for running tasks.
func (e *CancelableExecutor) Interrupt() {
	if !e.interrupted.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	tracked := e.tracked
	e.mu.Unlock()
	cancelled := 0
	for _, task := range tracked {
		if task.cancel() {
			cancelled++
		}
	}
	e.token.Set()
	e.cancel()
	log.Debug().Int("cancelled", cancelled).Msg("executor interrupted")
}

// CancelPending drops queued tasks without touching running ones or the
// cancel token. It returns the number of tasks dropped.
func (e *CancelableExecutor) CancelPending() int {
	e.mu.Lock()
	queued := e.queue
	e.queue = nil
	e.mu.Unlock()
	cancelled := 0
	for _, task := range queued {
		if task.cancel() {
			cancelled++
		}
	}
	return cancelled
}

// Context is cancelled when the executor is interrupted or closed.
func (e *CancelableExecutor) Context() context.Context {
	return e.ctx
}

func (e *CancelableExecutor) Interrupted() bool {
	return e.interrupted.Load()
}

func (e *CancelableExecutor) Token() *CancelToken {
	return e.token
}

// Close waits for submitted tasks unless the executor was interrupted,
// then stops signal handling. The executor accepts no tasks afterwards.
func (e *CancelableExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	if !e.interrupted.Load() {
		e.tasks.Wait()
	}
	if e.signals != nil {
		signal.Stop(e.signals)
	}
	close(e.stop)
	e.cancel()
}
