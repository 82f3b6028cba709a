package transport

import (
	"sync"

	"github.com/rs/zerolog"
)

// task is one unit of loop work. drop releases whatever run would have
// consumed when the loop shuts down before the task gets to run.
type task struct {
	run  func()
	drop func()
}

// loop serializes all connection and channel state changes onto one goroutine.
// Dispatch may be called from any goroutine and never blocks.
type loop struct {
	mu     sync.Mutex
	queue  []task
	spare  []task
	closed bool
	wake   chan struct{}

	logger zerolog.Logger
}

func newLoop(logger zerolog.Logger) *loop {
	return &loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// any goroutine
func (l *loop) Dispatch(run, drop func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, task{run: run, drop: drop})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// run executes queued tasks until either stop channel fires.
// Tasks still queued at that point are left for close.
func (l *loop) run(stop1, stop2 <-chan struct{}) {
	for {
		select {
		case <-stop1:
			return
		case <-stop2:
			return
		case <-l.wake:
		}

		for {
			batch := l.take()
			if len(batch) == 0 {
				break
			}
			for i := range batch {
				select {
				case <-stop1:
					l.requeue(batch[i:])
					return
				case <-stop2:
					l.requeue(batch[i:])
					return
				default:
				}
				l.invoke(batch[i].run)
				batch[i] = task{}
			}
			l.recycle(batch)
		}
	}
}

func (l *loop) take() []task {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = l.spare[:0]
	l.spare = nil
	return batch
}

func (l *loop) recycle(batch []task) {
	l.mu.Lock()
	if l.spare == nil {
		l.spare = batch[:0]
	}
	l.mu.Unlock()
}

func (l *loop) requeue(rest []task) {
	l.mu.Lock()
	l.queue = append(append([]task(nil), rest...), l.queue...)
	l.mu.Unlock()
}

func (l *loop) invoke(f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error().
				Interface("panic", rec).
				Msg("loop task recovered from panic")
		}
	}()
	f()
}

// close rejects further Dispatch calls and returns the tasks that never ran.
func (l *loop) close() []task {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	rest := l.queue
	l.queue = nil
	l.spare = nil
	return rest
}
