package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type persistJob struct {
	op      string
	groupID string
	apply   func(ctx context.Context) error
}

// writeBehind applies persist jobs one at a time in enqueue order
type writeBehind struct {
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []persistJob
	busy   bool
	closed bool
	done   chan struct{}
}

func newWriteBehind(logger *zap.Logger, timeout time.Duration) *writeBehind {
	w := &writeBehind{
		logger:  logger,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// enqueue returns false once the queue is closed
func (w *writeBehind) enqueue(job persistJob) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	w.queue = append(w.queue, job)
	w.cond.Broadcast()
	return true
}

func (w *writeBehind) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		job := w.queue[0]
		w.queue[0] = persistJob{}
		w.queue = w.queue[1:]
		w.busy = true
		w.mu.Unlock()

		w.apply(job)

		w.mu.Lock()
		w.busy = false
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *writeBehind) apply(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	startTime := time.Now()
	if err := job.apply(ctx); err != nil {
		w.logger.Error("Failed to persist progress, memory and storage diverge until the next load",
			zap.String("progress.op", job.op),
			zap.String("progress.group.id", job.groupID),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("Persisted progress",
		zap.String("progress.op", job.op),
		zap.String("progress.group.id", job.groupID),
		zap.Duration("progress.time", time.Since(startTime)),
	)
}

// flush block until the queue is drained and no job is running
func (w *writeBehind) flush() {
	w.mu.Lock()
	for len(w.queue) > 0 || w.busy {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// close drain pending jobs and stop the worker
func (w *writeBehind) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *writeBehind) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.queue)
	if w.busy {
		n++
	}
	return n
}
