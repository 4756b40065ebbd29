package patient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/metrics"
)

type persistJob struct {
	doc Document
}

// persistQueue writes patient documents in the background. Each patient has
// at most one write in flight; snapshots queued behind it collapse to the
// newest version.
type persistQueue struct {
	save     func(ctx context.Context, doc *Document) error
	onResult func(id string, version int64, err error)
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]persistJob
	running map[string]bool
	closed  bool
	wg      sync.WaitGroup
}

func newPersistQueue(save func(context.Context, *Document) error, timeout time.Duration,
	onResult func(id string, version int64, err error)) *persistQueue {
	return &persistQueue{
		save:     save,
		onResult: onResult,
		timeout:  timeout,
		pending:  make(map[string]persistJob),
		running:  make(map[string]bool),
	}
}

// enqueue schedules doc for writing. It reports false once the queue is
// closed.
func (q *persistQueue) enqueue(doc Document) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	id := doc.Patient.ID
	if cur, ok := q.pending[id]; ok && cur.doc.Version >= doc.Version {
		return true
	}
	q.pending[id] = persistJob{doc: doc}
	if !q.running[id] {
		q.running[id] = true
		q.wg.Add(1)
		go q.worker(id)
	}
	metrics.SetPersistBacklog(len(q.running))
	return true
}

func (q *persistQueue) worker(id string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		job, ok := q.pending[id]
		if !ok {
			delete(q.running, id)
			metrics.SetPersistBacklog(len(q.running))
			q.mu.Unlock()
			return
		}
		delete(q.pending, id)
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		start := time.Now()
		err := q.save(ctx, &job.doc)
		cancel()
		metrics.RecordPersist(persistOutcome(err), time.Since(start))

		q.onResult(id, job.doc.Version, err)
	}
}

func persistOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStaleWrite):
		return "stale"
	default:
		return "error"
	}
}

// backlog returns how many patients have a write queued or in flight.
func (q *persistQueue) backlog() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// close stops accepting work and waits for in-flight and queued writes.
func (q *persistQueue) close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
