package media

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// WorkerPool owns a fixed set of workers created at startup and hands them
// out round-robin. There is no error path on acquisition: the pool is
// non-empty by construction. A worker reporting terminal failure makes the
// whole process unrecoverable, since live rooms cannot be redistributed.
type WorkerPool struct {
	mu      sync.Mutex
	workers []Worker
	next    int
}

// NewWorkerPool spins up size workers on the engine. onFatal is invoked when
// any worker dies; it must terminate the process and not return.
func NewWorkerPool(engine Engine, size int, onFatal func(error)) (*WorkerPool, error) {
	if size < 1 {
		size = 1
	}
	p := &WorkerPool{workers: make([]Worker, 0, size)}
	for i := 0; i < size; i++ {
		w, err := engine.CreateWorker(i)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create worker %d: %w", i, err)
		}
		w.OnDied(func(err error) {
			log.Error().Err(err).Str("module", "media.pool").Str("worker", w.ID()).Msg("worker died")
			onFatal(err)
		})
		p.workers = append(p.workers, w)
	}
	log.Info().Str("module", "media.pool").Int("workers", len(p.workers)).Msg("worker pool ready")
	return p, nil
}

// Acquire returns the next worker, wrapping at pool end.
func (p *WorkerPool) Acquire() Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)
	return w
}

func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.Close()
	}
}
