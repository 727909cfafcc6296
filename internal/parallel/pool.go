// Package parallel runs software compute workgroups across goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines that execute workgroup batches.
//
// Each worker has its own queue and steals from the others when idle, which
// keeps the pool balanced when some workgroups take longer than others.
//
// Thread safety: WorkerPool is safe for concurrent use. Work items must not
// submit to the same pool and wait on it.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool

	// closeMu orders enqueueing against Close: ExecuteAll enqueues under
	// the read lock and Close closes done under the write lock, so no work
	// is queued after the workers start draining.
	closeMu sync.RWMutex
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work across workers and waits for all to complete.
// If the pool is closed, the work runs on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	p.closeMu.RLock()
	if !p.running.Load() {
		p.closeMu.RUnlock()
		for _, fn := range work {
			fn()
		}
		return
	}

	var completion sync.WaitGroup
	completion.Add(len(work))
	for i, fn := range work {
		p.workQueues[i%p.workers] <- func() {
			defer completion.Done()
			fn()
		}
	}
	p.closeMu.RUnlock()
	completion.Wait()
}

// ForEach calls fn(i) for every i in [0, n), split into contiguous chunks
// across the workers, and returns when all calls have finished.
func (p *WorkerPool) ForEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if n == 1 || p.workers == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	chunks := p.workers * 4
	if chunks > n {
		chunks = n
	}
	size := (n + chunks - 1) / chunks

	work := make([]func(), 0, chunks)
	for start := 0; start < n; start += size {
		lo, hi := start, min(start+size, n)
		work = append(work, func() {
			for i := lo; i < hi; i++ {
				fn(i)
			}
		})
	}
	p.ExecuteAll(work)
}

// Close stops accepting work, waits for queued work to finish and stops
// the workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.closeMu.Unlock()
		return
	}
	close(p.done)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
