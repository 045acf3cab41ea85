package kdtree

import (
	"runtime"
	"sync"
)

type searchOp uint8

const (
	opRange searchOp = iota
	opNearest
)

// searchJob is one query handed to a pool worker.
type searchJob struct {
	op      searchOp
	query   []float64
	maxD2   float64
	opts    RangeOptions
	result  *Result
	nearest Neighbor
	wg      sync.WaitGroup
}

// searchPool is a resident worker pool for one tree. It bounds the number of
// queries running at once, which steadies tail latency under heavy fan-in.
type searchPool[S Scalar] struct {
	tree   *Tree[S]
	jobs   chan *searchJob
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func newSearchPool[S Scalar](tree *Tree[S], nWorkers, bufSize int) *searchPool[S] {
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	p := &searchPool[S]{
		tree: tree,
		jobs: make(chan *searchJob, bufSize),
	}
	for i := 0; i < nWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// startSearchPool starts the pool when the config asks for one.
func (t *Tree[S]) startSearchPool() {
	if n := t.cfg.SearchPoolWorkers; n > 0 {
		t.searchPool = newSearchPool(t, n, 2*n)
	}
}

func (p *searchPool[S]) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		switch job.op {
		case opRange:
			job.result = p.tree.rangeSearch(job.query, job.maxD2, job.opts)
		case opNearest:
			job.nearest = p.tree.nearest(job.query, job.maxD2)
		}
		job.wg.Done()
	}
}

// submit runs job on a worker and waits for it.
func (p *searchPool[S]) submit(job *searchJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	job.wg.Add(1)
	p.jobs <- job
	job.wg.Wait()
	return nil
}

func (p *searchPool[S]) rangeSearch(query []float64, maxD2 float64, opts RangeOptions) (*Result, error) {
	job := &searchJob{op: opRange, query: query, maxD2: maxD2, opts: opts}
	if err := p.submit(job); err != nil {
		return nil, err
	}
	return job.result, nil
}

func (p *searchPool[S]) nearest(query []float64, maxD2 float64) (Neighbor, error) {
	job := &searchJob{op: opNearest, query: query, maxD2: maxD2}
	if err := p.submit(job); err != nil {
		return Neighbor{}, err
	}
	return job.nearest, nil
}

// Close stops the workers after in-flight queries finish.
func (p *searchPool[S]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
