// Package server implements the TCP command server: an acceptor, a
// fixed-size worker pool, per-connection state, and an idle-timeout
// monitor, all exchanging newline-framed JSON documents with clients.
package server

import "sync"

// pool is a fixed-size worker pool whose job queue is a buffered
// channel: sending blocks once the queue is full, which is exactly the
// bounded-circular-buffer-with-not-full-condition behavior the design
// calls for, without needing an explicit sync.Cond.
type pool struct {
	jobs chan *Connection
	wg   sync.WaitGroup
}

// newPool starts size worker goroutines, each repeatedly pulling a
// Connection off jobs and running handle on it until jobs is closed.
func newPool(size, queueDepth int, handle func(*Connection)) *pool {
	p := &pool{jobs: make(chan *Connection, queueDepth)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for c := range p.jobs {
				handle(c)
			}
		}()
	}
	return p
}

// submit queues c for a worker, blocking while the job queue is full.
func (p *pool) submit(c *Connection) {
	p.jobs <- c
}

// shutdown closes the job queue and waits for every worker to drain
// and exit.
func (p *pool) shutdown() {
	close(p.jobs)
	p.wg.Wait()
}
