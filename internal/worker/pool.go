// Package worker implements a bounded-concurrency pool: a fixed number of
// tomb.v2 goroutines pulling tasks off a shared channel, used here to
// bound how many inbound connections a transport.Server services
// concurrently.
package worker

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultTaskQueueDepth = 100

// Func is one unit of work a pool worker performs. Returning a non-nil
// error kills that worker, and via tomb, the whole pool.
type Func = func(t *tomb.Tomb, task any) error

// Pool is a fixed-size worker pool draining a shared task queue.
type Pool struct {
	size  int
	tasks chan any
}

// New constructs a Pool of size workers.
func New(size int) Pool {
	return Pool{
		size:  size,
		tasks: make(chan any, defaultTaskQueueDepth),
	}
}

// AddTask enqueues task for the next free worker.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Run maintains size live workers under t until t.Dying() fires.
func (p *Pool) Run(t *tomb.Tomb, work Func) {
	log.Info().Int("size", p.size).Msg("starting worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < p.size {
				t.Go(func() error {
					err := p.worker(t, work)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (p *Pool) worker(t *tomb.Tomb, work Func) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-p.tasks:
		if err := work(t, task); err != nil {
			log.Error().Err(err).Msg("worker exiting on error")
			return err
		}
	}
	return nil
}
