// Package feed pushes committed change events onto a queue for offline
// consumers (webhooks, audit, projections). Publishing is asynchronous
// and best-effort: the mutation has already committed and been broadcast,
// so a full buffer or queue outage is logged and never surfaced.
package feed

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Queue is the downstream the publisher drains into.
type Queue interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

// Config tunes the publisher's worker pool.
type Config struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
}

// Publisher fans change events out to the queue from a bounded buffer.
type Publisher struct {
	queue   Queue
	logger  *log.Logger
	timeout time.Duration

	jobs      chan domain.ChangeEvent
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPublisher creates and starts a publisher. Call Close to drain and
// stop the workers.
func NewPublisher(queue Queue, logger *log.Logger, cfg Config) *Publisher {
	if queue == nil {
		panic("feed.NewPublisher: queue is nil")
	}
	if logger == nil {
		panic("feed.NewPublisher: logger is nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 30 * time.Second
	}

	p := &Publisher{
		queue:   queue,
		logger:  logger,
		timeout: cfg.PublishTimeout,
		jobs:    make(chan domain.ChangeEvent, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("change feed publisher started, workers: %d, buffer: %d, timeout: %v", cfg.Workers, cfg.Buffer, cfg.PublishTimeout)
	return p
}

// Enqueue hands an event to the workers without blocking. It reports
// false when the buffer is saturated; the event is dropped and logged.
func (p *Publisher) Enqueue(ev domain.ChangeEvent) bool {
	select {
	case p.jobs <- ev:
		return true
	default:
		p.logger.WithFields(log.Fields{
			"board":  ev.BoardID,
			"entity": ev.Entity,
			"action": ev.Action,
		}).Warn("change feed buffer saturated, dropping event")
		return false
	}
}

// Close stops accepting events and waits for the workers to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Publisher) worker(id int) {
	defer p.wg.Done()
	for ev := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.queue.PublishChange(ctx, ev)
		cancel()
		if err != nil {
			p.logger.Errorf("change feed publish failed, err: %v, board: %s, entity: %s, action: %s, worker: %d",
				err, ev.BoardID, ev.Entity, ev.Action, id)
		}
	}
}
