package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"board-api/domain"
)

type recordingQueue struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
	block  chan struct{}
}

func (q *recordingQueue) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	if q.block != nil {
		<-q.block
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
	return q.err
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func TestPublisherDeliversEvents(t *testing.T) {
	q := &recordingQueue{}
	logger, _ := test.NewNullLogger()
	p := NewPublisher(q, logger, Config{Workers: 2, Buffer: 8})

	for i := 0; i < 5; i++ {
		if !p.Enqueue(domain.ChangeEvent{Entity: domain.EntityTask, Action: domain.ActionCreated, BoardID: "B1"}) {
			t.Fatal("enqueue rejected with free buffer")
		}
	}
	p.Close()

	if got := q.count(); got != 5 {
		t.Fatalf("delivered %d events, want 5", got)
	}
}

func TestPublisherDropsOnSaturation(t *testing.T) {
	q := &recordingQueue{block: make(chan struct{})}
	logger, hook := test.NewNullLogger()
	p := NewPublisher(q, logger, Config{Workers: 1, Buffer: 1})

	// One event occupies the worker, one fills the buffer; the rest drop.
	accepted := 0
	for i := 0; i < 10; i++ {
		if p.Enqueue(domain.ChangeEvent{BoardID: "B1"}) {
			accepted++
		}
	}
	close(q.block)
	p.Close()

	if accepted >= 10 {
		t.Fatalf("accepted %d events, expected saturation", accepted)
	}
	if q.count() != accepted {
		t.Fatalf("delivered %d events, accepted %d", q.count(), accepted)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "change feed buffer saturated, dropping event" {
			found = true
		}
	}
	if !found {
		t.Fatal("saturation was not logged")
	}
}

func TestPublisherLogsQueueFailures(t *testing.T) {
	q := &recordingQueue{err: errors.New("queue down")}
	logger, hook := test.NewNullLogger()
	p := NewPublisher(q, logger, Config{Workers: 1, Buffer: 4, PublishTimeout: time.Second})

	p.Enqueue(domain.ChangeEvent{BoardID: "B1"})
	p.Close()

	if len(hook.AllEntries()) == 0 {
		t.Fatal("publish failure was not logged")
	}
}
