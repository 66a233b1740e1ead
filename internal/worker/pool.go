// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package worker // import "newshub.app/internal/worker"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"newshub.app/internal/logging"
	"newshub.app/internal/metric"
	"newshub.app/internal/model"
)

var (
	// ErrQueueFull is returned when the bounded queue cannot take another
	// task. The caller decides whether to retry later or drop the trigger.
	ErrQueueFull = errors.New("worker: queue full")

	// ErrAlreadyQueued is returned when the source already has a task queued
	// or in flight. At most one task per source exists at any time.
	ErrAlreadyQueued = errors.New("worker: source already queued")
)

// NewPool creates a pool of background workers draining a bounded queue of
// fetch tasks.
func NewPool(runner *Runner, workers, capacity int, clock clockwork.Clock,
) *Pool {
	self := &Pool{
		runner:   runner,
		queue:    make(chan *model.FetchTask, capacity),
		clock:    clock,
		pending:  map[string]struct{}{},
		lastTask: map[string]*model.FetchTask{},
	}
	self.g.SetLimit(workers)
	return self
}

// Pool handles a pool of workers.
type Pool struct {
	runner *Runner
	queue  chan *model.FetchTask
	clock  clockwork.Clock
	g      errgroup.Group

	mu       sync.Mutex
	pending  map[string]struct{}
	lastTask map[string]*model.FetchTask
}

// Trigger queues a fetch task for source without blocking. A source with a
// task already queued or in flight is rejected with ErrAlreadyQueued; a full
// queue rejects with ErrQueueFull.
func (self *Pool) Trigger(ctx context.Context, source *model.FeedSource,
) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if _, ok := self.pending[source.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, source.ID)
	}

	task := &model.FetchTask{
		Source:      *source,
		TriggeredAt: self.clock.Now(),
		State:       model.TaskQueued,
	}

	select {
	case self.queue <- task:
		self.pending[source.ID] = struct{}{}
		logging.FromContext(ctx).Debug("worker: queued source",
			slog.String("source_id", source.ID))
		return nil
	default:
		metric.QueueRejected.Inc()
		return fmt.Errorf("%w: %s", ErrQueueFull, source.ID)
	}
}

// Run drains the queue until ctx is canceled, then waits for in-flight
// tasks to finish.
func (self *Pool) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("worker: pool started", slog.Int("capacity", cap(self.queue)))

	for {
		select {
		case <-ctx.Done():
			err := self.g.Wait()
			log.Info("worker: pool stopped")
			return err
		case task := <-self.queue:
			self.g.Go(func() error {
				task.State = model.TaskInFlight
				self.runner.Process(ctx, task)
				self.finish(task)
				return nil
			})
		}
	}
}

func (self *Pool) finish(task *model.FetchTask) {
	self.mu.Lock()
	defer self.mu.Unlock()
	delete(self.pending, task.Source.ID)
	self.lastTask[task.Source.ID] = task
}

// Status returns the most recently finished task for the source, and
// whether the source currently has a task queued or in flight.
func (self *Pool) Status(sourceID string) (last *model.FetchTask,
	pending bool,
) {
	self.mu.Lock()
	defer self.mu.Unlock()
	_, pending = self.pending[sourceID]
	return self.lastTask[sourceID], pending
}
