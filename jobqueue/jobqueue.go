// Copyright (c) 2025 BVK Chaitanya

// Package jobqueue runs callback jobs serialized per owner key. Jobs with
// the same owner execute one at a time in submission order; jobs with
// different owners run concurrently. Closing the queue rejects new jobs but
// drains everything already accepted.
package jobqueue

import (
	"context"
	"os"
	"sync"
)

type Func func(ctx context.Context) error

// Job tracks the completion of one submitted callback.
type Job struct {
	donec chan struct{}

	err error
}

// Done returns a channel that is closed after the job has run.
func (j *Job) Done() <-chan struct{} {
	return j.donec
}

// Err returns the job callback's result. It is only valid after the Done
// channel is closed.
func (j *Job) Err() error {
	select {
	case <-j.donec:
		return j.err
	default:
		return os.ErrInvalid
	}
}

// Wait blocks till the job has run or the context expires.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-j.donec:
		return j.err
	}
}

type queueItem struct {
	job *Job
	fn  Func
}

type Queue struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
	owners map[string][]*queueItem
}

func New() *Queue {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Queue{
		ctx:    ctx,
		cancel: cancel,
		owners: make(map[string][]*queueItem),
	}
}

// Close stops accepting new jobs, waits for every accepted job to finish
// and then releases the job context.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel(os.ErrClosed)
}

// Add submits a job for the given owner. Jobs of one owner run strictly in
// Add order. Returns os.ErrClosed when the queue is closed.
func (q *Queue) Add(owner string, fn Func) (*Job, error) {
	item := &queueItem{
		job: &Job{donec: make(chan struct{})},
		fn:  fn,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, os.ErrClosed
	}
	pending, ok := q.owners[owner]
	q.owners[owner] = append(pending, item)
	if !ok {
		// First job for this owner; start its worker.
		q.wg.Add(1)
		go q.goRunOwner(owner)
	}
	q.mu.Unlock()

	return item.job, nil
}

// goRunOwner drains the owner's pending list and removes the owner entry
// when the list turns empty, which also stops the worker.
func (q *Queue) goRunOwner(owner string) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		pending := q.owners[owner]
		if len(pending) == 0 {
			delete(q.owners, owner)
			q.mu.Unlock()
			return
		}
		item := pending[0]
		q.owners[owner] = pending[1:]
		q.mu.Unlock()

		item.job.err = item.fn(q.ctx)
		close(item.job.donec)
	}
}

// NumPending returns the count of jobs accepted, but not yet started, for
// the given owner.
func (q *Queue) NumPending(owner string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.owners[owner])
}

// WaitAll waits till all given jobs are complete or the context expires,
// and returns the first job error if any.
func WaitAll(ctx context.Context, jobs []*Job) error {
	var status error
	for _, j := range jobs {
		if err := j.Wait(ctx); err != nil {
			if err == context.Cause(ctx) {
				return err
			}
			if status == nil {
				status = err
			}
		}
	}
	return status
}
