package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ExecPool bounds how many step executions run concurrently across a batch.
type ExecPool struct {
	sem *semaphore.Weighted
}

// NewExecPool creates a pool allowing up to max concurrent tasks.
func NewExecPool(max int) *ExecPool {
	if max < 1 {
		max = 1
	}
	return &ExecPool{sem: semaphore.NewWeighted(int64(max))}
}

// Run executes all tasks, at most the pool's limit at a time, and waits for
// every task to finish. Task errors are collected, not fail-fast: a failed
// step must not abort its siblings mid-flight.
func (p *ExecPool) Run(ctx context.Context, tasks []func(ctx context.Context) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(tasks))

	for i, task := range tasks {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, task func(ctx context.Context) error) {
			defer wg.Done()
			defer p.sem.Release(1)
			errs[i] = task(ctx)
		}(i, task)
	}

	wg.Wait()
	return errors.Join(errs...)
}
