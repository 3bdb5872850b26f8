// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers normalizes a configured worker count: values below one
// mean one worker per CPU.
func Workers(configured int) int {
	if configured < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return configured
}

// Run calls task for every index in [0, count) using at most workers
// goroutines. The first task error cancels the context passed to the
// remaining tasks and is returned after every started task finishes.
// Tasks that should not abort the run must record their failure and
// return nil.
//
// Tasks are started in index order. Results belong in index-addressed
// slots owned by the caller, never in completion order.
func Run(ctx context.Context, workers, count int, task func(ctx context.Context, index int) error) error {
	if count == 0 {
		return ctx.Err()
	}
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(min(Workers(workers), count))
	for index := range count {
		if groupContext.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			return task(groupContext, index)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map runs transform over inputs with Run and returns the outputs in
// input order.
func Map[In, Out any](ctx context.Context, workers int, inputs []In, transform func(ctx context.Context, input In) (Out, error)) ([]Out, error) {
	outputs := make([]Out, len(inputs))
	err := Run(ctx, workers, len(inputs), func(ctx context.Context, index int) error {
		output, err := transform(ctx, inputs[index])
		if err != nil {
			return err
		}
		outputs[index] = output
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outputs, nil
}
