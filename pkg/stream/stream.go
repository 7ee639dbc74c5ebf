/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned to producers emitting into a stream whose consumer
// has gone away.
var ErrClosed = errors.New("stream closed")

// Batch is one batch of raw records as produced by an adapter.
type Batch []map[string]any

// ProducerFunc pulls data from the third party and emits batches. It
// should return promptly when emit returns an error (the consumer aborted)
// or when the context is cancelled.
type ProducerFunc func(ctx context.Context, emit func(Batch) error) error

// Options are creation options for a Stream.
type Options struct {
	// Capacity of the internal batch buffer. Defaults to 1 (producer stays
	// at most one batch ahead of the consumer).
	BufferSize int
}

// Stream is a lazy finite sequence of batches, backed by a producer task
// feeding a bounded channel. It is not restartable; the consumer iterates
// it fully or closes it early.
type Stream struct {
	batches   chan Batch
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// New starts the producer and returns the consuming side.
func New(ctx context.Context, producer ProducerFunc, options ...Options) *Stream {
	var opts Options
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1
	}

	s := &Stream{
		batches: make(chan Batch, opts.BufferSize),
		done:    make(chan struct{}),
	}

	emit := func(batch Batch) error {
		select {
		case s.batches <- batch:
			return nil
		case <-s.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		err := producer(ctx, emit)
		if err != nil && !errors.Is(err, ErrClosed) {
			s.err = err
		}
		close(s.batches)
	}()

	return s
}

// FromBatches returns a stream over a fixed set of batches; mostly useful
// for adapters that fetch eagerly, and for tests.
func FromBatches(ctx context.Context, batches ...Batch) *Stream {
	return New(ctx, func(ctx context.Context, emit func(Batch) error) error {
		for _, batch := range batches {
			if err := emit(batch); err != nil {
				return err
			}
		}
		return nil
	}, Options{BufferSize: len(batches) + 1})
}

// NextBatch returns the next batch. ok is false once the stream is
// exhausted; err then carries the producer's failure, if any.
func (s *Stream) NextBatch(ctx context.Context) (batch Batch, ok bool, err error) {
	select {
	case batch, ok = <-s.batches:
		if !ok {
			return nil, false, s.err
		}
		return batch, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close stops the stream early; a blocked producer observes ErrClosed on
// its next emit. Safe to call multiple times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
