/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package event

import "sync"

// AbortSignal is a cooperative, one-shot cancellation signal. Raising it
// never interrupts in-flight I/O; long-running loops are expected to poll
// Raised() at safe points (between batches, before each upsert batch,
// before each kind) and return quickly once it is set.
type AbortSignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewAbortSignal() *AbortSignal {
	return &AbortSignal{ch: make(chan struct{})}
}

// Raise sets the signal. Safe to call multiple times and from any task.
func (s *AbortSignal) Raise() {
	s.once.Do(func() { close(s.ch) })
}

func (s *AbortSignal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is raised.
func (s *AbortSignal) Done() <-chan struct{} {
	return s.ch
}
