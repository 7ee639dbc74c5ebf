/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package backoff

import (
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// Backoff tracks per-item exponential backoff. An item's delay grows with
// each Next call for the same activity and resets when the activity
// changes or the item is forgotten.
type Backoff struct {
	lock         sync.Mutex
	initialDelay time.Duration
	maxDelay     time.Duration
	items        map[any]*itemState
}

type itemState struct {
	activity any
	backoff  *cbackoff.ExponentialBackOff
}

func NewBackoff(initialDelay time.Duration, maxDelay time.Duration) *Backoff {
	return &Backoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		items:        make(map[any]*itemState),
	}
}

func (b *Backoff) newExponentialBackoff() *cbackoff.ExponentialBackOff {
	backoff := cbackoff.NewExponentialBackOff()
	backoff.InitialInterval = b.initialDelay
	backoff.MaxInterval = b.maxDelay
	backoff.MaxElapsedTime = 0
	backoff.Reset()
	return backoff
}

func (b *Backoff) Next(item any, activity any) time.Duration {
	b.lock.Lock()
	defer b.lock.Unlock()

	state, ok := b.items[item]
	if !ok || state.activity != activity {
		state = &itemState{activity: activity, backoff: b.newExponentialBackoff()}
		b.items[item] = state
	}
	return state.backoff.NextBackOff()
}

func (b *Backoff) Forget(item any) {
	b.lock.Lock()
	defer b.lock.Unlock()

	delete(b.items, item)
}
