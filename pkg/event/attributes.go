/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package event

import "sync"

// Attributes is the scratch/cache map scoped to an event. Child events
// share their parent's attributes by reference unless opened isolated, so
// caches populated by one kind's processing are visible to the others.
type Attributes struct {
	lock   sync.RWMutex
	values map[string]any
}

func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

func (a *Attributes) Get(key string) (any, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	value, ok := a.values[key]
	return value, ok
}

func (a *Attributes) Set(key string, value any) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.values[key] = value
}

func (a *Attributes) Delete(key string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.values, key)
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. The compute function is called while holding the attribute
// lock; concurrent callers observe exactly one computation per key.
func (a *Attributes) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if value, ok := a.values[key]; ok {
		return value, nil
	}
	value, err := compute()
	if err != nil {
		return nil, err
	}
	a.values[key] = value
	return value, nil
}
