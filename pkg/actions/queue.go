/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package actions

import (
	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// name of the queue for runs without a partition key
const globalQueue = ""

// queueSet holds the global queue and the per-partition queues, plus the
// bookkeeping for dedup and per-partition serialization. All access is
// guarded by the owning Manager's lock.
type queueSet struct {
	// queue names in round-robin order; the global queue is always present
	order []string
	// pending runs per queue name
	pending map[string][]*types.ActionRun
	// partitions currently held by a worker
	busy map[string]bool
	// run IDs queued or in progress, until completion
	tracked map[string]bool
	// round-robin cursor
	cursor int
}

func newQueueSet() *queueSet {
	return &queueSet{
		order:   []string{globalQueue},
		pending: map[string][]*types.ActionRun{},
		busy:    map[string]bool{},
		tracked: map[string]bool{},
	}
}

// enqueue appends a run to its queue; duplicates (already queued or in
// progress) are dropped.
func (q *queueSet) enqueue(queue string, run *types.ActionRun) bool {
	if q.tracked[run.ID] {
		return false
	}
	q.tracked[run.ID] = true
	if queue != globalQueue && !q.hasQueue(queue) {
		q.order = append(q.order, queue)
	}
	q.pending[queue] = append(q.pending[queue], run)
	q.updateDepth(queue)
	return true
}

// take pops the next run round-robin across the non-empty queues, skipping
// partitions currently held by another worker. The returned queue stays
// marked busy until release is called (the global queue is never marked).
func (q *queueSet) take() (*types.ActionRun, string, bool) {
	for i := 0; i < len(q.order); i++ {
		queue := q.order[(q.cursor+i)%len(q.order)]
		if len(q.pending[queue]) == 0 || (queue != globalQueue && q.busy[queue]) {
			continue
		}
		run := q.pending[queue][0]
		q.pending[queue] = q.pending[queue][1:]
		if queue != globalQueue {
			q.busy[queue] = true
		}
		q.cursor = (q.cursor + i + 1) % len(q.order)
		q.updateDepth(queue)
		return run, queue, true
	}
	return nil, "", false
}

// release finishes a run taken from the given queue: the partition slot is
// freed and the run untracked. Empty partition queues are removed from the
// rotation.
func (q *queueSet) release(queue string, run *types.ActionRun) {
	delete(q.tracked, run.ID)
	if queue == globalQueue {
		return
	}
	delete(q.busy, queue)
	if len(q.pending[queue]) == 0 {
		delete(q.pending, queue)
		for i, name := range q.order {
			if name == queue {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
		if len(q.order) > 0 {
			q.cursor %= len(q.order)
		}
	}
}

// buffered returns the total number of queued (not in-progress) runs.
func (q *queueSet) buffered() int {
	total := 0
	for _, runs := range q.pending {
		total += len(runs)
	}
	return total
}

func (q *queueSet) hasQueue(queue string) bool {
	for _, name := range q.order {
		if name == queue {
			return true
		}
	}
	return false
}

func (q *queueSet) updateDepth(queue string) {
	label := queue
	if label == globalQueue {
		label = "global"
	}
	metrics.ActionQueueDepth.WithLabelValues(label).Set(float64(len(q.pending[queue])))
}
