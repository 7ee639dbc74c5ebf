/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package actions

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/internal/backoff"
	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// poll fetches pending runs until the context is cancelled. A fetch is
// skipped while the buffered backlog is at or above the high watermark;
// consecutive poll failures back off exponentially on top of the regular
// interval.
func (m *Manager) poll(ctx context.Context) {
	ticker := time.NewTicker(m.pollCheckInterval)
	defer ticker.Stop()
	pollBackoff := backoff.NewBackoff(time.Second, 60*time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.lock.Lock()
		buffered := m.queues.buffered()
		m.lock.Unlock()
		if buffered >= m.highWatermark {
			m.log.V(1).Info("runs buffer at high watermark; skipping poll", "buffered", buffered)
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, m.visibilityTimeout)
		runs, err := m.client.PollActionRuns(fetchCtx, m.highWatermark)
		cancel()
		if err != nil {
			m.log.Error(err, "error polling action runs")
			select {
			case <-time.After(pollBackoff.Next("poll", "error")):
			case <-ctx.Done():
				return
			}
			continue
		}
		pollBackoff.Forget("poll")

		// a run stays pending portal-side until its acknowledgment goes
		// through, so it is simply fetched again next time; the queue's
		// dedup drops copies of runs still buffered or executing
		enqueued := 0
		for _, run := range runs {
			if m.enqueue(ctx, run) {
				enqueued++
			}
		}
		if enqueued > 0 {
			m.wakeWorkers()
		}
	}
}

// enqueue routes one polled run to its queue; runs without a registered
// executor are failed right away.
func (m *Manager) enqueue(ctx context.Context, run *types.ActionRun) bool {
	m.lock.Lock()
	executor, ok := m.executors[run.ActionName]
	m.lock.Unlock()
	if !ok {
		m.log.Info("no executor registered for action; failing run", "action", run.ActionName, "run", run.ID)
		m.patchFailure(ctx, run, errors.Errorf("no executor registered for action %s", run.ActionName))
		return false
	}

	queue := globalQueue
	if key := executor.PartitionKey(run); key != nil {
		queue = *key
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	return m.queues.enqueue(queue, run)
}

// work is one worker of the pool. Workers take runs round-robin across
// the non-empty queues; a partition queue is held exclusively while one of
// its runs executes.
func (m *Manager) work(ctx context.Context) {
	for {
		m.lock.Lock()
		run, queue, ok := m.queues.take()
		draining := m.draining
		m.lock.Unlock()

		if !ok {
			if draining {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				m.wakeWorkers() // propagate to the other idle workers
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		m.execute(ctx, run)

		m.lock.Lock()
		m.queues.release(queue, run)
		m.lock.Unlock()
	}
}

func (m *Manager) execute(ctx context.Context, run *types.ActionRun) {
	log := m.log.WithValues("action", run.ActionName, "run", run.ID)

	m.lock.Lock()
	executor := m.executors[run.ActionName]
	m.lock.Unlock()

	// cooperative rate limiting: sleep what the executor suggests, but
	// never longer than the hard cap per nap, then re-check
	for executor.CloseToRateLimit() {
		sleep := time.Duration(executor.RemainingSecondsUntilRateLimit() * float64(time.Second))
		if sleep > maxRateLimitSleep {
			sleep = maxRateLimitSleep
		}
		if sleep <= 0 {
			break
		}
		log.V(1).Info("close to rate limit; sleeping", "sleep", sleep.String())
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
	}

	// moving the run to in-progress also detects acknowledgment races:
	// a conflict means another worker already took it
	if err := m.client.PatchRun(ctx, run.ID, &types.ActionRunPatch{Status: types.ActionRunStatusInProgress}); err != nil {
		if portal.IsConflict(err) {
			log.V(1).Info("run already acknowledged elsewhere; skipping")
			return
		}
		log.Error(err, "error acknowledging run")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, m.visibilityTimeout)
	defer cancel()
	if err := m.safeExecute(runCtx, executor, run); err != nil {
		log.Error(err, "action run failed")
		metrics.ActionRuns.WithLabelValues(run.ActionName, string(types.ActionRunStatusFailure)).Inc()
		m.patchFailure(ctx, run, err)
		return
	}
	// final success status is patched by the executor itself
	metrics.ActionRuns.WithLabelValues(run.ActionName, string(types.ActionRunStatusSuccess)).Inc()
}

// safeExecute invokes Execute, converting a panic in adapter code into an
// error so one bad run cannot take down the pool.
func (m *Manager) safeExecute(ctx context.Context, executor Executor, run *types.ActionRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("executor panicked: %v", r)
		}
	}()
	return executor.Execute(ctx, run)
}

func (m *Manager) patchFailure(ctx context.Context, run *types.ActionRun, cause error) {
	patch := &types.ActionRunPatch{
		Status:  types.ActionRunStatusFailure,
		Summary: cause.Error(),
	}
	if err := m.client.PatchRun(ctx, run.ID, patch); err != nil {
		m.log.Error(err, "error patching run to failure", "run", run.ID)
	}
}
