/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package actions

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// hard cap on a single cooperative rate-limit sleep, regardless of what
// the executor reports
const maxRateLimitSleep = 10 * time.Second

// Executor is an adapter-provided handler for one portal action.
type Executor interface {
	// ActionName matches the portal action identifier.
	ActionName() string
	// PartitionKey groups runs for serial execution; runs sharing a
	// non-nil key never execute concurrently. A nil key means the run goes
	// to the global queue.
	PartitionKey(run *types.ActionRun) *string
	// CloseToRateLimit reports whether the third party is about to
	// throttle; the manager then sleeps cooperatively before executing.
	CloseToRateLimit() bool
	// RemainingSecondsUntilRateLimit is the sleep the third party suggests.
	RemainingSecondsUntilRateLimit() float64
	// Execute performs the action. On success the executor is responsible
	// for patching the run's final status; on error the manager patches
	// the run to failure.
	Execute(ctx context.Context, run *types.ActionRun) error
}

// Options are creation options for a Manager.
type Options struct {
	// Size of the worker pool. If unspecified, 1 is assumed.
	WorkersCount *int
	// Poll interval for pending runs. If unspecified, 5 seconds is assumed.
	PollCheckInterval *time.Duration
	// Bound on a poll fetch and deadline for a single execution. If
	// unspecified, 30 seconds is assumed.
	VisibilityTimeout *time.Duration
	// Polling pauses while this many runs are buffered. If unspecified, 50
	// is assumed.
	RunsBufferHighWatermark *int
	// Grace period granted to workers at shutdown. If unspecified, 30
	// seconds is assumed.
	MaxWaitBeforeShutdown *time.Duration
}

// Manager polls the portal for pending action runs and executes them on a
// worker pool: one global queue for unkeyed runs, one queue per partition
// key, round-robin across queues, strictly sequential within a partition.
type Manager struct {
	client *portal.Client
	log    logr.Logger

	workersCount      int
	pollCheckInterval time.Duration
	visibilityTimeout time.Duration
	highWatermark     int
	maxShutdownWait   time.Duration

	lock      sync.Mutex
	executors map[string]Executor
	queues    *queueSet
	started   bool
	draining  bool

	// wakes idle workers when runs arrive; buffered so the poller never
	// blocks on it
	wake chan struct{}
}

// NewManager creates a new Manager on top of the given portal client.
func NewManager(client *portal.Client, log logr.Logger, options Options) *Manager {
	if options.WorkersCount == nil {
		options.WorkersCount = ref(1)
	}
	if options.PollCheckInterval == nil {
		options.PollCheckInterval = ref(5 * time.Second)
	}
	if options.VisibilityTimeout == nil {
		options.VisibilityTimeout = ref(30 * time.Second)
	}
	if options.RunsBufferHighWatermark == nil {
		options.RunsBufferHighWatermark = ref(50)
	}
	if options.MaxWaitBeforeShutdown == nil {
		options.MaxWaitBeforeShutdown = ref(30 * time.Second)
	}
	return &Manager{
		client:            client,
		log:               log.WithName("actions"),
		workersCount:      *options.WorkersCount,
		pollCheckInterval: *options.PollCheckInterval,
		visibilityTimeout: *options.VisibilityTimeout,
		highWatermark:     *options.RunsBufferHighWatermark,
		maxShutdownWait:   *options.MaxWaitBeforeShutdown,
		executors:         map[string]Executor{},
		queues:            newQueueSet(),
		wake:              make(chan struct{}, 1),
	}
}

// Register adds an executor; at most one executor per action name.
func (m *Manager) Register(executor Executor) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.started {
		return errors.New("cannot register executors after start")
	}
	name := executor.ActionName()
	if _, ok := m.executors[name]; ok {
		return errors.Errorf("executor for action %s already registered", name)
	}
	m.executors[name] = executor
	return nil
}

// HasExecutors reports whether any executor is registered; the runtime
// skips the manager entirely otherwise.
func (m *Manager) HasExecutors() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.executors) > 0
}

// Run polls and executes until the context is cancelled, then shuts down:
// the poller stops immediately, workers get the configured grace period to
// finish their current run, stragglers are cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.lock.Lock()
	m.started = true
	m.lock.Unlock()

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	var workers sync.WaitGroup
	for i := 0; i < m.workersCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			m.work(workCtx)
		}()
	}

	m.poll(ctx)

	// ctx is cancelled: drain
	m.lock.Lock()
	m.draining = true
	m.lock.Unlock()
	m.wakeWorkers()

	finished := make(chan struct{})
	go func() {
		workers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(m.maxShutdownWait):
		m.log.Info("shutdown grace period expired; cancelling remaining action runs")
		cancelWork()
		<-finished
	}
	return nil
}

func (m *Manager) wakeWorkers() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func ref[T any](x T) *T {
	return &x
}
