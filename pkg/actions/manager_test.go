/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package actions_test

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	testingutils "github.com/sap/portal-integration-runtime/internal/testing"
	"github.com/sap/portal-integration-runtime/pkg/actions"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// fakeExecutor is a configurable action executor; unset hooks default to a
// no-op execution on the global queue.
type fakeExecutor struct {
	name      string
	partition func(run *types.ActionRun) *string
	remaining float64
	execute   func(ctx context.Context, run *types.ActionRun) error
}

func (e *fakeExecutor) ActionName() string { return e.name }

func (e *fakeExecutor) PartitionKey(run *types.ActionRun) *string {
	if e.partition == nil {
		return nil
	}
	return e.partition(run)
}

func (e *fakeExecutor) CloseToRateLimit() bool { return e.remaining > 0 }

func (e *fakeExecutor) RemainingSecondsUntilRateLimit() float64 {
	remaining := e.remaining
	e.remaining = 0
	return remaining
}

func (e *fakeExecutor) Execute(ctx context.Context, run *types.ActionRun) error {
	if e.execute == nil {
		return nil
	}
	return e.execute(ctx, run)
}

var _ = Describe("testing: manager.go", func() {
	var fake *testingutils.FakePortal
	var client *portal.Client
	var manager *actions.Manager

	pendingRun := func(id string, action string, payload map[string]any) *types.ActionRun {
		return &types.ActionRun{
			ID:         id,
			ActionName: action,
			Payload:    payload,
			Status:     types.ActionRunStatusPending,
			CreatedAt:  time.Now(),
		}
	}

	runPatches := func(id string) []types.ActionRunStatus {
		fake.Lock.Lock()
		defer fake.Lock.Unlock()
		var statuses []types.ActionRunStatus
		for _, patch := range fake.RunPatches[id] {
			statuses = append(statuses, patch.Status)
		}
		return statuses
	}

	BeforeEach(func() {
		fake = testingutils.NewFakePortal()
		DeferCleanup(fake.Close)
		client = fake.NewClient("test-integration", "test")
		manager = actions.NewManager(client.WithFeature("actions"), logr.Discard(), actions.Options{
			WorkersCount:          ref(3),
			PollCheckInterval:     ref(20 * time.Millisecond),
			MaxWaitBeforeShutdown: ref(2 * time.Second),
		})
	})

	startManager := func(ctx context.Context) chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			manager.Run(ctx)
		}()
		return done
	}

	Context("testing: Register()", func() {
		It("should reject duplicate registrations", func() {
			Expect(manager.Register(&fakeExecutor{name: "deploy"})).To(Succeed())
			Expect(manager.Register(&fakeExecutor{name: "deploy"})).NotTo(Succeed())
			Expect(manager.HasExecutors()).To(BeTrue())
		})
	})

	Context("testing: Run()", func() {
		It("should acknowledge and execute a pending run", func() {
			var executed sync.Map
			executor := &fakeExecutor{
				name: "deploy",
				execute: func(ctx context.Context, run *types.ActionRun) error {
					executed.Store(run.ID, true)
					return client.PatchRun(ctx, run.ID, &types.ActionRunPatch{Status: types.ActionRunStatusSuccess})
				},
			}
			Expect(manager.Register(executor)).To(Succeed())
			fake.ActionRuns = append(fake.ActionRuns, pendingRun("r1", "deploy", nil))

			ctx, cancel := context.WithCancel(context.Background())
			done := startManager(ctx)

			Eventually(func() []types.ActionRunStatus { return runPatches("r1") }, "5s").
				Should(Equal([]types.ActionRunStatus{types.ActionRunStatusInProgress, types.ActionRunStatusSuccess}))
			_, ok := executed.Load("r1")
			Expect(ok).To(BeTrue())

			cancel()
			Eventually(done, "5s").Should(BeClosed())
		})

		It("should fail runs without a registered executor", func() {
			Expect(manager.Register(&fakeExecutor{name: "deploy"})).To(Succeed())
			fake.ActionRuns = append(fake.ActionRuns, pendingRun("r1", "unknown-action", nil))

			ctx, cancel := context.WithCancel(context.Background())
			done := startManager(ctx)

			Eventually(func() []types.ActionRunStatus { return runPatches("r1") }, "5s").
				Should(Equal([]types.ActionRunStatus{types.ActionRunStatusFailure}))
			fake.Lock.Lock()
			summary := fake.RunPatches["r1"][0].Summary
			fake.Lock.Unlock()
			Expect(summary).To(ContainSubstring("no executor registered"))

			cancel()
			Eventually(done, "5s").Should(BeClosed())
		})

		It("should patch a run to failure when the executor errors or panics", func() {
			executor := &fakeExecutor{
				name: "deploy",
				execute: func(ctx context.Context, run *types.ActionRun) error {
					panic("adapter bug")
				},
			}
			Expect(manager.Register(executor)).To(Succeed())
			fake.ActionRuns = append(fake.ActionRuns, pendingRun("r1", "deploy", nil))

			ctx, cancel := context.WithCancel(context.Background())
			done := startManager(ctx)

			Eventually(func() []types.ActionRunStatus { return runPatches("r1") }, "5s").
				Should(Equal([]types.ActionRunStatus{types.ActionRunStatusInProgress, types.ActionRunStatusFailure}))
			fake.Lock.Lock()
			summary := fake.RunPatches["r1"][1].Summary
			fake.Lock.Unlock()
			Expect(summary).To(ContainSubstring("executor panicked"))

			cancel()
			Eventually(done, "5s").Should(BeClosed())
		})

		It("should serialize runs sharing a partition key and parallelize across partitions", func() {
			var lock sync.Mutex
			active := map[string]int{}
			violated := false
			var order []string

			executor := &fakeExecutor{
				name: "deploy",
				partition: func(run *types.ActionRun) *string {
					env := run.Payload["env"].(string)
					return &env
				},
				execute: func(ctx context.Context, run *types.ActionRun) error {
					env := run.Payload["env"].(string)
					lock.Lock()
					active[env]++
					if active[env] > 1 {
						violated = true
					}
					order = append(order, run.ID)
					lock.Unlock()
					time.Sleep(50 * time.Millisecond)
					lock.Lock()
					active[env]--
					lock.Unlock()
					return client.PatchRun(ctx, run.ID, &types.ActionRunPatch{Status: types.ActionRunStatusSuccess})
				},
			}
			Expect(manager.Register(executor)).To(Succeed())
			fake.ActionRuns = append(fake.ActionRuns,
				pendingRun("prod-1", "deploy", map[string]any{"env": "prod"}),
				pendingRun("prod-2", "deploy", map[string]any{"env": "prod"}),
				pendingRun("dev-1", "deploy", map[string]any{"env": "dev"}),
			)

			ctx, cancel := context.WithCancel(context.Background())
			done := startManager(ctx)

			for _, id := range []string{"prod-1", "prod-2", "dev-1"} {
				Eventually(func() []types.ActionRunStatus { return runPatches(id) }, "10s").
					Should(ContainElement(types.ActionRunStatusSuccess))
			}
			lock.Lock()
			Expect(violated).To(BeFalse())
			prodOrder := []string{}
			for _, id := range order {
				if id == "prod-1" || id == "prod-2" {
					prodOrder = append(prodOrder, id)
				}
			}
			lock.Unlock()
			Expect(prodOrder).To(Equal([]string{"prod-1", "prod-2"}))

			cancel()
			Eventually(done, "5s").Should(BeClosed())
		})

		It("should pick a run up again when its acknowledgment fails", func() {
			executor := &fakeExecutor{
				name: "deploy",
				execute: func(ctx context.Context, run *types.ActionRun) error {
					return client.PatchRun(ctx, run.ID, &types.ActionRunPatch{Status: types.ActionRunStatusSuccess})
				},
			}
			Expect(manager.Register(executor)).To(Succeed())
			fake.ActionRuns = append(fake.ActionRuns, pendingRun("r1", "deploy", nil))
			// the first acknowledgment attempt dies on a transport error; the
			// run stays pending portal-side and must be fetched again
			fake.FailOnce["/v1/actions/runs/r1"] = 500

			ctx, cancel := context.WithCancel(context.Background())
			done := startManager(ctx)

			Eventually(func() []types.ActionRunStatus { return runPatches("r1") }, "5s").
				Should(Equal([]types.ActionRunStatus{types.ActionRunStatusInProgress, types.ActionRunStatusSuccess}))

			cancel()
			Eventually(done, "5s").Should(BeClosed())
		})

		It("should skip runs already acknowledged elsewhere", func() {
			// a slower poll keeps the re-poll out of the race window below
			manager = actions.NewManager(client.WithFeature("actions"), logr.Discard(), actions.Options{
				PollCheckInterval:     ref(200 * time.Millisecond),
				MaxWaitBeforeShutdown: ref(2 * time.Second),
			})
			var executed sync.Map
			executor := &fakeExecutor{
				name: "deploy",
				execute: func(ctx context.Context, run *types.ActionRun) error {
					executed.Store(run.ID, true)
					return nil
				},
			}
			Expect(manager.Register(executor)).To(Succeed())
			run := pendingRun("r1", "deploy", nil)
			fake.ActionRuns = append(fake.ActionRuns, run)
			// a competing instance wins the acknowledgment race
			fake.FailOnce["/v1/actions/runs/r1"] = 409

			ctx, cancel := context.WithCancel(context.Background())
			done := startManager(ctx)

			// the winning instance moves the run to in-progress
			Eventually(func() int {
				fake.Lock.Lock()
				defer fake.Lock.Unlock()
				count := 0
				for _, request := range fake.Requests {
					if request.Method == "PATCH" && request.Path == "/v1/actions/runs/r1" {
						count++
					}
				}
				return count
			}, "5s").Should(BeNumerically(">=", 1))
			fake.Lock.Lock()
			run.Status = types.ActionRunStatusInProgress
			fake.Lock.Unlock()

			Consistently(func() bool {
				_, ok := executed.Load("r1")
				return ok
			}, "500ms").Should(BeFalse())

			cancel()
			Eventually(done, "5s").Should(BeClosed())
		})
	})
})

func ref[T any](x T) *T {
	return &x
}
