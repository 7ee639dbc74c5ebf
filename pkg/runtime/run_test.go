/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package runtime_test

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	testingutils "github.com/sap/portal-integration-runtime/internal/testing"
	"github.com/sap/portal-integration-runtime/pkg/config"
	"github.com/sap/portal-integration-runtime/pkg/runtime"
	"github.com/sap/portal-integration-runtime/pkg/trigger"
	"github.com/sap/portal-integration-runtime/pkg/types"
	"github.com/sap/portal-integration-runtime/pkg/webhook"
)

// blockingProcessor accepts every event and holds HandleEvent until
// released, then reports one updated record.
type blockingProcessor struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProcessor) ShouldProcess(event *types.LiveEvent) bool { return true }

func (p *blockingProcessor) MatchingKinds(event *types.LiveEvent) []string {
	return []string{"project"}
}

func (p *blockingProcessor) Authenticate(payload map[string]any, headers http.Header) bool {
	return true
}

func (p *blockingProcessor) ValidatePayload(payload map[string]any) bool { return true }

func (p *blockingProcessor) HandleEvent(ctx context.Context, event *types.LiveEvent, resource types.ResourceConfig) (*types.LiveEventResult, error) {
	p.entered <- struct{}{}
	<-p.release
	return &types.LiveEventResult{Updated: []map[string]any{{"id": "w1", "name": "Hook"}}}, nil
}

var _ = Describe("testing: run.go", func() {
	Context("testing: ExitCode()", func() {
		It("should map errors to the host process exit codes", func() {
			Expect(runtime.ExitCode(nil)).To(Equal(runtime.ExitOK))
			Expect(runtime.ExitCode(errors.New("boom"))).To(Equal(runtime.ExitFatal))
			Expect(runtime.ExitCode(trigger.ErrEmptyAssignment)).To(Equal(runtime.ExitEmptyAssignment))
			Expect(runtime.ExitCode(errors.Wrap(trigger.ErrEmptyAssignment, "listener failed"))).To(Equal(runtime.ExitEmptyAssignment))
			Expect(runtime.ExitCode(&types.ConfigError{Key: "portal.baseUrl", Err: errors.New("missing")})).To(Equal(runtime.ExitConfig))
		})
	})

	Context("testing: Run()", func() {
		It("should drain queued live events with live portal calls during shutdown", func() {
			fake := testingutils.NewFakePortal()
			DeferCleanup(fake.Close)
			fake.AppConfig = &types.PortAppConfig{Resources: []types.ResourceConfig{{
				Kind: "project",
				Port: types.MappingsConfig{Entity: types.EntityConfig{Mappings: types.EntityMapping{
					Identifier: ".id",
					Blueprint:  `"Project"`,
				}}},
			}}}

			log := logr.Discard()
			r, err := runtime.New(&config.Spec{Type: "test-integration"}, runtime.Options{
				Environ: []string{
					"OCEAN__PORTAL__BASE_URL=" + fake.Server.URL,
					"OCEAN__PORTAL__CLIENT_ID=test-client",
					"OCEAN__PORTAL__CLIENT_SECRET=test-secret",
					"OCEAN__INTEGRATION__IDENTIFIER=test",
					"OCEAN__EVENT_LISTENER__TYPE=webhooks_only",
					"OCEAN__SERVER__PORT=18491",
				},
				Logger:  &log,
				Webhook: webhook.Options{DrainTimeout: ref(5 * time.Second)},
			})
			Expect(err).NotTo(HaveOccurred())

			processor := &blockingProcessor{entered: make(chan struct{}, 1), release: make(chan struct{})}
			Expect(r.OnWebhook("/hook", processor)).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan struct{})
			go func() {
				defer close(done)
				r.Run(ctx)
			}()

			Eventually(func() int {
				response, err := http.Post("http://127.0.0.1:18491/integration/hook", "application/json", strings.NewReader(`{"id":"w1"}`))
				if err != nil {
					return 0
				}
				defer response.Body.Close()
				return response.StatusCode
			}, "10s").Should(Equal(http.StatusAccepted))
			Eventually(processor.entered, "5s").Should(Receive())

			// shutdown begins while the event is still being handled; the
			// handler's portal calls must still go through
			cancel()
			close(processor.release)

			Eventually(done, "10s").Should(BeClosed())
			Expect(fake.EntityIdentifiers("Project")).To(ConsistOf("w1"))
		})
	})
})

func ref[T any](x T) *T {
	return &x
}
