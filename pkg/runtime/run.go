/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/trigger"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Exit codes of a runtime host process.
const (
	// ExitOK marks a normal shutdown.
	ExitOK = 0
	// ExitFatal marks an unrecoverable runtime error.
	ExitFatal = 1
	// ExitEmptyAssignment marks a cooperative listener losing its partition
	// assignment; the host should restart the integration.
	ExitEmptyAssignment = 2
	// ExitConfig marks a misconfiguration at startup.
	ExitConfig = 3
)

// ExitCode maps an error returned by New or Run to the host process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, trigger.ErrEmptyAssignment):
		return ExitEmptyAssignment
	default:
		configErr := &types.ConfigError{}
		if errors.As(err, &configErr) {
			return ExitConfig
		}
		return ExitFatal
	}
}

// Run starts the runtime and blocks until the context is cancelled or a
// component fails terminally. Shutdown order: the HTTP listener stops
// accepting first, then the live-event queues drain, then the action
// manager winds down, then an in-flight resync is aborted.
func (r *Runtime) Run(ctx context.Context) error {
	r.lock.Lock()
	if r.started {
		r.lock.Unlock()
		return errors.New("runtime already started")
	}
	r.started = true
	r.lock.Unlock()

	ctx, _ = event.Start(ctx, event.TypeStart, event.TriggerMachine)
	r.baseCtx = ctx

	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	server := r.buildServer()
	// the live-event workers outlive group cancellation: queued events are
	// still handled (with live portal calls) while Shutdown drains
	webhookCtx, cancelWebhooks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWebhooks()
	r.webhooks.Start(webhookCtx)

	group.Go(func() error {
		r.log.Info("serving HTTP", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if r.actions.HasExecutors() {
		group.Go(func() error {
			return r.actions.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return r.listener.Run(groupCtx)
	})

	// shutdown sequencing on context cancellation (or component failure)
	group.Go(func() error {
		<-groupCtx.Done()
		r.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			r.log.Error(err, "error shutting down HTTP server")
		}
		r.webhooks.Shutdown()
		cancelWebhooks()
		// the action manager drains itself when groupCtx is cancelled
		r.orchestrator.Abort()
		return nil
	})

	err := group.Wait()
	r.log.Info("shutdown complete")
	return err
}

// bootstrap ensures the portal-side resources exist: with
// initializePortalResources set and no app config on the portal yet, the
// default app config shipped with the integration is installed.
func (r *Runtime) bootstrap(ctx context.Context) error {
	integration, err := r.client.GetIntegration(ctx)
	if err != nil {
		if !portal.IsNotFound(err) {
			return errors.Wrap(err, "error fetching integration at startup")
		}
		integration = nil
	}

	if !r.config.InitializePortalResources {
		return nil
	}
	if integration != nil && integration.Config != nil {
		return nil
	}
	if r.defaultAppConfig == nil {
		return errors.New("portal has no app config and no default app config was provided")
	}
	r.log.Info("installing default app config on the portal")
	return r.client.CreateAppConfig(ctx, r.defaultAppConfig)
}
