/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/stream"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// work is the single worker of one path queue; it preserves the arrival
// order of events on that path.
func (r *Runtime) work(ctx context.Context, queue *pathQueue) {
	defer r.workers.Done()
	log := r.log.WithValues("path", queue.path)
	for liveEvent := range queue.events {
		eventCtx, _ := event.Start(ctx, event.TypeLiveEvent, event.TriggerRequest, event.Options{IsolatedAttributes: true})
		eventCtx = logr.NewContext(eventCtx, log.WithValues("liveEvent", liveEvent.ID))
		r.handle(eventCtx, queue, liveEvent)
	}
}

func (r *Runtime) handle(ctx context.Context, queue *pathQueue, liveEvent *types.LiveEvent) {
	log := logr.FromContextOrDiscard(ctx)

	appConfig, err := r.appConfig(ctx)
	if err != nil {
		log.Error(err, "error fetching app config; dropping live event")
		metrics.LiveEvents.WithLabelValues(queue.path, "failed").Inc()
		return
	}

	processed := false
	failed := false
	for _, processor := range queue.processors {
		if !processor.ShouldProcess(liveEvent) {
			continue
		}
		if !processor.Authenticate(liveEvent.Payload, liveEvent.Headers) {
			log.Info("live event failed authentication; dropping")
			metrics.LiveEvents.WithLabelValues(queue.path, "dropped").Inc()
			return
		}
		if !processor.ValidatePayload(liveEvent.Payload) {
			log.Info("live event failed payload validation; dropping")
			metrics.LiveEvents.WithLabelValues(queue.path, "dropped").Inc()
			return
		}
		for _, kind := range processor.MatchingKinds(liveEvent) {
			for _, resource := range appConfig.ResourcesForKind(kind) {
				processed = true
				if err := r.handleResource(ctx, processor, liveEvent, appConfig, resource); err != nil {
					log.Error(err, "live event processing failed", "kind", kind)
					failed = true
				}
			}
		}
	}

	switch {
	case failed:
		metrics.LiveEvents.WithLabelValues(queue.path, "failed").Inc()
	case processed:
		metrics.LiveEvents.WithLabelValues(queue.path, "processed").Inc()
	default:
		metrics.LiveEvents.WithLabelValues(queue.path, "dropped").Inc()
	}
}

// handleResource calls the processor's handler with retry, then applies
// the result targetedly: only the returned records are mapped and
// upserted/deleted, without any catalog search.
func (r *Runtime) handleResource(ctx context.Context, processor Processor, liveEvent *types.LiveEvent, appConfig *types.PortAppConfig, resource types.ResourceConfig) error {
	result, err := r.handleWithRetry(ctx, processor, liveEvent, resource)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	if len(result.Updated) > 0 {
		mapped, err := r.processor.ProcessBatch(ctx, stream.Batch(result.Updated), resource)
		if err != nil {
			return errors.Wrap(err, "error mapping updated records")
		}
		applied, err := r.applier.Upsert(ctx, appConfig, mapped.Entities)
		if err != nil {
			return err
		}
		if len(applied.Errors) > 0 {
			return applied.Errors[0]
		}
	}
	if len(result.Deleted) > 0 {
		mapped, err := r.processor.ProcessBatch(ctx, stream.Batch(result.Deleted), resource)
		if err != nil {
			return errors.Wrap(err, "error mapping deleted records")
		}
		deleted := r.applier.Delete(ctx, appConfig, mapped.Entities)
		if len(deleted.Errors) > 0 {
			return deleted.Errors[0]
		}
	}
	return nil
}

// handleWithRetry retries handle failures with exponential backoff on the
// same worker, preserving per-path ordering.
func (r *Runtime) handleWithRetry(ctx context.Context, processor Processor, liveEvent *types.LiveEvent, resource types.ResourceConfig) (*types.LiveEventResult, error) {
	delay := *r.retry.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= *r.retry.MaxRetries; attempt++ {
		result, err := processor.HandleEvent(ctx, liveEvent, resource)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == *r.retry.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = time.Duration(float64(delay) * *r.retry.Multiplier)
		if delay > *r.retry.MaxDelay {
			delay = *r.retry.MaxDelay
		}
	}
	return nil, errors.Wrapf(lastErr, "handle retries exhausted after %d attempts", *r.retry.MaxRetries)
}
