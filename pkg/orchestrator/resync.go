/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/pkg/applier"
	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/stream"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// maximum number of error strings included in the reported resync state
const maxReportedErrors = 20

// resyncRun carries the state accumulated while one resync executes.
type resyncRun struct {
	orchestrator *Orchestrator
	event        *event.Event
	trigger      event.TriggerType
	config       *types.PortAppConfig
	started      time.Time
	// upserted entity keys per blueprint; protected from deletion
	keep map[string][]types.EntityKey
	// failed-selector keys per blueprint; records still present upstream
	stillUpstream map[string][]types.EntityKey
	// blueprints of cleanly synced resources; reconciled even when the
	// stream produced no entities at all
	touched map[string]bool
	// non-fatal errors collected across kinds
	errs *multierror.Error
}

func (o *Orchestrator) resync(ctx context.Context, ev *event.Event, trigger event.TriggerType) error {
	log := o.log.WithValues("event", ev.ID(), "trigger", string(trigger))
	ctx = logr.NewContext(ctx, log)
	log.Info("starting resync")

	r := &resyncRun{
		orchestrator:  o,
		event:         ev,
		trigger:       trigger,
		started:       time.Now(),
		keep:          map[string][]types.EntityKey{},
		stillUpstream: map[string][]types.EntityKey{},
		touched:       map[string]bool{},
	}

	config, err := o.appConfig(ctx, trigger == event.TriggerManual)
	if err != nil {
		// an unreadable app config is fatal; nothing can be synced
		r.reportState(ctx, portal.ResyncStatusFailed, err)
		metrics.Resyncs.WithLabelValues(string(trigger), string(PhaseFailed)).Inc()
		return err
	}
	r.config = config
	r.reportState(ctx, portal.ResyncStatusRunning, nil)

	for _, hook := range o.onResyncStart {
		if err := hook(ctx); err != nil {
			r.collect("", "hook", err)
		}
	}

	for _, kind := range config.Kinds() {
		if ev.Aborted() {
			break
		}
		if fatal := r.syncKind(ctx, kind); fatal != nil {
			r.reportState(ctx, portal.ResyncStatusFailed, fatal)
			metrics.Resyncs.WithLabelValues(string(trigger), string(PhaseFailed)).Inc()
			return fatal
		}
	}

	if !ev.Aborted() {
		r.reconcile(ctx)
	}

	phase := PhaseCompleted
	status := portal.ResyncStatusCompleted
	switch {
	case ev.Aborted():
		phase, status = PhaseAborted, portal.ResyncStatusAborted
	case r.errs.ErrorOrNil() != nil:
		phase, status = PhaseFailed, portal.ResyncStatusFailed
	}

	if phase == PhaseCompleted {
		for _, hook := range o.onResyncComplete {
			if err := hook(ctx); err != nil {
				r.collect("", "hook", err)
			}
		}
	}

	r.reportState(ctx, status, r.errs.ErrorOrNil())
	metrics.Resyncs.WithLabelValues(string(trigger), string(phase)).Inc()
	log.Info("resync finished", "phase", string(phase), "errors", r.errCount())
	return r.errs.ErrorOrNil()
}

// syncKind runs all producers registered for one kind through the mapping
// pipeline and the upsert phase. Only authentication failures are fatal;
// everything else is collected and the resync continues.
func (r *resyncRun) syncKind(ctx context.Context, kind string) error {
	o := r.orchestrator
	ctx, kindEvent := event.Start(ctx, event.TypeResync, r.trigger, event.Options{AppConfig: r.config})
	log := logr.FromContextOrDiscard(ctx).WithValues("kind", kind)
	ctx = logr.NewContext(ctx, log)

	producers := o.streams.Streams(kind)
	if len(producers) == 0 {
		log.Info("no producer registered for kind; skipping")
		r.collect(kind, "no_producer", errors.Errorf("no producer registered for kind %s", kind))
		return nil
	}
	resources := r.config.ResourcesForKind(kind)

	// a resource stays clean while its stream and its mapping succeed; only
	// clean resources take part in the deletion diff for their blueprint
	clean := make([]bool, len(resources))
	for i := range clean {
		clean[i] = true
	}
	markDirty := func() {
		for i := range clean {
			clean[i] = false
		}
	}

	for _, producer := range producers {
		s := stream.New(ctx, producer)
		for {
			if kindEvent.Aborted() {
				s.Close()
				return nil
			}
			extractStart := time.Now()
			batch, ok, err := s.NextBatch(ctx)
			metrics.PhaseDuration.WithLabelValues(kind, metrics.PhaseExtract).Observe(time.Since(extractStart).Seconds())
			if err != nil {
				adapterErr := &types.AdapterError{Kind: kind, Err: err}
				if isFatal(err) {
					s.Close()
					return adapterErr
				}
				r.collect(kind, "adapter", adapterErr)
				markDirty()
				break
			}
			if !ok {
				break
			}
			for i, resource := range resources {
				intact, fatal := r.processBatch(ctx, kind, resource, batch)
				if fatal != nil {
					s.Close()
					return fatal
				}
				if !intact {
					clean[i] = false
				}
				if kindEvent.Aborted() {
					break
				}
			}
		}
	}

	if kindEvent.Aborted() {
		return nil
	}
	// an empty (or fully filtered) stream still reconciles its blueprint;
	// without this, stale entities of a drained kind would persist forever
	for i, resource := range resources {
		if !clean[i] {
			continue
		}
		if blueprint, ok := o.processor.StaticBlueprint(ctx, resource); ok {
			r.touched[blueprint] = true
		}
	}
	return nil
}

// processBatch runs one batch through the mapping pipeline and the upsert
// phase. The returned flag reports whether the resource's identity mapping
// held up for every record; once it is false, the resource's blueprint is
// excluded from the empty-stream deletion diff.
func (r *resyncRun) processBatch(ctx context.Context, kind string, resource types.ResourceConfig, batch stream.Batch) (bool, error) {
	o := r.orchestrator

	transformStart := time.Now()
	result, err := o.processor.ProcessBatch(ctx, batch, resource)
	metrics.PhaseDuration.WithLabelValues(kind, metrics.PhaseTransform).Observe(time.Since(transformStart).Seconds())
	if err != nil {
		// broken mapping expressions; every batch of this resource would
		// fail the same way, but other resources of the kind still run
		metrics.Objects.WithLabelValues(kind, metrics.PhaseMisconfigured).Add(float64(len(batch)))
		r.collect(kind, "mapping", err)
		return false, nil
	}

	metrics.Objects.WithLabelValues(kind, metrics.PhaseFiltered).Add(float64(result.Filtered))
	metrics.Objects.WithLabelValues(kind, metrics.PhaseMisconfigured).Add(float64(result.Misconfigured))
	for _, err := range result.Errors {
		r.collect(kind, "mapping", err)
	}
	for _, key := range result.FailedKeys {
		r.stillUpstream[key.Blueprint] = append(r.stillUpstream[key.Blueprint], key)
	}
	// misconfigured records have an unknown upstream identity and cannot be
	// protected individually
	clean := result.Misconfigured == 0
	if len(result.Entities) == 0 {
		return clean, nil
	}

	loadStart := time.Now()
	applied, err := o.applier.Upsert(ctx, r.config, result.Entities)
	metrics.PhaseDuration.WithLabelValues(kind, metrics.PhaseLoad).Observe(time.Since(loadStart).Seconds())
	r.recordApplied(kind, applied)
	if err != nil && !errors.Is(err, types.ErrAborted) {
		if isFatal(err) {
			return clean, err
		}
		r.collect(kind, "apply", err)
	}
	return clean, nil
}

// reconcile runs the deletion diff for every blueprint touched in this
// pass.
func (r *resyncRun) reconcile(ctx context.Context) {
	o := r.orchestrator

	touched := map[string]bool{}
	for blueprint := range r.touched {
		touched[blueprint] = true
	}
	for blueprint := range r.keep {
		touched[blueprint] = true
	}
	for blueprint := range r.stillUpstream {
		touched[blueprint] = true
	}

	for blueprint := range touched {
		if r.event.Aborted() {
			return
		}
		result, err := o.applier.Reconcile(ctx, r.config, blueprint, r.keep[blueprint], r.stillUpstream[blueprint])
		r.recordApplied(blueprint, result)
		if err != nil && !errors.Is(err, types.ErrAborted) {
			r.collect("", "reconcile", err)
		}
	}
}

func (r *resyncRun) recordApplied(kind string, result *applier.Result) {
	if result == nil {
		return
	}
	metrics.Objects.WithLabelValues(kind, metrics.PhaseCreated).Add(float64(len(result.Created)))
	metrics.Objects.WithLabelValues(kind, metrics.PhaseUpdated).Add(float64(len(result.Updated)))
	metrics.Objects.WithLabelValues(kind, metrics.PhaseDeleted).Add(float64(len(result.Deleted)))
	metrics.Objects.WithLabelValues(kind, metrics.PhaseFailed).Add(float64(len(result.Failed)))
	for _, key := range result.Created {
		r.keep[key.Blueprint] = append(r.keep[key.Blueprint], key)
	}
	for _, key := range result.Updated {
		r.keep[key.Blueprint] = append(r.keep[key.Blueprint], key)
	}
	// entities produced this pass whose upsert failed (cyclic subgraphs,
	// unrecovered missing relations, transport errors) are still present
	// upstream; the deletion diff must not touch them
	for _, key := range result.Failed {
		r.stillUpstream[key.Blueprint] = append(r.stillUpstream[key.Blueprint], key)
	}
	for _, err := range result.Errors {
		r.collect(kind, "apply", err)
	}
}

func (r *resyncRun) errCount() int {
	if r.errs == nil {
		return 0
	}
	return len(r.errs.Errors)
}

func (r *resyncRun) collect(kind string, errorType string, err error) {
	r.errs = multierror.Append(r.errs, err)
	metrics.ResyncErrors.WithLabelValues(kind, errorType).Inc()
}

func (r *resyncRun) reportState(ctx context.Context, status portal.ResyncStatus, err error) {
	o := r.orchestrator
	state := &portal.IntegrationState{
		Status:          status,
		LastResyncStart: ref(r.started),
	}
	if status != portal.ResyncStatusRunning {
		state.LastResyncEnd = ref(time.Now())
	}
	if o.nextResync != nil {
		state.NextResync = o.nextResync()
	}
	if err != nil {
		if merr, ok := err.(*multierror.Error); ok {
			for _, e := range merr.Errors {
				if len(state.Errors) >= maxReportedErrors {
					break
				}
				state.Errors = append(state.Errors, e.Error())
			}
		} else {
			state.Errors = []string{err.Error()}
		}
	}
	if err := o.client.UpdateIntegrationState(ctx, state); err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "error reporting resync state")
	}
}

// isFatal reports whether an error must abort the resync immediately
// (credentials rejected by the portal).
func isFatal(err error) bool {
	authErr := &types.AuthError{}
	return errors.As(err, &authErr)
}
