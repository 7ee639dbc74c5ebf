/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/applier"
	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/mapping"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/stream"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Resync phase. Can be one of 'idle', 'fetching_config', 'syncing',
// 'reconciling', 'completed', 'failed', 'aborted'.
type Phase string

const (
	// Resync phase 'idle'.
	PhaseIdle Phase = "idle"
	// Resync phase 'fetching_config'.
	PhaseFetchingConfig Phase = "fetching_config"
	// Resync phase 'syncing'.
	PhaseSyncing Phase = "syncing"
	// Resync phase 'reconciling'.
	PhaseReconciling Phase = "reconciling"
	// Resync phase 'completed'.
	PhaseCompleted Phase = "completed"
	// Resync phase 'failed'.
	PhaseFailed Phase = "failed"
	// Resync phase 'aborted'.
	PhaseAborted Phase = "aborted"
)

// StreamSource exposes the adapter's registered resync producers; the
// runtime implements it on top of its registration API.
type StreamSource interface {
	// Streams returns the producers registered for the given kind, in
	// registration order; kinds without producers yield an empty slice.
	Streams(kind string) []stream.ProducerFunc
}

// Options are creation options for an Orchestrator.
type Options struct {
	// How long a fetched app config stays valid before it is re-fetched.
	// Manual triggers always bypass the cache. If unspecified, 60 seconds
	// is assumed.
	ConfigCacheTTL *time.Duration
	// How long a superseding trigger waits for the running resync to stop
	// cooperatively before starting. If unspecified, 30 seconds is assumed.
	AbortGracePeriod *time.Duration
	// Computes the next scheduled resync time reported to the portal; nil
	// when no schedule exists (webhook-only integrations).
	NextResync func() *time.Time
	// Lifecycle hooks, invoked inside the resync event context.
	OnResyncStart    []func(ctx context.Context) error
	OnResyncComplete []func(ctx context.Context) error
}

// Orchestrator drives full resyncs: it fetches the app config, runs the
// adapter streams kind by kind through the mapping pipeline and the
// applier, reconciles deletions, and reports the outcome to the portal.
// Only one resync runs at a time; a new trigger supersedes a running one.
type Orchestrator struct {
	client    *portal.Client
	processor *mapping.Processor
	applier   *applier.Applier
	streams   StreamSource
	log       logr.Logger

	configCacheTTL   time.Duration
	abortGracePeriod time.Duration
	nextResync       func() *time.Time
	onResyncStart    []func(ctx context.Context) error
	onResyncComplete []func(ctx context.Context) error

	// serializes trigger admission: supersede and install of the new run
	// happen under this mutex, so concurrent triggers queue up instead of
	// racing each other into parallel resyncs
	admission sync.Mutex

	lock         sync.Mutex
	current      *run
	cachedConfig *types.PortAppConfig
	cachedAt     time.Time
}

type run struct {
	event *event.Event
	done  chan struct{}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(client *portal.Client, processor *mapping.Processor, app *applier.Applier, streams StreamSource, log logr.Logger, options Options) *Orchestrator {
	if options.ConfigCacheTTL == nil {
		options.ConfigCacheTTL = ref(60 * time.Second)
	}
	if options.AbortGracePeriod == nil {
		options.AbortGracePeriod = ref(30 * time.Second)
	}
	return &Orchestrator{
		client:           client,
		processor:        processor,
		applier:          app,
		streams:          streams,
		log:              log,
		configCacheTTL:   *options.ConfigCacheTTL,
		abortGracePeriod: *options.AbortGracePeriod,
		nextResync:       options.NextResync,
		onResyncStart:    options.OnResyncStart,
		onResyncComplete: options.OnResyncComplete,
	}
}

// TriggerResync runs a full resync for the given trigger type,
// superseding a resync already in progress: the running one is aborted and
// granted a bounded grace period to stop cooperatively, then the new one
// starts. Partially applied state is not rolled back; the new resync
// reconciles it. The call blocks until the new resync finishes.
func (o *Orchestrator) TriggerResync(ctx context.Context, trigger event.TriggerType) error {
	o.admission.Lock()
	o.supersede(ctx)

	ctx, ev := event.Start(ctx, event.TypeResync, trigger, event.Options{IsolatedAttributes: true})
	r := &run{event: ev, done: make(chan struct{})}

	o.lock.Lock()
	o.current = r
	o.lock.Unlock()
	o.admission.Unlock()

	defer func() {
		close(r.done)
		o.lock.Lock()
		if o.current == r {
			o.current = nil
		}
		o.lock.Unlock()
	}()

	return o.resync(ctx, ev, trigger)
}

// Abort aborts the resync currently in progress, if any.
func (o *Orchestrator) Abort() {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.current != nil {
		o.current.event.Abort()
	}
}

func (o *Orchestrator) supersede(ctx context.Context) {
	o.lock.Lock()
	previous := o.current
	o.lock.Unlock()
	if previous == nil {
		return
	}

	o.log.Info("aborting resync in progress before starting a new one")
	previous.event.Abort()
	select {
	case <-previous.done:
	case <-time.After(o.abortGracePeriod):
		o.log.Info("grace period for running resync expired; proceeding")
	case <-ctx.Done():
	}
}

// AppConfig returns the current app config, honoring the cache; used by
// the live-event runtime to resolve resource configs at handling time.
func (o *Orchestrator) AppConfig(ctx context.Context) (*types.PortAppConfig, error) {
	return o.appConfig(ctx, false)
}

// appConfig returns the current app config, re-fetching it from the portal
// when the cache is stale or bypassed.
func (o *Orchestrator) appConfig(ctx context.Context, bypassCache bool) (*types.PortAppConfig, error) {
	o.lock.Lock()
	cached, cachedAt := o.cachedConfig, o.cachedAt
	o.lock.Unlock()

	if !bypassCache && cached != nil && time.Since(cachedAt) < o.configCacheTTL {
		return cached, nil
	}

	config, err := o.client.GetAppConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching app config")
	}
	o.lock.Lock()
	o.cachedConfig, o.cachedAt = config, time.Now()
	o.lock.Unlock()
	return config, nil
}

func ref[T any](x T) *T {
	return &x
}
