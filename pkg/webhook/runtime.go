/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/pkg/applier"
	"github.com/sap/portal-integration-runtime/pkg/mapping"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Options are creation options for a Runtime.
type Options struct {
	// Capacity of each per-path queue. If unspecified, 100 is assumed.
	QueueSize *int
	// How long Shutdown waits for the per-path queues to drain. If
	// unspecified, 30 seconds is assumed.
	DrainTimeout *time.Duration
	// Retry policy for handle-event failures.
	Retry RetryOptions
}

// Runtime routes inbound live events to their registered processors: one
// FIFO queue and one worker per path (ordering preserved per path,
// parallel across paths), with authenticate/validate gating and retry on
// handle failures. Results are applied targetedly, without a full catalog
// search.
type Runtime struct {
	processor *mapping.Processor
	applier   *applier.Applier
	appConfig func(ctx context.Context) (*types.PortAppConfig, error)
	log       logr.Logger

	queueSize    int
	drainTimeout time.Duration
	retry        RetryOptions

	lock      sync.Mutex
	paths     []*pathQueue
	started   bool
	accepting bool
	workers   sync.WaitGroup
}

type pathQueue struct {
	path       string
	pattern    glob.Glob
	processors []Processor
	events     chan *types.LiveEvent
}

// NewRuntime creates a new live-event runtime. appConfig resolves the
// current app config at handling time (usually the orchestrator's cached
// fetch).
func NewRuntime(processor *mapping.Processor, app *applier.Applier, appConfig func(ctx context.Context) (*types.PortAppConfig, error), log logr.Logger, options Options) *Runtime {
	if options.QueueSize == nil {
		options.QueueSize = ref(100)
	}
	if options.DrainTimeout == nil {
		options.DrainTimeout = ref(30 * time.Second)
	}
	options.Retry.applyDefaults()
	return &Runtime{
		processor:    processor,
		applier:      app,
		appConfig:    appConfig,
		log:          log.WithName("webhook"),
		queueSize:    *options.QueueSize,
		drainTimeout: *options.DrainTimeout,
		retry:        options.Retry,
	}
}

// Register adds processors under a path pattern (glob syntax, matched
// against the request path below the integration prefix). Registering the
// same pattern again appends to the existing processor list. Registration
// must happen before Start.
func (r *Runtime) Register(pattern string, processors ...Processor) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started {
		return errors.New("cannot register processors after start")
	}
	for _, queue := range r.paths {
		if queue.path == pattern {
			queue.processors = append(queue.processors, processors...)
			return nil
		}
	}
	compiled, err := glob.Compile(pattern, '/')
	if err != nil {
		return errors.Wrapf(err, "invalid path pattern %q", pattern)
	}
	r.paths = append(r.paths, &pathQueue{
		path:       pattern,
		pattern:    compiled,
		processors: processors,
		events:     make(chan *types.LiveEvent, r.queueSize),
	})
	return nil
}

// Paths returns the registered path patterns, in registration order.
func (r *Runtime) Paths() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	paths := make([]string, len(r.paths))
	for i, queue := range r.paths {
		paths[i] = queue.path
	}
	return paths
}

// Start launches one worker per registered path.
func (r *Runtime) Start(ctx context.Context) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.accepting = true
	for _, queue := range r.paths {
		r.workers.Add(1)
		go r.work(ctx, queue)
	}
}

// Shutdown stops accepting new events and waits for the queues to drain,
// up to the configured timeout; whatever has not been processed by then is
// abandoned.
func (r *Runtime) Shutdown() {
	r.lock.Lock()
	if !r.started || !r.accepting {
		r.lock.Unlock()
		return
	}
	r.accepting = false
	for _, queue := range r.paths {
		close(queue.events)
	}
	r.lock.Unlock()

	drained := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(r.drainTimeout):
		r.log.Info("drain timeout expired; abandoning queued live events")
	}
}

// ServeHTTP accepts an inbound live event: it parses body and headers,
// routes by path, and enqueues. Processing is asynchronous; the response
// only acknowledges receipt.
func (r *Runtime) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	payload := map[string]any{}
	if request.Body != nil {
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			http.Error(writer, "invalid JSON payload", http.StatusBadRequest)
			return
		}
	}

	liveEvent := &types.LiveEvent{
		ID:         uuid.NewString(),
		Path:       request.URL.Path,
		Method:     request.Method,
		Headers:    request.Header.Clone(),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}

	// the lock is held through the enqueue so that Shutdown cannot close
	// the queue between the accepting check and the send
	r.lock.Lock()
	defer r.lock.Unlock()

	var target *pathQueue
	for _, queue := range r.paths {
		if queue.pattern.Match(request.URL.Path) {
			target = queue
			break
		}
	}
	if target == nil {
		http.Error(writer, "no processor registered for path", http.StatusNotFound)
		return
	}
	if !r.accepting {
		http.Error(writer, "shutting down", http.StatusServiceUnavailable)
		return
	}

	select {
	case target.events <- liveEvent:
		writer.WriteHeader(http.StatusAccepted)
	default:
		metrics.LiveEvents.WithLabelValues(target.path, "dropped").Inc()
		http.Error(writer, "queue full", http.StatusTooManyRequests)
	}
}
