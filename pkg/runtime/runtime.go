/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package runtime

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sap/portal-integration-runtime/pkg/actions"
	"github.com/sap/portal-integration-runtime/pkg/applier"
	"github.com/sap/portal-integration-runtime/pkg/config"
	"github.com/sap/portal-integration-runtime/pkg/expr"
	"github.com/sap/portal-integration-runtime/pkg/expr/jq"
	"github.com/sap/portal-integration-runtime/pkg/mapping"
	"github.com/sap/portal-integration-runtime/pkg/orchestrator"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/stream"
	"github.com/sap/portal-integration-runtime/pkg/trigger"
	"github.com/sap/portal-integration-runtime/pkg/types"
	"github.com/sap/portal-integration-runtime/pkg/webhook"
)

// Options are creation options for a Runtime.
type Options struct {
	// Environment the configuration is read from. If unspecified,
	// os.Environ() is assumed.
	Environ []string
	// Logger used by the whole runtime. If unspecified, a production zap
	// logger is constructed.
	Logger *logr.Logger
	// Expression evaluator for selectors and mappings. If unspecified, the
	// jq evaluator is assumed.
	Evaluator expr.Evaluator
	// Message source for the cooperative listener; required only for that
	// listener type.
	MessageSource trigger.MessageSource
	// App config installed on the portal at startup when it has none and
	// initializePortalResources is set.
	DefaultAppConfig *types.PortAppConfig
	// Overrides for the pipeline stages; zero values take the stage
	// defaults.
	Mapping mapping.ProcessorOptions
	Applier applier.Options
	Webhook webhook.Options
}

// Runtime owns all components of one integration instance: configuration,
// portal client, mapping pipeline, orchestrator, listeners, live-event
// runtime, action manager and the exposed HTTP surface. Hosts create one
// Runtime, register their adapter pieces, and call Run.
type Runtime struct {
	spec   *config.Spec
	config *config.Config
	log    logr.Logger

	client       *portal.Client
	processor    *mapping.Processor
	applier      *applier.Applier
	orchestrator *orchestrator.Orchestrator
	webhooks     *webhook.Runtime
	actions      *actions.Manager
	listener     trigger.Listener

	defaultAppConfig *types.PortAppConfig

	lock    sync.Mutex
	streams map[string][]stream.ProducerFunc
	started bool
	baseCtx context.Context
}

// baseContext is the runtime's root context while Run is active; used for
// background work spawned from HTTP handlers.
func (r *Runtime) baseContext() context.Context {
	if r.baseCtx != nil {
		return r.baseCtx
	}
	return context.Background()
}

// New loads and validates the configuration against the integration
// specification and assembles the runtime. Configuration failures are
// ConfigError values (exit code 3).
func New(spec *config.Spec, options Options) (*Runtime, error) {
	if options.Environ == nil {
		options.Environ = os.Environ()
	}
	if options.Logger == nil {
		zapLog, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		log := zapr.NewLogger(zapLog)
		options.Logger = &log
	}
	if options.Evaluator == nil {
		options.Evaluator = jq.NewEvaluator()
	}

	cfg, err := config.Load(spec, options.Environ)
	if err != nil {
		return nil, err
	}
	log := options.Logger.WithName(spec.Type)
	log.Info("configuration loaded", "config", spec.RedactedConfig(cfg))

	r := &Runtime{
		spec:             spec,
		config:           cfg,
		log:              log,
		defaultAppConfig: options.DefaultAppConfig,
		streams:          map[string][]stream.ProducerFunc{},
	}

	r.client = portal.NewClient(portal.ClientOptions{
		BaseURL:               cfg.Portal.BaseURL,
		ClientID:              cfg.Portal.ClientID,
		ClientSecret:          cfg.Portal.ClientSecret,
		IntegrationType:       spec.Type,
		IntegrationIdentifier: cfg.Integration.Identifier,
	})
	r.processor = mapping.NewProcessor(options.Evaluator, options.Mapping)
	r.applier = applier.NewApplier(r.client, options.Applier)
	r.orchestrator = orchestrator.NewOrchestrator(r.client, r.processor, r.applier, r, log, orchestrator.Options{
		NextResync: r.nextResync,
	})
	r.webhooks = webhook.NewRuntime(r.processor, r.applier, r.orchestrator.AppConfig, log, options.Webhook)
	r.actions = actions.NewManager(r.client.WithFeature("actions"), log, actionOptions(cfg.Actions))

	r.listener, err = trigger.New(cfg.EventListener, r.orchestrator, r.client, options.MessageSource, log)
	if err != nil {
		return nil, &types.ConfigError{Key: "eventListener", Err: err}
	}

	return r, nil
}

// Config returns the loaded configuration.
func (r *Runtime) Config() *config.Config {
	return r.config
}

// Client returns the portal client (labelled with the default feature).
func (r *Runtime) Client() *portal.Client {
	return r.client
}

// Logger returns the runtime's logger.
func (r *Runtime) Logger() logr.Logger {
	return r.log
}

// OnResync registers a stream producer for a kind; multiple producers per
// kind run in registration order.
func (r *Runtime) OnResync(kind string, producer stream.ProducerFunc) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started {
		return errors.New("cannot register producers after start")
	}
	r.streams[kind] = append(r.streams[kind], producer)
	return nil
}

// OnWebhook registers live-event processors under a path pattern.
func (r *Runtime) OnWebhook(pattern string, processors ...webhook.Processor) error {
	return r.webhooks.Register(pattern, processors...)
}

// OnAction registers an action executor.
func (r *Runtime) OnAction(executor actions.Executor) error {
	return r.actions.Register(executor)
}

// Streams implements orchestrator.StreamSource.
func (r *Runtime) Streams(kind string) []stream.ProducerFunc {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.streams[kind]
}

func (r *Runtime) nextResync() *time.Time {
	if listener, ok := r.listener.(*trigger.PollingListener); ok {
		return listener.NextResync()
	}
	return nil
}

// TriggerResync runs a resync outside of the listener schedule (e.g. from
// the HTTP trigger endpoint).
func (r *Runtime) TriggerResync(ctx context.Context, triggerType string) error {
	return r.orchestrator.TriggerResync(ctx, triggerTypeOf(triggerType))
}

func actionOptions(cfg config.ActionsConfig) actions.Options {
	options := actions.Options{
		WorkersCount:            cfg.WorkersCount,
		RunsBufferHighWatermark: cfg.RunsBufferHighWatermark,
	}
	if cfg.PollCheckIntervalSeconds != nil {
		options.PollCheckInterval = ref(time.Duration(*cfg.PollCheckIntervalSeconds) * time.Second)
	}
	if cfg.VisibilityTimeoutMS != nil {
		options.VisibilityTimeout = ref(time.Duration(*cfg.VisibilityTimeoutMS) * time.Millisecond)
	}
	if cfg.MaxWaitSecondsBeforeShutdown != nil {
		options.MaxWaitBeforeShutdown = ref(time.Duration(*cfg.MaxWaitSecondsBeforeShutdown) * time.Second)
	}
	return options
}

func ref[T any](x T) *T {
	return &x
}
