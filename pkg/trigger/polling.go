/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package trigger

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/sap/portal-integration-runtime/pkg/config"
	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/portal"
)

// PollingListener triggers a resync whenever the portal-side app config
// changes (detected by fingerprint comparison), and independently on a
// periodic schedule.
type PollingListener struct {
	orchestrator Orchestrator
	client       *portal.Client
	log          logr.Logger

	pollInterval   time.Duration
	resyncInterval time.Duration

	lastFingerprint string
	nextResync      time.Time
}

func NewPollingListener(cfg config.ListenerConfig, orchestrator Orchestrator, client *portal.Client, log logr.Logger) *PollingListener {
	pollInterval := 60 * time.Second
	if cfg.PollingIntervalSeconds != nil {
		pollInterval = time.Duration(*cfg.PollingIntervalSeconds) * time.Second
	}
	resyncInterval := time.Duration(0)
	if cfg.ResyncIntervalSeconds != nil {
		resyncInterval = time.Duration(*cfg.ResyncIntervalSeconds) * time.Second
	}
	return &PollingListener{
		orchestrator:   orchestrator,
		client:         client,
		log:            log.WithName("polling-listener"),
		pollInterval:   pollInterval,
		resyncInterval: resyncInterval,
	}
}

// NextResync returns the time of the next scheduled periodic resync; nil
// when periodic resyncs are disabled.
func (l *PollingListener) NextResync() *time.Time {
	if l.resyncInterval == 0 {
		return nil
	}
	next := l.nextResync
	return &next
}

// Run performs an initial resync and then watches for config changes and
// the periodic schedule. Resyncs run synchronously on the listener's
// goroutine; a tick arriving mid-resync is observed afterwards.
func (l *PollingListener) Run(ctx context.Context) error {
	l.lastFingerprint = l.fetchFingerprint(ctx)
	l.scheduleNext()
	l.resync(ctx, event.TriggerMachine)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if fingerprint := l.fetchFingerprint(ctx); fingerprint != "" && fingerprint != l.lastFingerprint {
			l.log.Info("app config changed; triggering resync")
			l.lastFingerprint = fingerprint
			l.scheduleNext()
			l.resync(ctx, event.TriggerMachine)
			continue
		}
		if l.resyncInterval > 0 && !time.Now().Before(l.nextResync) {
			l.log.Info("periodic resync due; triggering resync")
			l.scheduleNext()
			l.resync(ctx, event.TriggerMachine)
		}
	}
}

func (l *PollingListener) resync(ctx context.Context, trigger event.TriggerType) {
	if err := l.orchestrator.TriggerResync(ctx, trigger); err != nil {
		l.log.Error(err, "resync finished with errors")
	}
}

func (l *PollingListener) scheduleNext() {
	if l.resyncInterval > 0 {
		l.nextResync = time.Now().Add(l.resyncInterval)
	}
}

func (l *PollingListener) fetchFingerprint(ctx context.Context) string {
	appConfig, err := l.client.GetAppConfig(ctx)
	if err != nil {
		l.log.Error(err, "error fetching app config for change detection")
		return ""
	}
	return config.Fingerprint(appConfig)
}
