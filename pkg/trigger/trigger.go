/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package trigger

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/config"
	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/portal"
)

// ErrEmptyAssignment is returned by the cooperative listener when the
// external bus leaves this instance without a partition assignment for too
// long; the host should restart the integration (exit code 2).
var ErrEmptyAssignment = errors.New("partition assignment empty for too long")

// Orchestrator is the single interface all listener variants emit to.
type Orchestrator interface {
	TriggerResync(ctx context.Context, trigger event.TriggerType) error
}

// Listener drives resyncs from some external signal. Run blocks until the
// context is cancelled or the listener fails terminally.
type Listener interface {
	Run(ctx context.Context) error
}

// New creates the listener variant selected by the configuration. The
// cooperative variant additionally needs a message source; passing nil for
// any other variant is fine.
func New(cfg config.ListenerConfig, orchestrator Orchestrator, client *portal.Client, source MessageSource, log logr.Logger) (Listener, error) {
	switch cfg.Type {
	case config.ListenerTypePolling:
		return NewPollingListener(cfg, orchestrator, client, log), nil
	case config.ListenerTypeCooperative:
		if source == nil {
			return nil, errors.New("cooperative listener requires a message source")
		}
		return NewCooperativeListener(cfg, orchestrator, source, log), nil
	case config.ListenerTypeWebhooksOnly:
		return NewWebhooksOnlyListener(log), nil
	default:
		return nil, errors.Errorf("unknown listener type %q", cfg.Type)
	}
}
