/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package trigger

import (
	"context"

	"github.com/go-logr/logr"
)

// WebhooksOnlyListener never triggers a resync of its own; live events are
// the integration's only data source.
type WebhooksOnlyListener struct {
	log logr.Logger
}

func NewWebhooksOnlyListener(log logr.Logger) *WebhooksOnlyListener {
	return &WebhooksOnlyListener{log: log.WithName("webhooks-only-listener")}
}

func (l *WebhooksOnlyListener) Run(ctx context.Context) error {
	l.log.Info("webhooks-only mode; no resync will be scheduled")
	<-ctx.Done()
	return nil
}
