/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Processor is an adapter-provided live-event processor. Multiple
// processors may be registered on the same path; they are consulted in
// registration order.
type Processor interface {
	// ShouldProcess decides whether this processor handles the event at
	// all; non-matching processors are skipped silently.
	ShouldProcess(event *types.LiveEvent) bool
	// MatchingKinds returns the kinds whose resource configs the event
	// affects.
	MatchingKinds(event *types.LiveEvent) []string
	// Authenticate verifies the event's origin; a failure drops the event
	// terminally (401).
	Authenticate(payload map[string]any, headers http.Header) bool
	// ValidatePayload checks the payload shape; a failure drops the event
	// terminally (400).
	ValidatePayload(payload map[string]any) bool
	// HandleEvent fetches the affected raw records from the third party.
	// Failures are retried with exponential backoff on the same worker.
	HandleEvent(ctx context.Context, event *types.LiveEvent, resource types.ResourceConfig) (*types.LiveEventResult, error)
}

// RetryOptions parameterize the handle-event retry policy.
type RetryOptions struct {
	// Total number of attempts. If unspecified, 3 is assumed.
	MaxRetries *int
	// Delay before the first retry. If unspecified, 1 second is assumed.
	InitialDelay *time.Duration
	// Delay multiplier between retries. If unspecified, 2 is assumed.
	Multiplier *float64
	// Upper bound on the delay. If unspecified, 30 seconds is assumed.
	MaxDelay *time.Duration
}

func (o *RetryOptions) applyDefaults() {
	if o.MaxRetries == nil {
		o.MaxRetries = ref(3)
	}
	if o.InitialDelay == nil {
		o.InitialDelay = ref(time.Second)
	}
	if o.Multiplier == nil {
		o.Multiplier = ref(2.0)
	}
	if o.MaxDelay == nil {
		o.MaxDelay = ref(30 * time.Second)
	}
}

func ref[T any](x T) *T {
	return &x
}
