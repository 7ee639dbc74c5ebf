/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"net/http"
	"time"
)

// LiveEvent is an inbound HTTP notification from a third party, processed
// targetedly (only the touched entities are reconciled).
type LiveEvent struct {
	ID         string
	Path       string
	Method     string
	Headers    http.Header
	Payload    map[string]any
	ReceivedAt time.Time
}

// LiveEventResult is the outcome of a webhook processor's handle call:
// raw records to be mapped and upserted, and raw records whose mapped
// entities are to be deleted.
type LiveEventResult struct {
	Updated []map[string]any
	Deleted []map[string]any
}
