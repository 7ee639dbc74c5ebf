/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import "time"

// Action run status. Can be one of 'PENDING', 'IN_PROGRESS', 'SUCCESS', 'FAILURE', 'CANCELED'.
type ActionRunStatus string

const (
	// Action run status 'PENDING'.
	ActionRunStatusPending ActionRunStatus = "PENDING"
	// Action run status 'IN_PROGRESS'.
	ActionRunStatusInProgress ActionRunStatus = "IN_PROGRESS"
	// Action run status 'SUCCESS'.
	ActionRunStatusSuccess ActionRunStatus = "SUCCESS"
	// Action run status 'FAILURE'.
	ActionRunStatusFailure ActionRunStatus = "FAILURE"
	// Action run status 'CANCELED'.
	ActionRunStatusCanceled ActionRunStatus = "CANCELED"
)

// ActionRun is a user-initiated command dispatched from the portal to the
// integration for execution against the third party.
type ActionRun struct {
	ID         string          `json:"id"`
	ActionName string          `json:"action"`
	Payload    map[string]any  `json:"payload,omitempty"`
	Status     ActionRunStatus `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt,omitempty"`
}

// ActionRunPatch updates an action run's state on the portal.
type ActionRunPatch struct {
	Status  ActionRunStatus `json:"status,omitempty"`
	Summary string          `json:"summary,omitempty"`
	Link    string          `json:"link,omitempty"`
}
