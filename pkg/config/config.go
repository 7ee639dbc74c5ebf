/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package config

// Listener type. Can be one of 'polling', 'cooperative', 'webhooks_only'.
type ListenerType string

const (
	// Listener type 'polling'.
	ListenerTypePolling ListenerType = "polling"
	// Listener type 'cooperative'.
	ListenerTypeCooperative ListenerType = "cooperative"
	// Listener type 'webhooks_only'.
	ListenerTypeWebhooksOnly ListenerType = "webhooks_only"
)

// PortalConfig holds the portal endpoint and credentials.
type PortalConfig struct {
	BaseURL      string `json:"baseUrl" validate:"required,url"`
	ClientID     string `json:"clientId" validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
}

// ListenerConfig selects and parameterizes the event listener variant.
type ListenerConfig struct {
	Type ListenerType `json:"type" validate:"required,oneof=polling cooperative webhooks_only"`
	// Polling: app config fingerprint check interval. If unspecified, 60
	// seconds is assumed.
	PollingIntervalSeconds *int `json:"pollingIntervalSeconds,omitempty" validate:"omitempty,min=1"`
	// Polling: periodic full resync interval; nil disables the periodic
	// resync.
	ResyncIntervalSeconds *int `json:"resyncIntervalSeconds,omitempty" validate:"omitempty,min=1"`
	// Cooperative: how long an empty partition assignment is tolerated
	// before the process exits for a host-side restart. If unspecified,
	// 300 seconds is assumed.
	EmptyAssignmentTimeoutSeconds *int `json:"emptyAssignmentTimeoutSeconds,omitempty" validate:"omitempty,min=1"`
}

// ServerConfig parameterizes the exposed HTTP surface.
type ServerConfig struct {
	// Listen port. If unspecified, 8000 is assumed.
	Port *int `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	// Allowed CORS origins; empty allows none.
	CORSOrigins []string `json:"corsOrigins,omitempty"`
}

// ActionsConfig parameterizes the action execution manager.
type ActionsConfig struct {
	// Size of the worker pool. If unspecified, 1 is assumed.
	WorkersCount *int `json:"workersCount,omitempty" validate:"omitempty,min=1"`
	// Poll interval for pending runs. If unspecified, 5 seconds is assumed.
	PollCheckIntervalSeconds *int `json:"pollCheckIntervalSeconds,omitempty" validate:"omitempty,min=1"`
	// Bound on a poll fetch and deadline for a single execution. If
	// unspecified, 30000 is assumed.
	VisibilityTimeoutMS *int `json:"visibilityTimeoutMs,omitempty" validate:"omitempty,min=1000"`
	// Polling pauses while this many runs are buffered. If unspecified, 50
	// is assumed.
	RunsBufferHighWatermark *int `json:"runsBufferHighWatermark,omitempty" validate:"omitempty,min=1"`
	// Grace period granted to workers at shutdown. If unspecified, 30
	// seconds is assumed.
	MaxWaitSecondsBeforeShutdown *int `json:"maxWaitSecondsBeforeShutdown,omitempty" validate:"omitempty,min=0"`
}

// IntegrationConfig identifies the integration instance and carries its
// specification-validated options.
type IntegrationConfig struct {
	Identifier string         `json:"identifier" validate:"required"`
	Config     map[string]any `json:"config,omitempty"`
}

// Config is the full runtime configuration, loaded from OCEAN__ prefixed
// environment variables and validated against the integration
// specification.
type Config struct {
	Portal        PortalConfig      `json:"portal"`
	EventListener ListenerConfig    `json:"eventListener"`
	Server        ServerConfig      `json:"server,omitempty"`
	Actions       ActionsConfig     `json:"actions,omitempty"`
	Integration   IntegrationConfig `json:"integration"`
	// Create portal-side resources (blueprints, app config) at startup if
	// missing.
	InitializePortalResources bool `json:"initializePortalResources,omitempty"`
}
