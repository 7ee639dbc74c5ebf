/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Integration is the portal-side representation of this integration,
// including the app config users maintain through the portal UI.
type Integration struct {
	Identifier string               `json:"identifier"`
	Type       string               `json:"integrationType"`
	Config     *types.PortAppConfig `json:"config,omitempty"`
	State      *IntegrationState    `json:"resyncState,omitempty"`
}

// Resync status as reported to the portal. Can be one of 'running',
// 'completed', 'failed', 'aborted'.
type ResyncStatus string

const (
	// Resync status 'running'.
	ResyncStatusRunning ResyncStatus = "running"
	// Resync status 'completed'.
	ResyncStatusCompleted ResyncStatus = "completed"
	// Resync status 'failed'.
	ResyncStatusFailed ResyncStatus = "failed"
	// Resync status 'aborted'.
	ResyncStatusAborted ResyncStatus = "aborted"
)

// IntegrationState is the user-visible resync state object updated on the
// portal after each resync event.
type IntegrationState struct {
	Status          ResyncStatus `json:"status"`
	LastResyncStart *time.Time   `json:"lastResyncStart,omitempty"`
	LastResyncEnd   *time.Time   `json:"lastResyncEnd,omitempty"`
	Errors          []string     `json:"errors,omitempty"`
	NextResync      *time.Time   `json:"nextResync,omitempty"`
}

// GetIntegration fetches this integration's portal representation.
func (c *Client) GetIntegration(ctx context.Context) (*Integration, error) {
	integration := &Integration{}
	if err := c.do(ctx, http.MethodGet, "/v1/integration/"+url.PathEscape(c.integrationIdentifier), nil, nil, integration, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "error fetching integration")
	}
	return integration, nil
}

// GetAppConfig fetches the current app config. A missing config is an
// error; the runtime bootstraps a default config at startup if the portal
// has none.
func (c *Client) GetAppConfig(ctx context.Context) (*types.PortAppConfig, error) {
	integration, err := c.GetIntegration(ctx)
	if err != nil {
		return nil, err
	}
	if integration.Config == nil {
		return nil, errors.New("integration has no app config")
	}
	return integration.Config, nil
}

// CreateAppConfig installs an app config for this integration; used at
// startup when the portal has none (bootstrap from the integration
// specification's defaults).
func (c *Client) CreateAppConfig(ctx context.Context, config *types.PortAppConfig) error {
	body := map[string]any{"config": config}
	err := c.do(ctx, http.MethodPatch, "/v1/integration/"+url.PathEscape(c.integrationIdentifier), nil, body, nil, requestOptions{})
	return errors.Wrap(err, "error creating app config")
}

// UpdateIntegrationState reports the resync state object to the portal.
func (c *Client) UpdateIntegrationState(ctx context.Context, state *IntegrationState) error {
	body := map[string]any{"resyncState": state}
	err := c.do(ctx, http.MethodPatch, "/v1/integration/"+url.PathEscape(c.integrationIdentifier)+"/resync-state", nil, body, nil, requestOptions{})
	return errors.Wrap(err, "error updating integration state")
}
