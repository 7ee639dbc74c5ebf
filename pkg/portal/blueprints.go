/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Blueprint is the schema reference the runtime needs; the full schema is
// owned by the portal.
type Blueprint struct {
	Identifier string         `json:"identifier"`
	Title      string         `json:"title,omitempty"`
	Schema     map[string]any `json:"schema,omitempty"`
	Relations  map[string]any `json:"relations,omitempty"`
}

// Migration status. Can be one of 'RUNNING', 'COMPLETE', 'FAILURE'.
type MigrationStatus string

const (
	// Migration status 'RUNNING'.
	MigrationStatusRunning MigrationStatus = "RUNNING"
	// Migration status 'COMPLETE'.
	MigrationStatusComplete MigrationStatus = "COMPLETE"
	// Migration status 'FAILURE'.
	MigrationStatusFailure MigrationStatus = "FAILURE"
)

// Migration is an asynchronous portal-side bulk operation (e.g. deleting
// all entities of a blueprint).
type Migration struct {
	ID     string          `json:"id"`
	Status MigrationStatus `json:"status"`
}

// GetBlueprint fetches a blueprint by identifier.
func (c *Client) GetBlueprint(ctx context.Context, identifier string) (*Blueprint, error) {
	blueprint := &Blueprint{}
	if err := c.do(ctx, http.MethodGet, "/v1/blueprints/"+url.PathEscape(identifier), nil, nil, blueprint, requestOptions{}); err != nil {
		return nil, errors.Wrapf(err, "error fetching blueprint %s", identifier)
	}
	return blueprint, nil
}

// PatchBlueprint applies a partial update to a blueprint.
func (c *Client) PatchBlueprint(ctx context.Context, identifier string, patch map[string]any) error {
	err := c.do(ctx, http.MethodPatch, "/v1/blueprints/"+url.PathEscape(identifier), nil, patch, nil, requestOptions{})
	return errors.Wrapf(err, "error patching blueprint %s", identifier)
}

// GetMigration fetches the status of an asynchronous migration.
func (c *Client) GetMigration(ctx context.Context, id string) (*Migration, error) {
	migration := &Migration{}
	if err := c.do(ctx, http.MethodGet, "/v1/migrations/"+url.PathEscape(id), nil, nil, migration, requestOptions{}); err != nil {
		return nil, errors.Wrapf(err, "error fetching migration %s", id)
	}
	return migration, nil
}
