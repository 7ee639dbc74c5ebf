/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// PollActionRuns fetches pending action runs addressed to this
// integration, oldest first. Runs stay pending until acknowledged, so a
// run whose acknowledgment failed reappears in a later poll.
func (c *Client) PollActionRuns(ctx context.Context, limit int) ([]*types.ActionRun, error) {
	query := url.Values{}
	query.Set("status", string(types.ActionRunStatusPending))
	query.Set("limit", strconv.Itoa(limit))
	var response struct {
		Runs []*types.ActionRun `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/actions/runs", query, nil, &response, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "error polling action runs")
	}
	return response.Runs, nil
}

// PatchRun updates an action run's status and summary on the portal.
func (c *Client) PatchRun(ctx context.Context, id string, patch *types.ActionRunPatch) error {
	err := c.do(ctx, http.MethodPatch, "/v1/actions/runs/"+url.PathEscape(id), nil, patch, nil, requestOptions{})
	return errors.Wrapf(err, "error patching action run %s", id)
}
