/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// tokenSource caches the portal access token and refreshes it when it is
// about to expire or after it has been invalidated by a 401.
type tokenSource struct {
	client *Client

	lock    sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(client *Client) *tokenSource {
	return &tokenSource{client: client}
}

func (t *tokenSource) get(ctx context.Context) (string, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	// refresh slightly early to avoid handing out tokens that expire
	// while a request is in flight
	if t.token != "" && time.Now().Add(30*time.Second).Before(t.expires) {
		return t.token, nil
	}

	body := map[string]string{
		"clientId":     t.client.clientID,
		"clientSecret": t.client.clientSecret,
	}
	var response struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := t.client.do(ctx, http.MethodPost, "/v1/auth/access_token", nil, body, &response, requestOptions{anonymous: true, forceRetry: true}); err != nil {
		return "", err
	}
	t.token = response.AccessToken
	t.expires = time.Now().Add(time.Duration(response.ExpiresIn) * time.Second)
	return t.token, nil
}

func (t *tokenSource) invalidate() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.token = ""
	t.expires = time.Time{}
}
