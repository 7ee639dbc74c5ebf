/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/sap/portal-integration-runtime/internal/metrics"
	"github.com/sap/portal-integration-runtime/internal/version"
)

const userAgentPrefix = "portal-integration"

// ClientOptions are creation options for a Client.
type ClientOptions struct {
	// Portal API base URL (including scheme, excluding trailing slash).
	BaseURL string
	// Credentials used against POST /v1/auth/access_token.
	ClientID     string
	ClientSecret string
	// Integration identity; becomes part of the user-agent label.
	IntegrationType       string
	IntegrationIdentifier string
	// Feature of the user-agent label. If unspecified, 'exporter' is assumed.
	Feature *string
	// Per-request timeout. If unspecified, 30 seconds is assumed.
	Timeout *time.Duration
	// Maximum retries for retriable requests. If unspecified, 5 is assumed.
	MaxRetries *int
	// Client-side request rate limit. If unspecified, 20 req/s is assumed.
	RequestsPerSecond *float64
	// HTTP client override, mostly for tests.
	HTTPClient *http.Client
}

// Client is a thin wrapper around the portal's REST API. It owns token
// management, retry with backoff, client-side rate limiting, and the
// user-agent labelling identifying the integration's writes.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string

	integrationType       string
	integrationIdentifier string
	feature               string
	userAgent             string

	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int

	tokens *tokenSource
}

// NewClient creates a new portal client.
func NewClient(options ClientOptions) *Client {
	if options.Feature == nil {
		options.Feature = ref("exporter")
	}
	if options.Timeout == nil {
		options.Timeout = ref(30 * time.Second)
	}
	if options.MaxRetries == nil {
		options.MaxRetries = ref(5)
	}
	if options.RequestsPerSecond == nil {
		options.RequestsPerSecond = ref(20.0)
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{}
	}

	c := &Client{
		baseURL:               strings.TrimSuffix(options.BaseURL, "/"),
		clientID:              options.ClientID,
		clientSecret:          options.ClientSecret,
		integrationType:       options.IntegrationType,
		integrationIdentifier: options.IntegrationIdentifier,
		feature:               *options.Feature,
		httpClient:            options.HTTPClient,
		limiter:               rate.NewLimiter(rate.Limit(*options.RequestsPerSecond), int(*options.RequestsPerSecond)),
		timeout:               *options.Timeout,
		maxRetries:            *options.MaxRetries,
	}
	c.userAgent = fmt.Sprintf("%s/%s/%s/%s/%s", userAgentPrefix, c.integrationType, c.integrationIdentifier, version.GetVersion(), c.feature)
	c.tokens = newTokenSource(c)
	return c
}

// WithFeature returns a client sharing this client's transport, limiter
// and token source, but labelling its writes with the given feature.
func (c *Client) WithFeature(feature string) *Client {
	clone := *c
	clone.feature = feature
	clone.userAgent = fmt.Sprintf("%s/%s/%s/%s/%s", userAgentPrefix, c.integrationType, c.integrationIdentifier, version.GetVersion(), feature)
	return &clone
}

// UserAgent returns the label attached to every portal call of this client.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// OwnershipRules returns the search rules selecting entities last written
// by this (integration, feature) pair; the version segment of the label is
// deliberately not part of the match.
func (c *Client) OwnershipRules() []map[string]any {
	return []map[string]any{
		{"property": "$datasource", "operator": "contains", "value": fmt.Sprintf("%s/%s/%s/", userAgentPrefix, c.integrationType, c.integrationIdentifier)},
		{"property": "$datasource", "operator": "contains", "value": "/" + c.feature},
	}
}

type requestOptions struct {
	// no bearer token; used for the token endpoint itself
	anonymous bool
	// retry also non-idempotent methods (POST /v1/auth/access_token)
	forceRetry bool
}

// do issues one API call with rate limiting, authentication, a one-shot
// token refresh on 401, and retry with exponential backoff for idempotent
// methods (respecting Retry-After on 429).
func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any, out any, options requestOptions) error {
	canRetry := options.forceRetry || method == http.MethodGet || method == http.MethodPut || method == http.MethodDelete || method == http.MethodHead

	backoff := cbackoff.NewExponentialBackOff()
	backoff.InitialInterval = 500 * time.Millisecond
	backoff.MaxInterval = 30 * time.Second
	backoff.MaxElapsedTime = 0
	backoff.Reset()

	var err error
	for attempt := 0; ; attempt++ {
		if err = c.doOnce(ctx, method, path, query, body, out, options); err == nil {
			return nil
		}
		if !canRetry || !retriable(err) || attempt >= c.maxRetries {
			return classify(err)
		}
		delay := backoff.NextBackOff()
		if apiErr, ok := asAPIError(err); ok && apiErr.RetryAfter != nil && *apiErr.RetryAfter > delay {
			delay = *apiErr.RetryAfter
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method string, path string, query url.Values, body any, out any, options requestOptions) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	refreshed := false
	for {
		err := c.roundTrip(ctx, method, path, query, body, out, options)
		if err == nil {
			return nil
		}
		// a 401 is retried exactly once with a freshly fetched token; if it
		// recurs the credentials are wrong and the error is terminal
		if apiErr, ok := asAPIError(err); ok && apiErr.StatusCode == http.StatusUnauthorized && !options.anonymous && !refreshed {
			refreshed = true
			c.tokens.invalidate()
			continue
		}
		return err
	}
}

func (c *Client) roundTrip(ctx context.Context, method string, path string, query url.Values, body any, out any, options requestOptions) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "error serializing request body for %s %s", method, path)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if !options.anonymous {
		token, err := c.tokens.get(ctx)
		if err != nil {
			return err
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		metrics.PortalRequests.WithLabelValues(method, "error").Inc()
		return err
	}
	defer response.Body.Close()
	metrics.PortalRequests.WithLabelValues(method, strconv.Itoa(response.StatusCode)).Inc()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newAPIError(method, path, response)
	}
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "error deserializing response of %s %s", method, path)
		}
	}
	return nil
}

func newAPIError(method string, path string, response *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: response.StatusCode,
		Method:     method,
		Path:       path,
	}
	raw, err := io.ReadAll(io.LimitReader(response.Body, 4096))
	if err == nil {
		var parsed struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
			apiErr.Message = parsed.Message
		} else if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			apiErr.Message = parsed.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
	}
	if value := response.Header.Get("Retry-After"); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			apiErr.RetryAfter = ref(time.Duration(seconds) * time.Second)
		}
	}
	return apiErr
}

func ref[T any](x T) *T {
	return &x
}
