/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package http posts exchange requests over HTTP.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
)

var logger = log.New("vcapi-exchange/transport/http")

const (
	contentType = "application/json"
	// maxErrorBody bounds the part of a failed response read for its message.
	maxErrorBody = 64 * 1024
)

type outboundOpts struct {
	client  *http.Client
	headers http.Header
}

// OutboundOpt is an outbound HTTP transport option.
type OutboundOpt func(opts *outboundOpts)

// WithHTTPClient sets the http.Client used to post requests.
func WithHTTPClient(client *http.Client) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = client
	}
}

// WithTimeout sets the client timeout.
func WithTimeout(timeout time.Duration) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client.Timeout = timeout
	}
}

// WithTLSConfig uses a client with the given TLS configuration.
func WithTLSConfig(tlsConfig *tls.Config) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = &http.Client{
			Timeout: opts.client.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.headers.Add(key, value)
	}
}

// Outbound posts JSON requests to exchange endpoints.
type Outbound struct {
	client  *http.Client
	headers http.Header
}

// NewOutbound returns an outbound transport. Without options it uses a client with no timeout;
// callers bound requests with the context.
func NewOutbound(opts ...OutboundOpt) *Outbound {
	o := &outboundOpts{client: &http.Client{}, headers: http.Header{}}

	for _, opt := range opts {
		opt(o)
	}

	return &Outbound{client: o.client, headers: o.headers}
}

// Post sends body as JSON and returns the response body. Non-2xx responses are returned as
// *api.TransportError carrying the server message when the body has one.
func (t *Outbound) Post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal exchange request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "create exchange request")
	}

	for k, v := range t.headers {
		req.Header[k] = v
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		logger.Errorf("post exchange request to [%s]: %v", url, err)

		return nil, errors.Wrapf(err, "post exchange request to %s", url)
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Errorf("close response body: %v", e)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) // nolint:errcheck

		logger.Warnf("exchange at [%s] answered %s", url, resp.Status)

		return nil, &api.TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read exchange response")
	}

	return respBody, nil
}

// errorMessage reads "message" or "error" from a JSON error body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}

	if e.Message != "" {
		return e.Message
	}

	return e.Error
}
