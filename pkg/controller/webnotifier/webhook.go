/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPNotifier posts topic messages to webhook subscribers.
type HTTPNotifier struct {
	urls   []string
	client *http.Client
}

// NewHTTPNotifier returns a webhook notifier for the given subscriber URLs.
func NewHTTPNotifier(webhookURLs []string) *HTTPNotifier {
	return &HTTPNotifier{
		urls:   webhookURLs,
		client: &http.Client{Timeout: notificationSendTimeout},
	}
}

// Notify posts the enveloped message to every subscriber.
// The first error encountered is returned.
func (n *HTTPNotifier) Notify(topic string, message []byte) error {
	if topic == "" {
		return fmt.Errorf(emptyTopicErrMsg)
	}

	if len(message) == 0 {
		return fmt.Errorf(emptyMessageErrMsg)
	}

	if len(n.urls) == 0 {
		return nil
	}

	topicMsg, err := PrepareTopicMessage(topic, message)
	if err != nil {
		return fmt.Errorf(failedToCreateErrMsg, err)
	}

	var allErrs error

	for _, webhookURL := range n.urls {
		allErrs = appendError(allErrs, n.post(webhookURL, topicMsg))
	}

	return allErrs
}

func (n *HTTPNotifier) post(destination string, message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), notificationSendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(message))
	if err != nil {
		return fmt.Errorf("create webhook request for %s: %w", destination, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification to %s: %w", destination, err)
	}

	defer closeResponse(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook %s answered %s", destination, resp.Status)
	}

	logger.Debugf("notification delivered to %s", destination)

	return nil
}

func closeResponse(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Errorf("failed to close webhook response body: %s", err)
	}
}
