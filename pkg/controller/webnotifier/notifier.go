/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package webnotifier pushes exchange session updates to webhook subscribers and websocket clients.
package webnotifier

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/rest"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange"
)

//go:generate mockgen -destination ../../internal/gomocks/controller/webnotifier/mocks.gen.go -package webnotifier github.com/learningeconomy/vcapi-exchange-go/pkg/controller/webnotifier Notifier

var logger = log.New("vcapi-exchange/webnotifier")

// SessionTopic is the topic of exchange session notifications.
const SessionTopic = "exchange-session"

const (
	notificationSendTimeout = 10 * time.Second
	observerQueueSize       = 64

	emptyTopicErrMsg     = "cannot notify with an empty topic"
	emptyMessageErrMsg   = "cannot notify with an empty message"
	failedToCreateErrMsg = "failed to create topic message : %w"
)

// Notifier publishes a message on a topic.
type Notifier interface {
	Notify(topic string, message []byte) error
}

// WebNotifier notifies webhook subscribers and websocket clients.
type WebNotifier struct {
	notifiers []Notifier
	handlers  []rest.Handler
}

// New returns a notifier posting to webhookURLs and serving websocket clients on wsPath.
func New(wsPath string, webhookURLs []string) *WebNotifier {
	ws := NewWSNotifier(wsPath)

	return &WebNotifier{
		notifiers: []Notifier{ws, NewHTTPNotifier(webhookURLs)},
		handlers:  ws.GetRESTHandlers(),
	}
}

// Notify publishes message to every subscriber. The first error is returned.
func (n *WebNotifier) Notify(topic string, message []byte) error {
	var allErrs error

	for _, notifier := range n.notifiers {
		allErrs = appendError(allErrs, notifier.Notify(topic, message))
	}

	return allErrs
}

// GetRESTHandlers returns the websocket endpoint.
func (n *WebNotifier) GetRESTHandlers() []rest.Handler {
	return n.handlers
}

type topicMessage struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// PrepareTopicMessage wraps message into the envelope sent to subscribers.
func PrepareTopicMessage(topic string, message []byte) ([]byte, error) {
	return json.Marshal(&topicMessage{
		ID:      uuid.New().String(),
		Topic:   topic,
		Message: message,
	})
}

func appendError(errs, err error) error {
	if errs == nil {
		return err
	}

	return errs
}

// Observer publishes exchange session states in the order they are entered.
// Delivery runs on its own goroutine.
type Observer struct {
	notifier Notifier
	sessions chan exchange.Session
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewObserver starts an observer publishing on SessionTopic through notifier.
func NewObserver(notifier Notifier) *Observer {
	o := &Observer{
		notifier: notifier,
		sessions: make(chan exchange.Session, observerQueueSize),
		done:     make(chan struct{}),
	}

	go o.run()

	return o
}

// Observe queues a session state. States are dropped while the queue is full
// or after the observer is stopped.
func (o *Observer) Observe(s exchange.Session) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.stopped {
		return
	}

	select {
	case o.sessions <- s:
	default:
		logger.Warnf("notification queue full, dropping state [%s] of session [%s]", s.State, s.ID)
	}
}

// Stop delivers the queued states and stops the observer. Calling Stop again is a no-op.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.sessions)
	}
	o.mu.Unlock()

	<-o.done
}

func (o *Observer) run() {
	defer close(o.done)

	for s := range o.sessions {
		msg, err := json.Marshal(s)
		if err != nil {
			logger.Errorf("marshal session [%s] notification: %s", s.ID, err)

			continue
		}

		if err = o.notifier.Notify(SessionTopic, msg); err != nil {
			logger.Warnf("session [%s] notification failed: %s", s.ID, err)
		}
	}
}
