/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package controller assembles the command and REST handlers of the exchange service.
package controller

import (
	"time"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/analytics"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command"
	exchangecmd "github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/rest"
	exchangerest "github.com/learningeconomy/vcapi-exchange-go/pkg/controller/rest/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/webnotifier"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
)

// WSPath is where websocket clients subscribe to session notifications.
const WSPath = "/ws"

// Provider supplies the exchange dependencies.
type Provider interface {
	Transport() api.Transport
	Signer() api.Signer
	CredentialIndex() api.CredentialIndex
	Claimer() api.Claimer
}

type allOpts struct {
	webhookURLs []string
	notifier    webnotifier.Notifier
	metrics     *analytics.Metrics
	timeout     time.Duration
}

// Opt represents a controller option.
type Opt func(opts *allOpts)

// WithWebhookURLs posts session notifications to the given subscribers.
func WithWebhookURLs(webhookURLs ...string) Opt {
	return func(opts *allOpts) {
		opts.webhookURLs = webhookURLs
	}
}

// WithNotifier replaces the default webhook and websocket notifier.
func WithNotifier(notifier webnotifier.Notifier) Opt {
	return func(opts *allOpts) {
		opts.notifier = notifier
	}
}

// WithMetrics records exchange metrics on m.
func WithMetrics(m *analytics.Metrics) Opt {
	return func(opts *allOpts) {
		opts.metrics = m
	}
}

// WithTimeout bounds each exchange operation.
func WithTimeout(timeout time.Duration) Opt {
	return func(opts *allOpts) {
		opts.timeout = timeout
	}
}

type handlerProvider interface {
	GetRESTHandlers() []rest.Handler
}

// Controller exposes one exchange session registry through REST and command handlers.
type Controller struct {
	command  *exchangecmd.Command
	rest     *exchangerest.Operation
	notifier webnotifier.Notifier
	observer *webnotifier.Observer
}

// New creates the exchange controller. Close stops its notification delivery.
func New(ctx Provider, opts ...Opt) *Controller {
	o := &allOpts{}
	for _, opt := range opts {
		opt(o)
	}

	notifier := o.notifier
	if notifier == nil {
		notifier = webnotifier.New(WSPath, o.webhookURLs)
	}

	c := &Controller{
		notifier: notifier,
		observer: webnotifier.NewObserver(notifier),
	}

	c.command = exchangecmd.New(ctx, commandOptions(o, c.observer)...)
	c.rest = exchangerest.NewFromCommand(c.command)

	return c
}

// GetRESTHandlers returns all REST handlers provided by controller.
func (c *Controller) GetRESTHandlers() []rest.Handler {
	var allHandlers []rest.Handler
	allHandlers = append(allHandlers, c.rest.GetRESTHandlers()...)

	if nhp, ok := c.notifier.(handlerProvider); ok {
		allHandlers = append(allHandlers, nhp.GetRESTHandlers()...)
	}

	return allHandlers
}

// GetCommandHandlers returns all command handlers provided by controller.
func (c *Controller) GetCommandHandlers() []command.Handler {
	return c.command.GetHandlers()
}

// Close delivers pending session notifications and stops the observer.
func (c *Controller) Close() {
	c.observer.Stop()
}

func commandOptions(o *allOpts, observer *webnotifier.Observer) []exchangecmd.Option {
	cmdOpts := []exchangecmd.Option{
		exchangecmd.WithObserver(observer.Observe),
	}

	if o.metrics != nil {
		cmdOpts = append(cmdOpts, exchangecmd.WithMetrics(o.metrics))
	}

	if o.timeout > 0 {
		cmdOpts = append(cmdOpts, exchangecmd.WithTimeout(o.timeout))
	}

	return cmdOpts
}
