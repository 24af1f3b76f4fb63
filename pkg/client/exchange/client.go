/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange provides a client that drives one credential exchange session on behalf of a holder.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
)

var logger = log.New("vcapi-exchange/client/exchange")

var (
	// ErrSessionBusy is returned when an operation is attempted while another one is in flight.
	ErrSessionBusy = errors.New("exchange session is busy")
	// ErrExchangeFinished is returned when responding to a finished exchange.
	ErrExchangeFinished = errors.New("exchange is finished")
	// ErrNotPresentationRequest is returned when credentials are suggested outside a presentation request.
	ErrNotPresentationRequest = errors.New("exchange is not waiting for a presentation")
)

// provider contains the collaborators of an exchange client.
type provider interface {
	Transport() api.Transport
	Signer() api.Signer
	CredentialIndex() api.CredentialIndex
	Claimer() api.Claimer
}

// Option configures a Client.
type Option func(c *Client)

// WithOpener sets how redirect URLs are opened. By default they are only logged.
func WithOpener(o api.Opener) Option {
	return func(c *Client) {
		c.opener = o
	}
}

// WithObserver is notified of every state the session enters.
func WithObserver(o exchange.Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, o)
	}
}

// Client drives one exchange session from start to end.
// Every operation holds the session for its duration; a concurrent call fails with ErrSessionBusy.
type Client struct {
	machine   *exchange.Machine
	signer    api.Signer
	index     api.CredentialIndex
	claimer   api.Claimer
	opener    api.Opener
	observers []exchange.Observer

	busy int32

	mu        sync.RWMutex
	session   exchange.Session
	selection exchange.Selection
	lastClaim *claim.Result
}

// New returns a client for the exchange at url.
func New(url string, ctx provider, opts ...Option) (*Client, error) {
	c := &Client{
		signer:  ctx.Signer(),
		index:   ctx.CredentialIndex(),
		claimer: ctx.Claimer(),
		opener:  logOpener{},
		session: exchange.NewSession(url),
	}

	for _, opt := range opts {
		opt(c)
	}

	machineOpts := []exchange.MachineOption{exchange.WithObserver(c.setSession)}
	for _, o := range c.observers {
		machineOpts = append(machineOpts, exchange.WithObserver(o))
	}

	m, err := exchange.NewMachine(ctx.Transport(), machineOpts...)
	if err != nil {
		return nil, err
	}

	c.machine = m

	return c, nil
}

// Session returns the current session. While a request is in flight the session is in the loading state.
func (c *Client) Session() exchange.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session
}

// Selected returns the credentials selected for the current presentation request.
func (c *Client) Selected() []json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.selection.Selected()
}

// HasSuggested reports whether credentials were already suggested or selected.
func (c *Client) HasSuggested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.selection.HasSuggested()
}

// LastClaim returns the result of the last claim batch, if any.
func (c *Client) LastClaim() *claim.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastClaim
}

// Start sends the initial request.
func (c *Client) Start(ctx context.Context) (exchange.Session, error) {
	return c.do(func() error {
		return c.advance(ctx, exchange.InitiateBody())
	})
}

// Retry re-sends the last request of a failed session.
func (c *Client) Retry(ctx context.Context) (exchange.Session, error) {
	return c.do(func() error {
		_, err := c.machine.Retry(ctx, c.Session())

		return err
	})
}

// Suggest fills the selection with stored credentials matching the presentation request.
// It runs once per session; afterwards it returns the current selection.
func (c *Client) Suggest(ctx context.Context) ([]json.RawMessage, error) {
	var selected []json.RawMessage

	_, err := c.do(func() error {
		s := c.Session()
		if s.State != exchange.StatePresentationRequest {
			return fmt.Errorf("%w: %s", ErrNotPresentationRequest, s.State)
		}

		c.mu.RLock()
		sel := c.selection
		c.mu.RUnlock()

		var err error

		selected, err = sel.Suggest(ctx, c.index, s.PresentationRequest())
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.selection = sel
		c.mu.Unlock()

		return nil
	})

	return selected, err
}

// Select replaces the selection with the holder's choice.
func (c *Client) Select(creds []json.RawMessage) error {
	_, err := c.do(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.session.State != exchange.StatePresentationRequest {
			return fmt.Errorf("%w: %s", ErrNotPresentationRequest, c.session.State)
		}

		c.selection.Select(creds)

		return nil
	})

	return err
}

// Respond answers the current state and advances the exchange:
// a DID auth request is answered with a DID auth presentation, a presentation request with a
// presentation of the selection, delivered credentials are claimed and acknowledged, and a redirect
// is opened. A failed signature or claim leaves the session in its current state with its failure set
// and returns a *StepError.
func (c *Client) Respond(ctx context.Context) (exchange.Session, error) {
	return c.do(func() error {
		return c.respond(ctx)
	})
}

func (c *Client) respond(ctx context.Context) error {
	s := c.Session()

	switch s.State {
	case exchange.StateInitiate:
		return c.advance(ctx, exchange.InitiateBody())
	case exchange.StateDIDAuth:
		body, err := exchange.DIDAuthBody(ctx, c.signer, s.PresentationRequest(), s.Strategy)
		if err != nil {
			return c.stepFailed(err)
		}

		return c.advance(ctx, body)
	case exchange.StatePresentationRequest:
		body, err := exchange.PresentationBody(ctx, c.signer, s.PresentationRequest(), c.Selected(), s.Strategy)
		if errors.Is(err, exchange.ErrNoCredentialsSelected) {
			return err
		}

		if err != nil {
			return c.stepFailed(err)
		}

		return c.advance(ctx, body)
	case exchange.StateAcceptCredentials:
		body, result, err := exchange.AcceptCredentials(ctx, c.claimer, s.Payload)

		c.mu.Lock()
		c.lastClaim = result
		c.mu.Unlock()

		if err != nil {
			return c.stepFailed(err)
		}

		return c.advance(ctx, body, result.Total())
	case exchange.StateRedirect:
		return exchange.OpenRedirect(ctx, c.opener, s.Payload)
	case exchange.StateError:
		_, err := c.machine.Retry(ctx, s)

		return err
	case exchange.StateFinished:
		return ErrExchangeFinished
	default:
		return fmt.Errorf("%w: respond from %s", exchange.ErrInvalidTransition, s.State)
	}
}

// advance sends body. claimed credentials are added to the session count before the response
// is interpreted.
func (c *Client) advance(ctx context.Context, body interface{}, claimed ...int) error {
	s := c.Session()

	for _, n := range claimed {
		s = s.WithClaimed(n)
	}

	_, err := c.machine.Advance(ctx, s, body)

	return err
}

// setSession records every state the machine enters.
func (c *Client) setSession(s exchange.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = s
}

// do runs op while holding the session.
func (c *Client) do(op func() error) (exchange.Session, error) {
	if !atomic.CompareAndSwapInt32(&c.busy, 0, 1) {
		return c.Session(), ErrSessionBusy
	}

	defer atomic.StoreInt32(&c.busy, 0)

	err := op()

	return c.Session(), err
}

// StepError is a failed signature or claim. The session keeps its state and carries Friendly
// as its failure until the next request is sent.
type StepError struct {
	Friendly *errclass.FriendlyError
	Err      error
}

// Error leads with the summary title.
func (e *StepError) Error() string {
	return e.Friendly.Title + ": " + e.Err.Error()
}

// Unwrap returns the signing or claim error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// stepFailed records err as the failure of the current state.
func (c *Client) stepFailed(err error) error {
	friendly := errclass.Classify(err)

	var claimErr *claim.Error
	if errors.As(err, &claimErr) && claimErr.Friendly != nil {
		friendly = claimErr.Friendly
	}

	c.mu.Lock()
	c.session.Failure = friendly
	c.mu.Unlock()

	return &StepError{Friendly: friendly, Err: err}
}

type logOpener struct{}

func (logOpener) Open(_ context.Context, url string) error {
	logger.Infof("exchange redirect to [%s]", url)

	return nil
}
