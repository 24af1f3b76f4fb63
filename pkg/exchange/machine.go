/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/log"
	spilog "github.com/hyperledger/aries-framework-go/spi/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
)

var logger = log.New("vcapi-exchange/exchange")

// UnknownResponseMessage is the failure reason of an unrecognized response without a message.
const UnknownResponseMessage = "Unknown response from exchange server"

var (
	// ErrInvalidTransition is returned when a request is sent from a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrMissingURL is returned when the session has no exchange URL.
	ErrMissingURL = errors.New("exchange url is required")
	// ErrNoTransport is returned by NewMachine when no transport is given.
	ErrNoTransport = errors.New("exchange machine requires a transport")
)

// Observer is notified of every state the machine enters, including Loading.
type Observer func(s Session)

// MachineOption configures a Machine.
type MachineOption func(m *Machine)

// WithObserver registers an observer.
func WithObserver(o Observer) MachineOption {
	return func(m *Machine) {
		m.observers = append(m.observers, o)
	}
}

// WithMachineLogger overrides the module logger.
func WithMachineLogger(l spilog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithMachineTracer overrides the global OpenTelemetry tracer.
func WithMachineTracer(t trace.Tracer) MachineOption {
	return func(m *Machine) {
		m.tracer = t
	}
}

// Machine drives a session from one response to the next.
type Machine struct {
	transport api.Transport
	observers []Observer
	logger    spilog.Logger
	tracer    trace.Tracer
}

// NewMachine returns a machine sending requests through transport.
func NewMachine(transport api.Transport, opts ...MachineOption) (*Machine, error) {
	if transport == nil {
		return nil, ErrNoTransport
	}

	m := &Machine{transport: transport, logger: logger}

	for _, opt := range opts {
		opt(m)
	}

	if m.tracer == nil {
		m.tracer = otel.Tracer("vcapi-exchange/exchange")
	}

	return m, nil
}

// Advance sends body to the exchange and returns the session in the state the response leads to.
// A nil body is sent as an empty object. Transport failures and unrecognized responses are not
// returned as errors: they move the session to the error state. Advance only returns an error
// when the session cannot send a request at all.
func (m *Machine) Advance(ctx context.Context, s Session, body interface{}) (Session, error) {
	if s.URL == "" {
		return s, ErrMissingURL
	}

	if !s.State.CanTransitionTo(StateLoading) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, StateLoading)
	}

	if body == nil {
		body = map[string]interface{}{}
	}

	ctx, span := m.tracer.Start(ctx, "exchange.advance", trace.WithAttributes(
		attribute.String("exchange.session_id", s.ID),
		attribute.String("exchange.from_state", s.State.Name())))
	defer span.End()

	next := s
	next.LastRequest = body
	next.Failure = nil
	next.Payload = nil
	next.State = StateLoading
	m.notify(next)

	resp, err := m.transport.Post(ctx, s.URL, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		next = m.fail(next, failureReason(err), errclass.Classify(err))
	} else {
		next = m.apply(next, ClassifyJSON(resp))
	}

	span.SetAttributes(attribute.String("exchange.to_state", next.State.Name()),
		attribute.String("exchange.strategy", string(next.Strategy)))

	m.logger.Debugf("exchange session [%s]: %s -> %s", next.ID, s.State, next.State)
	m.notify(next)

	return next, nil
}

// Retry re-sends the last request of a session in the error state.
func (m *Machine) Retry(ctx context.Context, s Session) (Session, error) {
	if s.State != StateError {
		return s, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, s.State)
	}

	return m.Advance(ctx, s, s.LastRequest)
}

func (m *Machine) apply(s Session, c *Classification) Session {
	if c.Kind != KindUnknown && s.Strategy == StrategyUndetermined {
		s.Strategy = c.Strategy
	}

	switch c.Kind {
	case KindPresentationRequest:
		s.Payload = c.Data

		switch {
		case !ParsePresentationRequest(c.Data).RequiresDIDAuth():
			s.State = StatePresentationRequest
		case s.ClaimCount > 0:
			// a DID auth request after credentials were claimed ends the exchange.
			s.State = StateFinished
			s.Payload = nil
		default:
			s.State = StateDIDAuth
		}
	case KindPresentation:
		s.State = StateAcceptCredentials
		s.Payload = c.Data
	case KindRedirect:
		s.State = StateRedirect
		s.Payload = c.Data
	case KindUnknown:
		msg, ok := serverMessage(c.Data)
		if !ok {
			msg = UnknownResponseMessage
		}

		m.logger.Warnf("exchange session [%s]: unrecognized response: %s", s.ID, msg)

		s = m.fail(s, msg, errclass.ClassifyMessage(msg))
	}

	return s
}

func (m *Machine) fail(s Session, reason interface{}, friendly *errclass.FriendlyError) Session {
	s.State = StateError
	s.Payload = reason
	s.Failure = friendly

	return s
}

func (m *Machine) notify(s Session) {
	for _, o := range m.observers {
		o(s)
	}
}

// failureReason is the status code of a transport error, or the error text.
func failureReason(err error) interface{} {
	var te *api.TransportError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return te.StatusCode
	}

	return err.Error()
}
