/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"golang.org/x/exp/slices"
)

// State of an exchange session.
type State string

const (
	// StateInitiate is the state of a new session before the first request.
	StateInitiate State = "initiate"
	// StatePresentationRequest waits for the holder to select credentials for a QueryByExample request.
	StatePresentationRequest State = "presentation-request"
	// StateAcceptCredentials holds a presentation delivering credentials to claim.
	StateAcceptCredentials State = "accept-credentials"
	// StateRedirect holds a URL the holder must be sent to. Terminal for the client.
	StateRedirect State = "redirect"
	// StateDIDAuth waits for a DID authentication presentation.
	StateDIDAuth State = "did-auth"
	// StateLoading is active while a request is in flight.
	StateLoading State = "loading"
	// StateError holds the failure of the last request. Retry re-sends the last request.
	StateError State = "error"
	// StateFinished ends the exchange.
	StateFinished State = "finished"
)

// nolint:gochecknoglobals
var transitions = map[State][]State{
	StateInitiate:            {StateLoading},
	StatePresentationRequest: {StateLoading},
	StateAcceptCredentials:   {StateLoading},
	StateDIDAuth:             {StateLoading},
	StateError:               {StateLoading},
	StateLoading: {
		StatePresentationRequest, StateAcceptCredentials, StateRedirect,
		StateDIDAuth, StateError, StateFinished,
	},
	StateRedirect: nil,
	StateFinished: nil,
}

// Name of the state.
func (s State) Name() string {
	return string(s)
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	_, ok := transitions[s]

	return ok
}

// CanTransitionTo reports whether next may follow s.
func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(transitions[s], next)
}

// IsTerminal reports whether no further request may be sent from s.
func (s State) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}
