/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"encoding/json"

	vcapi "github.com/learningeconomy/vcapi-exchange-go/pkg/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
)

// StartRequest is request model for starting an exchange.
type StartRequest struct {
	// URL of the exchange endpoint, typically taken from a claim link.
	URL string `json:"url"`
}

// IDRequest is request model for every operation addressing an existing session.
type IDRequest struct {
	SessionID string `json:"sessionID"`
}

// SelectRequest is request model for replacing the credentials selected for a presentation request.
type SelectRequest struct {
	SessionID   string            `json:"sessionID"`
	Credentials []json.RawMessage `json:"credentials"`
}

// SessionResponse is response model of every operation returning a session.
type SessionResponse struct {
	Session vcapi.Session `json:"session"`

	// Selected credentials of a presentation request.
	Selected []json.RawMessage `json:"selected,omitempty"`

	// HasSuggested is true once credentials were suggested or selected.
	HasSuggested bool `json:"hasSuggested"`

	// Claim is the result of the last claim batch.
	Claim *claim.Result `json:"claim,omitempty"`

	// RedirectURL is set once the holder was sent to the issuer's redirect.
	RedirectURL string `json:"redirectURL,omitempty"`
}

// SuggestResponse is response model for credential suggestion.
type SuggestResponse struct {
	Credentials []json.RawMessage `json:"credentials"`
}

// ExplainRequest is request model for explaining a raw error message.
type ExplainRequest struct {
	Message string `json:"message"`
}

// ExplainResponse is response model for explaining a raw error message.
type ExplainResponse struct {
	*errclass.FriendlyError
}
