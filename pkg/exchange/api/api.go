/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package api declares the collaborators the exchange state machine and its handlers depend on.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
)

//go:generate mockgen -destination ../../internal/gomocks/exchange/api/mocks.gen.go -package api -source=api.go

// ProofPurposeAuthentication is the proof purpose used for every presentation sent to an exchange.
const ProofPurposeAuthentication = "authentication"

// Transport sends one exchange request and returns the raw response body.
// Non-2xx responses must be reported as *TransportError.
type Transport interface {
	Post(ctx context.Context, url string, body interface{}) ([]byte, error)
}

// ProofOptions binds a presentation to a verifier supplied challenge and domain.
type ProofOptions struct {
	Challenge    string `json:"challenge,omitempty"`
	Domain       string `json:"domain,omitempty"`
	ProofPurpose string `json:"proofPurpose,omitempty"`
}

// Signer is the wallet signing collaborator.
type Signer interface {
	// GetDIDAuthPresentation returns a self signed DID authentication presentation.
	GetDIDAuthPresentation(ctx context.Context, opts *ProofOptions) (json.RawMessage, error)
	// IssuePresentation signs a presentation draft.
	IssuePresentation(ctx context.Context, draft json.RawMessage, opts *ProofOptions) (json.RawMessage, error)
}

// Page selects a window of stored credentials.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// CredentialPage is one window of stored credentials.
type CredentialPage struct {
	Credentials []json.RawMessage `json:"credentials"`
	HasMore     bool              `json:"hasMore"`
}

// CredentialIndex reads previously stored credentials.
type CredentialIndex interface {
	// GetCredentials returns one page of stored credentials.
	GetCredentials(ctx context.Context, page Page) (*CredentialPage, error)
	// QueryCredentials returns the candidates satisfying the query predicates.
	QueryCredentials(ctx context.Context, candidates []json.RawMessage, predicates []interface{}) ([]json.RawMessage, error)
}

// Claimer claims credential batches into the wallet. Implemented by *claim.Executor.
type Claimer interface {
	Claim(ctx context.Context, credentials []json.RawMessage) (*claim.Result, error)
}

// Opener opens a redirect URL in a new browsing context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// TransportError is a non-success response from the exchange endpoint.
type TransportError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return fmt.Sprintf("exchange request to %s failed with status %d", e.URL, e.StatusCode)
}
