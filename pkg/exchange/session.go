/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"github.com/google/uuid"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
)

// Session is the value carried through an exchange. The machine returns a new Session for
// every step instead of mutating the one it was given.
type Session struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	State State  `json:"state"`
	// Payload is the data of the current state: the presentation request, the presentation,
	// the redirect URL, or the failure reason.
	Payload interface{} `json:"payload,omitempty"`
	// Strategy is fixed by the first recognized response.
	Strategy WrapStrategy `json:"strategy,omitempty"`
	// ClaimCount is the number of credentials claimed so far.
	ClaimCount int `json:"claimCount"`
	// LastRequest is the body of the last request sent, replayed by Retry.
	LastRequest interface{}            `json:"-"`
	Failure     *errclass.FriendlyError `json:"failure,omitempty"`
}

// NewSession returns a session in the initiate state.
func NewSession(url string) Session {
	return Session{
		ID:    uuid.New().String(),
		URL:   url,
		State: StateInitiate,
	}
}

// PresentationRequest decodes the current payload as a presentation request.
// It returns nil unless the session waits on a presentation request or DID authentication.
func (s Session) PresentationRequest() *PresentationRequest {
	if s.State != StatePresentationRequest && s.State != StateDIDAuth {
		return nil
	}

	return ParsePresentationRequest(s.Payload)
}

// RedirectURL returns the URL of a redirect session.
func (s Session) RedirectURL() (string, bool) {
	if s.State != StateRedirect {
		return "", false
	}

	u, ok := s.Payload.(string)

	return u, ok && u != ""
}

// WithClaimed returns a copy of s with n more claimed credentials.
func (s Session) WithClaimed(n int) Session {
	s.ClaimCount += n

	return s
}
