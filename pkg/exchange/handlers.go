/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
)

var (
	// ErrNoCredentialsSelected is returned when a presentation is built from an empty selection.
	ErrNoCredentialsSelected = errors.New("no credentials selected")
	// ErrNoRedirectURL is returned when a redirect payload holds no URL.
	ErrNoRedirectURL = errors.New("redirect payload has no url")
)

// SigningError wraps a failure of the signing collaborator. The session state is left unchanged.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "sign presentation: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// InitiateBody is the body of the first request of an exchange.
func InitiateBody() map[string]interface{} {
	return map[string]interface{}{}
}

// Wrap nests a presentation under "verifiablePresentation" for wrapped exchanges.
func Wrap(presentation json.RawMessage, strategy WrapStrategy) interface{} {
	if strategy == Wrapped {
		return map[string]interface{}{fieldVP: presentation}
	}

	return presentation
}

// DIDAuthBody signs a DID authentication presentation for req.
func DIDAuthBody(ctx context.Context, signer api.Signer, req *PresentationRequest,
	strategy WrapStrategy) (interface{}, error) {
	vp, err := signer.GetDIDAuthPresentation(ctx, &api.ProofOptions{
		Challenge: req.Challenge,
		Domain:    req.Domain,
	})
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	return Wrap(vp, strategy), nil
}

// PresentationBody signs a presentation of the selected credentials for req.
func PresentationBody(ctx context.Context, signer api.Signer, req *PresentationRequest,
	selected []json.RawMessage, strategy WrapStrategy) (interface{}, error) {
	if len(selected) == 0 {
		return nil, ErrNoCredentialsSelected
	}

	draft, err := json.Marshal(map[string]interface{}{
		fieldContext:    []string{contextCredential},
		fieldType:       []string{typePresentation},
		fieldCredential: selected,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal presentation draft: %w", err)
	}

	vp, err := signer.IssuePresentation(ctx, draft, &api.ProofOptions{
		Challenge:    req.Challenge,
		Domain:       req.Domain,
		ProofPurpose: api.ProofPurposeAuthentication,
	})
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	return Wrap(vp, strategy), nil
}

// ExtractCredentials returns the credentials delivered by a presentation payload.
// A single credential is normalized to a one element slice.
func ExtractCredentials(data interface{}) ([]json.RawMessage, error) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, nil
	}

	items := toSlice(obj[fieldCredential])
	creds := make([]json.RawMessage, 0, len(items))

	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("marshal credential %d: %w", i, err)
		}

		creds = append(creds, b)
	}

	return creds, nil
}

// AcceptCredentials claims the credentials of a presentation payload. On success it returns the
// empty acknowledgement body to send next together with the claim result.
func AcceptCredentials(ctx context.Context, claimer api.Claimer, data interface{}) (
	map[string]interface{}, *claim.Result, error) {
	creds, err := ExtractCredentials(data)
	if err != nil {
		return nil, nil, err
	}

	result, err := claimer.Claim(ctx, creds)
	if err != nil {
		return nil, result, err
	}

	return map[string]interface{}{}, result, nil
}

// OpenRedirect opens the URL of a redirect payload. The exchange is not advanced afterwards.
func OpenRedirect(ctx context.Context, opener api.Opener, data interface{}) error {
	u, ok := data.(string)
	if !ok || u == "" {
		return ErrNoRedirectURL
	}

	return opener.Open(ctx, u)
}
