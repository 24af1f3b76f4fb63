/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	mockapi "github.com/learningeconomy/vcapi-exchange-go/pkg/internal/gomocks/exchange/api"
)

func TestWrap(t *testing.T) {
	vp := json.RawMessage(`{"type":"VerifiablePresentation"}`)

	require.Equal(t, map[string]interface{}{"verifiablePresentation": vp}, Wrap(vp, Wrapped))
	require.Equal(t, vp, Wrap(vp, Unwrapped))
	require.Equal(t, vp, Wrap(vp, StrategyUndetermined))
}

func TestDIDAuthBody(t *testing.T) {
	ctx := context.Background()
	req := &PresentationRequest{Type: DIDAuthentication, Challenge: "c1", Domain: "d1"}

	t.Run("wrapped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		vp := json.RawMessage(`{"proof":{}}`)

		signer := mockapi.NewMockSigner(ctrl)
		signer.EXPECT().GetDIDAuthPresentation(ctx, &api.ProofOptions{Challenge: "c1", Domain: "d1"}).Return(vp, nil)

		body, err := DIDAuthBody(ctx, signer, req, Wrapped)
		require.NoError(t, err)
		require.Equal(t, map[string]interface{}{"verifiablePresentation": vp}, body)
	})

	t.Run("signing failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		signer := mockapi.NewMockSigner(ctrl)
		signer.EXPECT().GetDIDAuthPresentation(ctx, gomock.Any()).Return(nil, errors.New("key not found"))

		_, err := DIDAuthBody(ctx, signer, req, Unwrapped)
		require.Error(t, err)

		var signErr *SigningError

		require.True(t, errors.As(err, &signErr))
		require.Contains(t, err.Error(), "sign presentation: key not found")
	})
}

func TestPresentationBody(t *testing.T) {
	ctx := context.Background()
	req := &PresentationRequest{Type: QueryByExample, Challenge: "c2", Domain: "d2"}
	selected := []json.RawMessage{json.RawMessage(`{"id":"urn:uuid:1"}`)}

	t.Run("signs a presentation of the selection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		vp := json.RawMessage(`{"type":["VerifiablePresentation"]}`)

		signer := mockapi.NewMockSigner(ctrl)
		signer.EXPECT().IssuePresentation(ctx, gomock.Any(), &api.ProofOptions{
			Challenge: "c2", Domain: "d2", ProofPurpose: api.ProofPurposeAuthentication,
		}).DoAndReturn(func(_ context.Context, draft json.RawMessage, _ *api.ProofOptions) (json.RawMessage, error) {
			var d map[string]interface{}
			require.NoError(t, json.Unmarshal(draft, &d))
			require.Equal(t, []interface{}{"VerifiablePresentation"}, d["type"])
			require.Len(t, d["verifiableCredential"], 1)

			return vp, nil
		})

		body, err := PresentationBody(ctx, signer, req, selected, Unwrapped)
		require.NoError(t, err)
		require.Equal(t, vp, body)
	})

	t.Run("empty selection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		_, err := PresentationBody(ctx, mockapi.NewMockSigner(ctrl), req, nil, Wrapped)
		require.ErrorIs(t, err, ErrNoCredentialsSelected)
	})

	t.Run("signing failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		signer := mockapi.NewMockSigner(ctrl)
		signer.EXPECT().IssuePresentation(ctx, gomock.Any(), gomock.Any()).Return(nil, errors.New("locked"))

		_, err := PresentationBody(ctx, signer, req, selected, Wrapped)

		var signErr *SigningError

		require.True(t, errors.As(err, &signErr))
	})
}

func TestExtractCredentials(t *testing.T) {
	creds, err := ExtractCredentials(decode(t, `{"verifiableCredential":{"id":"a"}}`))
	require.NoError(t, err)
	require.Equal(t, []json.RawMessage{json.RawMessage(`{"id":"a"}`)}, creds)

	creds, err = ExtractCredentials(decode(t, `{"verifiableCredential":[{"id":"a"},"eyJ.jwt"]}`))
	require.NoError(t, err)
	require.Len(t, creds, 2)
	require.Equal(t, json.RawMessage(`"eyJ.jwt"`), creds[1])

	creds, err = ExtractCredentials(decode(t, `{"type":"VerifiablePresentation"}`))
	require.NoError(t, err)
	require.Empty(t, creds)

	creds, err = ExtractCredentials("x")
	require.NoError(t, err)
	require.Empty(t, creds)
}

func TestAcceptCredentials(t *testing.T) {
	ctx := context.Background()
	payload := decode(t, `{"verifiableCredential":[{"id":"a"},{"id":"b"}]}`)

	t.Run("claims and acknowledges", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		claimer := mockapi.NewMockClaimer(ctrl)
		claimer.EXPECT().Claim(ctx, []json.RawMessage{json.RawMessage(`{"id":"a"}`), json.RawMessage(`{"id":"b"}`)}).
			Return(&claim.Result{Claimed: 1, AlreadyClaimed: 1}, nil)

		body, result, err := AcceptCredentials(ctx, claimer, payload)
		require.NoError(t, err)
		require.Equal(t, map[string]interface{}{}, body)
		require.Equal(t, 2, result.Total())
	})

	t.Run("claim failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		claimer := mockapi.NewMockClaimer(ctrl)
		claimer.EXPECT().Claim(ctx, gomock.Any()).
			Return(&claim.Result{Claimed: 1}, &claim.Error{Reason: "credential 1: boom"})

		body, result, err := AcceptCredentials(ctx, claimer, payload)
		require.Error(t, err)
		require.Nil(t, body)
		require.Equal(t, 1, result.Claimed)
	})
}

func TestOpenRedirect(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	opener := mockapi.NewMockOpener(ctrl)
	opener.EXPECT().Open(ctx, "https://example.com/next").Return(nil)

	require.NoError(t, OpenRedirect(ctx, opener, "https://example.com/next"))
	require.ErrorIs(t, OpenRedirect(ctx, opener, ""), ErrNoRedirectURL)
	require.ErrorIs(t, OpenRedirect(ctx, opener, 3), ErrNoRedirectURL)
}
