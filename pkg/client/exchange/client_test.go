/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
	mockapi "github.com/learningeconomy/vcapi-exchange-go/pkg/internal/gomocks/exchange/api"
)

const exchangeURL = "https://issuer.example.com/exchanges/1"

type mockProvider struct {
	transport *mockapi.MockTransport
	signer    *mockapi.MockSigner
	index     *mockapi.MockCredentialIndex
	claimer   *mockapi.MockClaimer
}

func newMockProvider(ctrl *gomock.Controller) *mockProvider {
	return &mockProvider{
		transport: mockapi.NewMockTransport(ctrl),
		signer:    mockapi.NewMockSigner(ctrl),
		index:     mockapi.NewMockCredentialIndex(ctrl),
		claimer:   mockapi.NewMockClaimer(ctrl),
	}
}

func (p *mockProvider) Transport() api.Transport             { return p.transport }
func (p *mockProvider) Signer() api.Signer                   { return p.signer }
func (p *mockProvider) CredentialIndex() api.CredentialIndex { return p.index }
func (p *mockProvider) Claimer() api.Claimer                 { return p.claimer }

func TestClient_QueryByExampleFlow(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := newMockProvider(ctrl)

	stored := json.RawMessage(`{"id":"urn:uuid:stored","type":["VerifiableCredential","OpenBadgeCredential"]}`)
	vp := json.RawMessage(`{"type":["VerifiablePresentation"]}`)

	gomock.InOrder(
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, map[string]interface{}{}).Return([]byte(`{
			"verifiablePresentationRequest": {
				"query": [{"type": "QueryByExample", "credentialQuery": {"example": {"type": "OpenBadgeCredential"}}}],
				"challenge": "c1", "domain": "d1"
			}
		}`), nil),
		p.index.EXPECT().GetCredentials(gomock.Any(), api.Page{Offset: 0, Limit: exchange.DefaultPageSize}).
			Return(&api.CredentialPage{Credentials: []json.RawMessage{stored}}, nil),
		p.index.EXPECT().QueryCredentials(gomock.Any(), []json.RawMessage{stored}, gomock.Any()).
			Return([]json.RawMessage{stored}, nil),
		p.signer.EXPECT().IssuePresentation(gomock.Any(), gomock.Any(), &api.ProofOptions{
			Challenge: "c1", Domain: "d1", ProofPurpose: api.ProofPurposeAuthentication,
		}).Return(vp, nil),
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, map[string]interface{}{"verifiablePresentation": vp}).
			Return([]byte(`{"verifiablePresentation": {"verifiableCredential": [{"id": "urn:uuid:a"}, {"id": "urn:uuid:b"}]}}`), nil),
		p.claimer.EXPECT().Claim(gomock.Any(), gomock.Len(2)).
			Return(&claim.Result{Claimed: 1, AlreadyClaimed: 1}, nil),
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, map[string]interface{}{}).
			Return([]byte(`{"verifiablePresentationRequest": {"query": {"type": "DIDAuthentication"}, "challenge": "c2"}}`), nil),
	)

	var states []exchange.State

	c, err := New(exchangeURL, p, WithObserver(func(s exchange.Session) { states = append(states, s.State) }))
	require.NoError(t, err)

	s, err := c.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StatePresentationRequest, s.State)
	require.Equal(t, exchange.Wrapped, s.Strategy)

	selected, err := c.Suggest(ctx)
	require.NoError(t, err)
	require.Equal(t, []json.RawMessage{stored}, selected)
	require.True(t, c.HasSuggested())

	selected, err = c.Suggest(ctx)
	require.NoError(t, err)
	require.Equal(t, []json.RawMessage{stored}, selected, "suggestion runs once")

	s, err = c.Respond(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateAcceptCredentials, s.State)

	s, err = c.Respond(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateFinished, s.State)
	require.Equal(t, 2, s.ClaimCount)
	require.Equal(t, 1, c.LastClaim().AlreadyClaimed)

	_, err = c.Respond(ctx)
	require.ErrorIs(t, err, ErrExchangeFinished)

	require.Equal(t, []exchange.State{
		exchange.StateLoading, exchange.StatePresentationRequest,
		exchange.StateLoading, exchange.StateAcceptCredentials,
		exchange.StateLoading, exchange.StateFinished,
	}, states)
}

func TestClient_DIDAuthAndRedirect(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := newMockProvider(ctrl)
	opener := mockapi.NewMockOpener(ctrl)

	vp := json.RawMessage(`{"proof":{}}`)

	gomock.InOrder(
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, gomock.Any()).
			Return([]byte(`{"query":{"type":"DIDAuthentication"},"challenge":"c1","domain":"d1"}`), nil),
		p.signer.EXPECT().GetDIDAuthPresentation(gomock.Any(), &api.ProofOptions{Challenge: "c1", Domain: "d1"}).
			Return(nil, errors.New("wallet locked")),
		p.signer.EXPECT().GetDIDAuthPresentation(gomock.Any(), gomock.Any()).Return(vp, nil),
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, vp).
			Return([]byte(`{"redirectUrl":"https://issuer.example.com/next"}`), nil),
		opener.EXPECT().Open(gomock.Any(), "https://issuer.example.com/next").Return(nil),
	)

	c, err := New(exchangeURL, p, WithOpener(opener))
	require.NoError(t, err)

	s, err := c.Respond(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateDIDAuth, s.State)

	s, err = c.Respond(ctx)

	var signErr *exchange.SigningError

	require.True(t, errors.As(err, &signErr))
	require.Equal(t, exchange.StateDIDAuth, s.State, "signing failure keeps the state")
	require.Equal(t, errclass.Default.Title, s.Failure.Title)
	require.Contains(t, s.Failure.RawMessage, "wallet locked")

	var stepErr *StepError

	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, s.Failure, stepErr.Friendly)

	s, err = c.Respond(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateRedirect, s.State)
	require.Nil(t, s.Failure, "the next request clears the failure")

	s, err = c.Respond(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateRedirect, s.State)
}

func TestClient_ClaimFailureUsesClaimSummary(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := newMockProvider(ctrl)

	notFound := errors.New("Could not find boost with id X")

	gomock.InOrder(
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, gomock.Any()).
			Return([]byte(`{"verifiablePresentation":{"verifiableCredential":[{"id":"a"}]}}`), nil),
		p.claimer.EXPECT().Claim(gomock.Any(), gomock.Len(1)).
			Return(&claim.Result{}, &claim.Error{
				Reason:   notFound.Error(),
				Friendly: errclass.Classify(notFound),
				Err:      notFound,
			}),
	)

	c, err := New(exchangeURL, p)
	require.NoError(t, err)

	s, err := c.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateAcceptCredentials, s.State)

	s, err = c.Respond(ctx)
	require.ErrorIs(t, err, notFound)
	require.Contains(t, err.Error(), "Credential Not Found")
	require.Equal(t, exchange.StateAcceptCredentials, s.State)
	require.Equal(t, "Credential Not Found", s.Failure.Title)
	require.Equal(t, s.Failure, c.Session().Failure)
}

func TestClient_ClaimFailureAndRetry(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := newMockProvider(ctrl)

	gomock.InOrder(
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, gomock.Any()).
			Return([]byte(`{"@context":["https://www.w3.org/2018/credentials/v1"],"verifiableCredential":{"id":"a"}}`), nil),
		p.claimer.EXPECT().Claim(gomock.Any(), gomock.Len(1)).
			Return(&claim.Result{}, &claim.Error{Reason: "credential 0: Internal Server Error"}),
		p.claimer.EXPECT().Claim(gomock.Any(), gomock.Len(1)).Return(&claim.Result{Claimed: 1}, nil),
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, map[string]interface{}{}).
			Return(nil, &api.TransportError{URL: exchangeURL, StatusCode: 500, Message: "Internal Server Error"}),
		p.transport.EXPECT().Post(gomock.Any(), exchangeURL, map[string]interface{}{}).
			Return([]byte(`{"query":[{"type":"DIDAuth"}],"challenge":"c"}`), nil),
	)

	c, err := New(exchangeURL, p)
	require.NoError(t, err)

	s, err := c.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateAcceptCredentials, s.State)
	require.Equal(t, exchange.Unwrapped, s.Strategy)

	s, err = c.Respond(ctx)
	require.Error(t, err)
	require.Equal(t, exchange.StateAcceptCredentials, s.State)
	require.Equal(t, 0, s.ClaimCount)
	require.Equal(t, "Server Error", s.Failure.Title)
	require.True(t, strings.HasPrefix(err.Error(), "Server Error: claim credentials:"))

	s, err = c.Respond(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateError, s.State)
	require.Equal(t, 500, s.Payload)
	require.Equal(t, "Server Error", s.Failure.Title)
	require.Equal(t, 1, s.ClaimCount)

	s, err = c.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, exchange.StateFinished, s.State)
}

func TestClient_Busy(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := newMockProvider(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})

	p.transport.EXPECT().Post(gomock.Any(), exchangeURL, gomock.Any()).
		DoAndReturn(func(context.Context, string, interface{}) ([]byte, error) {
			close(entered)
			<-release

			return []byte(`{"redirectUrl":"https://issuer.example.com"}`), nil
		})

	c, err := New(exchangeURL, p)
	require.NoError(t, err)

	done := make(chan error)

	go func() {
		_, e := c.Start(ctx)
		done <- e
	}()

	<-entered

	require.Equal(t, exchange.StateLoading, c.Session().State)

	_, err = c.Respond(ctx)
	require.ErrorIs(t, err, ErrSessionBusy)

	err = c.Select(nil)
	require.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, exchange.StateRedirect, c.Session().State)
}

func TestClient_SelectOutsidePresentationRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c, err := New(exchangeURL, newMockProvider(ctrl))
	require.NoError(t, err)

	require.ErrorIs(t, c.Select(nil), ErrNotPresentationRequest)

	_, err = c.Suggest(context.Background())
	require.ErrorIs(t, err, ErrNotPresentationRequest)

	_, err = c.Retry(context.Background())
	require.ErrorIs(t, err, exchange.ErrInvalidTransition)
}
