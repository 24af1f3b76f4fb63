/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/webnotifier"
	vcapi "github.com/learningeconomy/vcapi-exchange-go/pkg/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	mockapi "github.com/learningeconomy/vcapi-exchange-go/pkg/internal/gomocks/exchange/api"
	mocknotifier "github.com/learningeconomy/vcapi-exchange-go/pkg/internal/gomocks/controller/webnotifier"
)

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

func TestController_GetRESTHandlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("default notifier exposes websocket endpoint", func(t *testing.T) {
		c := New(newMockProvider(ctrl), WithWebhookURLs("http://localhost:9999/hook"),
			WithTimeout(time.Second))
		defer c.Close()

		handlers := c.GetRESTHandlers()
		require.Len(t, handlers, 9)
		require.Equal(t, WSPath, handlers[8].Path())
	})

	t.Run("custom notifier receives session states", func(t *testing.T) {
		p := newMockProvider(ctrl)
		p.transport.EXPECT().Post(gomock.Any(), "https://issuer.example.com/x", gomock.Any()).
			Return([]byte(`{"redirectUrl":"https://issuer.example.com/done"}`), nil)

		states := make(chan vcapi.State, 4)

		notifier := mocknotifier.NewMockNotifier(ctrl)
		notifier.EXPECT().Notify(webnotifier.SessionTopic, gomock.Any()).DoAndReturn(
			func(_ string, message []byte) error {
				s := vcapi.Session{}
				require.NoError(t, json.Unmarshal(message, &s))

				states <- s.State

				return nil
			}).AnyTimes()

		c := New(p, WithNotifier(notifier))
		defer c.Close()

		handlers := c.GetRESTHandlers()
		require.Len(t, handlers, 8)

		router := mux.NewRouter()
		for _, h := range handlers {
			router.HandleFunc(h.Path(), h.Handle()).Methods(h.Method())
		}

		req := httptest.NewRequest(http.MethodPost, "/exchange/start",
			bytes.NewBufferString(`{"url":"https://issuer.example.com/x"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		require.Equal(t, vcapi.StateLoading, waitState(t, states))
		require.Equal(t, vcapi.StateRedirect, waitState(t, states))
	})
}

func TestController_GetCommandHandlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	c := New(newMockProvider(ctrl))
	defer c.Close()

	handlers := c.GetCommandHandlers()
	require.Len(t, handlers, 8)

	for _, h := range handlers {
		require.Equal(t, "exchange", h.Name())
	}
}

func TestController_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := newMockProvider(ctrl)
	p.transport.EXPECT().Post(gomock.Any(), "https://issuer.example.com/x", gomock.Any()).
		Return([]byte(`{"redirectUrl":"https://issuer.example.com/done"}`), nil)

	delivered := make(chan struct{}, 4)

	notifier := mocknotifier.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(webnotifier.SessionTopic, gomock.Any()).DoAndReturn(
		func(string, []byte) error {
			delivered <- struct{}{}

			return nil
		}).Times(2)

	c := New(p, WithNotifier(notifier))

	router := mux.NewRouter()
	for _, h := range c.GetRESTHandlers() {
		router.HandleFunc(h.Path(), h.Handle()).Methods(h.Method())
	}

	req := httptest.NewRequest(http.MethodPost, "/exchange/start",
		bytes.NewBufferString(`{"url":"https://issuer.example.com/x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// queued states are delivered before Close returns
	c.Close()
	require.Len(t, delivered, 2)

	require.NotPanics(t, c.Close)

	// sessions started after Close are not published
	req = httptest.NewRequest(http.MethodPost, "/exchange/start",
		bytes.NewBufferString(`{"url":"https://issuer.example.com/y"}`))
	p.transport.EXPECT().Post(gomock.Any(), "https://issuer.example.com/y", gomock.Any()).
		Return([]byte(`{"redirectUrl":"https://issuer.example.com/done"}`), nil)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func waitState(t *testing.T, states <-chan vcapi.State) vcapi.State {
	t.Helper()

	select {
	case s := <-states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no session notification")
	}

	return ""
}
