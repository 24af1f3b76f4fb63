/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()

	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))

	return v
}

func TestParsePresentationRequest(t *testing.T) {
	t.Run("query by example", func(t *testing.T) {
		req := ParsePresentationRequest(decode(t, `{
			"query": [{"type": "QueryByExample", "credentialQuery": {"example": {"type": "OpenBadgeCredential"}}}],
			"challenge": "c2",
			"domain": "issuer.example.com"
		}`))
		require.Equal(t, QueryByExample, req.Type)
		require.False(t, req.RequiresDIDAuth())
		require.Equal(t, "c2", req.Challenge)
		require.Equal(t, "issuer.example.com", req.Domain)
		require.Len(t, req.CredentialQueries(), 1)
	})

	t.Run("single query object", func(t *testing.T) {
		req := ParsePresentationRequest(decode(t, `{"query": {"type": "DIDAuthentication"}, "challenge": "c1"}`))
		require.Equal(t, DIDAuthentication, req.Type)
		require.True(t, req.RequiresDIDAuth())
		require.Empty(t, req.CredentialQueries())
	})

	t.Run("type array takes first element", func(t *testing.T) {
		req := ParsePresentationRequest(decode(t, `{"query": [{"type": ["QueryByExample", "DIDAuth"]}]}`))
		require.Equal(t, QueryByExample, req.Type)
	})

	t.Run("only the first query decides", func(t *testing.T) {
		req := ParsePresentationRequest(decode(t, `{"query": [{"type": "DIDAuth"}, {"type": "QueryByExample"}]}`))
		require.Equal(t, DIDAuth, req.Type)
		require.True(t, req.RequiresDIDAuth())
	})

	t.Run("type names are case sensitive", func(t *testing.T) {
		for _, typ := range []string{"querybyexample", "QUERYBYEXAMPLE", "didauth", "DidAuthentication"} {
			req := ParsePresentationRequest(decode(t, `{"query": {"type": "`+typ+`", "credentialQuery": {}}}`))
			require.Equal(t, QueryTypeUnknown, req.Type, typ)
			require.True(t, req.RequiresDIDAuth(), typ)
			require.Empty(t, req.CredentialQueries(), typ)
		}
	})

	t.Run("credential queries of every QueryByExample entry", func(t *testing.T) {
		req := ParsePresentationRequest(decode(t, `{"query": [
			{"type": "QueryByExample", "credentialQuery": [{"reason": "a"}, {"reason": "b"}]},
			{"type": "DIDAuth"},
			{"type": "QueryByExample", "credentialQuery": {"reason": "c"}}
		]}`))
		require.Len(t, req.CredentialQueries(), 3)
	})

	t.Run("missing or malformed fields read as DID auth", func(t *testing.T) {
		for _, payload := range []interface{}{
			nil,
			"not an object",
			decode(t, `{}`),
			decode(t, `{"query": []}`),
			decode(t, `{"query": [{"type": 42}]}`),
			decode(t, `{"query": [{"type": "SomethingElse"}]}`),
		} {
			req := ParsePresentationRequest(payload)
			require.NotNil(t, req)
			require.True(t, req.RequiresDIDAuth())
		}

		require.True(t, ParsePresentationRequest(nil).RequiresDIDAuth())
		require.Equal(t, QueryTypeUnknown, ParsePresentationRequest("x").Type)
	})

	t.Run("non string challenge is dropped", func(t *testing.T) {
		req := ParsePresentationRequest(decode(t, `{"query": {"type": "DIDAuth"}, "challenge": 7}`))
		require.Equal(t, "", req.Challenge)
		require.Equal(t, DIDAuth, req.Type)
	})
}
