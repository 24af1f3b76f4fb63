/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwtvp

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/hyperledger/aries-framework-go/component/kmscrypto/doc/util/fingerprint"
	"github.com/stretchr/testify/require"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
)

type signedClaims struct {
	jwt.Claims
	Nonce string                 `json:"nonce,omitempty"`
	VP    map[string]interface{} `json:"vp"`
}

func verify(t *testing.T, s *Signer, signed json.RawMessage) (map[string]interface{}, *signedClaims) {
	t.Helper()

	var vp map[string]interface{}
	require.NoError(t, json.Unmarshal(signed, &vp))

	proof, ok := vp["proof"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, ProofType, proof["type"])
	require.Equal(t, s.KeyID(), proof["verificationMethod"])

	tok, err := jwt.ParseSigned(proof["jwt"].(string))
	require.NoError(t, err)

	pub, err := fingerprint.PubKeyFromDIDKey(s.DID())
	require.NoError(t, err)

	var claims signedClaims
	require.NoError(t, tok.Claims(ed25519.PublicKey(pub), &claims))

	return vp, &claims
}

func TestSigner_GetDIDAuthPresentation(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	require.Contains(t, s.DID(), "did:key:z6Mk")

	signed, err := s.GetDIDAuthPresentation(context.Background(), &api.ProofOptions{Challenge: "c1", Domain: "d1"})
	require.NoError(t, err)

	vp, claims := verify(t, s, signed)
	require.Equal(t, s.DID(), vp["holder"])
	require.Nil(t, vp["verifiableCredential"])

	proof := vp["proof"].(map[string]interface{})
	require.Equal(t, "c1", proof["challenge"])
	require.Equal(t, "d1", proof["domain"])
	require.Equal(t, api.ProofPurposeAuthentication, proof["proofPurpose"])

	require.Equal(t, "c1", claims.Nonce)
	require.Equal(t, jwt.Audience{"d1"}, claims.Audience)
	require.Equal(t, s.DID(), claims.Issuer)
	require.Equal(t, vp["id"], claims.ID)
	require.Equal(t, s.DID(), claims.VP["holder"])
}

func TestSigner_IssuePresentation(t *testing.T) {
	s, err := NewFromPassphrase("correct horse battery staple")
	require.NoError(t, err)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	draft := json.RawMessage(`{
		"@context": ["https://www.w3.org/2018/credentials/v1"],
		"type": ["VerifiablePresentation"],
		"holder": "did:example:someone-else",
		"verifiableCredential": [{"id": "urn:uuid:1"}],
		"proof": {"type": "stale"}
	}`)

	signed, err := s.IssuePresentation(context.Background(), draft, &api.ProofOptions{Challenge: "c2"})
	require.NoError(t, err)

	vp, claims := verify(t, s, signed)
	require.Equal(t, s.DID(), vp["holder"])
	require.Len(t, vp["verifiableCredential"], 1)
	require.Equal(t, "2024-05-01T12:00:00Z", vp["proof"].(map[string]interface{})["created"])
	require.NotContains(t, vp["proof"], "domain")
	require.Empty(t, claims.Audience)
	require.NotContains(t, claims.VP, "proof")
	require.Equal(t, fixed, claims.IssuedAt.Time().UTC())
	require.Equal(t, vp["id"], claims.VP["id"])
	require.Contains(t, fmt.Sprint(claims.VP["type"]), "VerifiablePresentation")
	require.Equal(t, vp["verifiableCredential"], claims.VP["verifiableCredential"])

	t.Run("same passphrase same DID", func(t *testing.T) {
		again, err := NewFromPassphrase("correct horse battery staple")
		require.NoError(t, err)
		require.Equal(t, s.DID(), again.DID())

		other, err := NewFromPassphrase("another")
		require.NoError(t, err)
		require.NotEqual(t, s.DID(), other.DID())
	})

	t.Run("invalid draft", func(t *testing.T) {
		_, err := s.IssuePresentation(context.Background(), json.RawMessage(`[`), nil)
		require.Error(t, err)

		_, err = s.IssuePresentation(context.Background(), json.RawMessage(`null`), nil)
		require.Error(t, err)
	})

	t.Run("draft must be a verifiable presentation", func(t *testing.T) {
		_, err := s.IssuePresentation(context.Background(),
			json.RawMessage(`{"type": ["VerifiablePresentation"]}`), nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "read presentation")

		_, err = s.IssuePresentation(context.Background(), json.RawMessage(`{
			"@context": ["https://www.w3.org/2018/credentials/v1"],
			"type": ["SomethingElse"]
		}`), nil)
		require.Error(t, err)
	})

	t.Run("JWT credentials are carried verbatim", func(t *testing.T) {
		const vcJWT = "eyJhbGciOiJub25lIn0.eyJ2YyI6e319."

		signed, err := s.IssuePresentation(context.Background(), json.RawMessage(`{
			"@context": ["https://www.w3.org/2018/credentials/v1"],
			"type": ["VerifiablePresentation"],
			"verifiableCredential": ["`+vcJWT+`"]
		}`), &api.ProofOptions{Domain: "d2"})
		require.NoError(t, err)

		vp, claims := verify(t, s, signed)
		require.Equal(t, []interface{}{vcJWT}, vp["verifiableCredential"])
		require.Equal(t, []interface{}{vcJWT}, claims.VP["verifiableCredential"])
		require.Equal(t, jwt.Audience{"d2"}, claims.Audience)
	})
}

func TestNew(t *testing.T) {
	_, err := New(ed25519.PrivateKey([]byte{1, 2, 3}))
	require.Error(t, err)

	_, err = NewFromPassphrase("")
	require.ErrorIs(t, err, ErrEmptyPassphrase)
}
