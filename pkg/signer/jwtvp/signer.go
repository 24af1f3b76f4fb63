/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jwtvp signs verifiable presentations with an Ed25519 did:key.
//
// The presentation stays a JSON object. Its proof carries the JWT encoding of the presentation
// (JwtProof2020), bound to the verifier challenge as "nonce" and to the domain as "aud".
package jwtvp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/kmscrypto/doc/util/fingerprint"
	"github.com/hyperledger/aries-framework-go/component/models/verifiable"
	"golang.org/x/crypto/hkdf"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
)

const (
	// ProofType is the type of the proof added to signed presentations.
	ProofType = "JwtProof2020"

	contextCredentials = "https://www.w3.org/2018/credentials/v1"
	typePresentation   = "VerifiablePresentation"
	fieldCredential    = "verifiableCredential"
	hkdfInfo           = "vcapi-exchange signer seed"
)

// ErrEmptyPassphrase is returned by NewFromPassphrase for an empty passphrase.
var ErrEmptyPassphrase = errors.New("signer passphrase is empty")

// Signer signs presentations as the holder of a did:key.
type Signer struct {
	key    ed25519.PrivateKey
	did    string
	kid    string
	signer jose.Signer
	now    func() time.Time
}

// New returns a signer for the given private key.
func New(key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key size %d", len(key))
	}

	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key")
	}

	did, kid := fingerprint.CreateDIDKey(pub)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader(jose.HeaderKey("kid"), kid))
	if err != nil {
		return nil, fmt.Errorf("create JWS signer: %w", err)
	}

	return &Signer{key: key, did: did, kid: kid, signer: signer, now: time.Now}, nil
}

// Generate returns a signer for a new random key.
func Generate() (*Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	return New(key)
}

// NewFromPassphrase derives the signing key from a passphrase, so a restarted service keeps its DID.
func NewFromPassphrase(passphrase string) (*Signer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	seed := make([]byte, ed25519.SeedSize)

	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo)), seed); err != nil {
		return nil, fmt.Errorf("derive signer seed: %w", err)
	}

	return New(ed25519.NewKeyFromSeed(seed))
}

// DID of the holder.
func (s *Signer) DID() string {
	return s.did
}

// KeyID is the verification method used in proofs.
func (s *Signer) KeyID() string {
	return s.kid
}

// GetDIDAuthPresentation signs an empty presentation proving control of the DID.
func (s *Signer) GetDIDAuthPresentation(ctx context.Context, opts *api.ProofOptions) (json.RawMessage, error) {
	vp := map[string]interface{}{
		"@context": []interface{}{contextCredentials},
		"type":     []interface{}{typePresentation},
	}

	o := api.ProofOptions{ProofPurpose: api.ProofPurposeAuthentication}
	if opts != nil {
		o.Challenge = opts.Challenge
		o.Domain = opts.Domain
	}

	return s.sign(ctx, vp, &o)
}

// IssuePresentation signs a presentation draft. The holder is always set to the signer's DID.
func (s *Signer) IssuePresentation(ctx context.Context, draft json.RawMessage,
	opts *api.ProofOptions) (json.RawMessage, error) {
	var vp map[string]interface{}

	if err := json.Unmarshal(draft, &vp); err != nil {
		return nil, fmt.Errorf("read presentation draft: %w", err)
	}

	if vp == nil {
		return nil, errors.New("presentation draft is not an object")
	}

	o := api.ProofOptions{}
	if opts != nil {
		o = *opts
	}

	if o.ProofPurpose == "" {
		o.ProofPurpose = api.ProofPurposeAuthentication
	}

	return s.sign(ctx, vp, &o)
}

func (s *Signer) sign(_ context.Context, vp map[string]interface{}, opts *api.ProofOptions) (json.RawMessage, error) {
	delete(vp, "proof")

	if _, ok := vp["id"].(string); !ok {
		vp["id"] = "urn:uuid:" + uuid.New().String()
	}

	vp["holder"] = s.did

	now := s.now().UTC()

	claims, err := presentationClaims(vp, opts, now)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Signed(s.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("sign presentation JWT: %w", err)
	}

	proof := map[string]interface{}{
		"type":               ProofType,
		"created":            now.Format(time.RFC3339),
		"proofPurpose":       opts.ProofPurpose,
		"verificationMethod": s.kid,
		"jwt":                token,
	}

	if opts.Challenge != "" {
		proof["challenge"] = opts.Challenge
	}

	if opts.Domain != "" {
		proof["domain"] = opts.Domain
	}

	vp["proof"] = proof

	b, err := json.Marshal(vp)
	if err != nil {
		return nil, fmt.Errorf("marshal signed presentation: %w", err)
	}

	return b, nil
}

// presentationClaims returns the JWT claims of vp: iss is the holder, jti the presentation id and
// aud the domain. The envelope is decoded as a verifiable presentation while the embedded
// credentials are carried verbatim, so JWT credentials are not re-validated.
func presentationClaims(vp map[string]interface{}, opts *api.ProofOptions,
	now time.Time) (map[string]interface{}, error) {
	envelope := make(map[string]interface{}, len(vp))

	for k, v := range vp {
		if k != fieldCredential {
			envelope[k] = v
		}
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal presentation: %w", err)
	}

	pres, err := verifiable.ParsePresentation(b, verifiable.WithPresDisabledProofCheck(),
		verifiable.WithDisabledJSONLDChecks())
	if err != nil {
		return nil, fmt.Errorf("read presentation: %w", err)
	}

	if creds, ok := vp[fieldCredential]; ok {
		if pres.CustomFields == nil {
			pres.CustomFields = verifiable.CustomFields{}
		}

		pres.CustomFields[fieldCredential] = creds
	}

	var audience []string
	if opts.Domain != "" {
		audience = []string{opts.Domain}
	}

	vpClaims, err := pres.JWTClaims(audience, false)
	if err != nil {
		return nil, fmt.Errorf("presentation JWT claims: %w", err)
	}

	b, err = json.Marshal(vpClaims)
	if err != nil {
		return nil, fmt.Errorf("marshal presentation JWT claims: %w", err)
	}

	claims := map[string]interface{}{}
	if err = json.Unmarshal(b, &claims); err != nil {
		return nil, fmt.Errorf("read presentation JWT claims: %w", err)
	}

	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()

	if opts.Challenge != "" {
		claims["nonce"] = opts.Challenge
	}

	return claims, nil
}
