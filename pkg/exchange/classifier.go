/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"bytes"
	"encoding/json"
)

// PayloadKind is the meaning of an exchange response.
type PayloadKind string

const (
	// KindPresentationRequest is a verifiable presentation request.
	KindPresentationRequest PayloadKind = "presentation-request"
	// KindPresentation is a verifiable presentation, usually delivering credentials.
	KindPresentation PayloadKind = "presentation"
	// KindRedirect is a redirect URL.
	KindRedirect PayloadKind = "redirect"
	// KindUnknown is anything else.
	KindUnknown PayloadKind = "unknown"
)

// WrapStrategy tells whether protocol payloads are nested under a named property.
type WrapStrategy string

const (
	// StrategyUndetermined is the strategy of a session that has not seen a response yet.
	StrategyUndetermined WrapStrategy = ""
	// Wrapped payloads are nested, e.g. {"verifiablePresentation": {...}}.
	Wrapped WrapStrategy = "wrapped"
	// Unwrapped payloads are sent as the bare object.
	Unwrapped WrapStrategy = "unwrapped"
)

// response fields inspected by Classify.
const (
	fieldVPRequest    = "verifiablePresentationRequest"
	fieldVP           = "verifiablePresentation"
	fieldRedirectURL  = "redirectUrl"
	fieldQuery        = "query"
	fieldChallenge    = "challenge"
	fieldContext      = "@context"
	fieldMessage      = "message"
	fieldError        = "error"
	fieldCredential   = "verifiableCredential"
	fieldType         = "type"
	fieldCredentialQ  = "credentialQuery"
	fieldDomain       = "domain"
	typePresentation  = "VerifiablePresentation"
	contextCredential = "https://www.w3.org/2018/credentials/v1"
)

// Classification is the normalized reading of one response.
type Classification struct {
	Kind     PayloadKind
	Data     interface{}
	Strategy WrapStrategy
}

// ClassifyJSON classifies a raw response body. Bodies that are not valid JSON are Unknown.
func ClassifyJSON(body []byte) *Classification {
	var raw interface{}

	d := json.NewDecoder(bytes.NewReader(body))

	if err := d.Decode(&raw); err != nil {
		return &Classification{Kind: KindUnknown, Data: string(body), Strategy: Unwrapped}
	}

	return Classify(raw)
}

// Classify reads a decoded response. The checks run in a fixed order and the first match wins:
// wrapped request, unwrapped request, wrapped presentation, unwrapped presentation, redirect.
// Classify never fails; anything unrecognized is Unknown.
func Classify(raw interface{}) *Classification {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return &Classification{Kind: KindUnknown, Data: raw, Strategy: Unwrapped}
	}

	switch {
	case present(obj, fieldVPRequest):
		return &Classification{Kind: KindPresentationRequest, Data: obj[fieldVPRequest], Strategy: Wrapped}
	case present(obj, fieldQuery) && present(obj, fieldChallenge):
		return &Classification{Kind: KindPresentationRequest, Data: obj, Strategy: Unwrapped}
	case present(obj, fieldVP):
		return &Classification{Kind: KindPresentation, Data: obj[fieldVP], Strategy: Wrapped}
	case present(obj, fieldContext):
		return &Classification{Kind: KindPresentation, Data: obj, Strategy: Unwrapped}
	case present(obj, fieldRedirectURL):
		return &Classification{Kind: KindRedirect, Data: obj[fieldRedirectURL], Strategy: Wrapped}
	default:
		return &Classification{Kind: KindUnknown, Data: obj, Strategy: Unwrapped}
	}
}

// present reports whether obj holds a truthy value under key.
func present(obj map[string]interface{}, key string) bool {
	v, ok := obj[key]
	if !ok {
		return false
	}

	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()

		return err != nil || f != 0
	default:
		return true
	}
}

// serverMessage extracts a human readable message from an unrecognized response.
func serverMessage(data interface{}) (string, bool) {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return "", false
	}

	for _, key := range []string{fieldMessage, fieldError} {
		if msg, isString := obj[key].(string); isString && msg != "" {
			return msg, true
		}
	}

	return "", false
}
