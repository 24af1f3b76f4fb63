/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"github.com/mitchellh/mapstructure"
)

// QueryType is the type of the first query of a presentation request.
type QueryType string

const (
	// QueryByExample asks for credentials matching an example.
	QueryByExample QueryType = "QueryByExample"
	// DIDAuthentication asks for a DID authentication presentation.
	DIDAuthentication QueryType = "DIDAuthentication"
	// DIDAuth is the short form of DIDAuthentication.
	DIDAuth QueryType = "DIDAuth"
	// QueryTypeUnknown is any other or missing type. Treated as DID authentication.
	QueryTypeUnknown QueryType = ""
)

// PresentationRequest is the decoded form of a presentation request payload.
type PresentationRequest struct {
	Type      QueryType
	Challenge string
	Domain    string
	// Query holds the query entries, normalized to a slice.
	Query []interface{}
}

type rawPresentationRequest struct {
	Query     interface{} `mapstructure:"query"`
	Challenge interface{} `mapstructure:"challenge"`
	Domain    interface{} `mapstructure:"domain"`
}

type rawQuery struct {
	Type            interface{} `mapstructure:"type"`
	CredentialQuery interface{} `mapstructure:"credentialQuery"`
}

// ParsePresentationRequest decodes a presentation request payload. It never fails: missing or
// malformed fields decode to their zero value, which reads as a DID authentication request.
func ParsePresentationRequest(data interface{}) *PresentationRequest {
	var raw rawPresentationRequest

	if err := mapstructure.Decode(data, &raw); err != nil {
		logger.Debugf("decode presentation request: %s", err)

		return &PresentationRequest{}
	}

	req := &PresentationRequest{
		Challenge: stringValue(raw.Challenge),
		Domain:    stringValue(raw.Domain),
		Query:     toSlice(raw.Query),
	}

	if len(req.Query) > 0 {
		req.Type = queryType(req.Query[0])
	}

	return req
}

// RequiresDIDAuth reports whether the request is answered with a DID authentication presentation.
func (r *PresentationRequest) RequiresDIDAuth() bool {
	return r.Type != QueryByExample
}

// CredentialQueries returns the credentialQuery entries of every QueryByExample query.
func (r *PresentationRequest) CredentialQueries() []interface{} {
	var queries []interface{}

	for _, q := range r.Query {
		var raw rawQuery

		if err := mapstructure.Decode(q, &raw); err != nil {
			continue
		}

		if queryType(q) != QueryByExample {
			continue
		}

		queries = append(queries, toSlice(raw.CredentialQuery)...)
	}

	return queries
}

func queryType(q interface{}) QueryType {
	var raw rawQuery

	if err := mapstructure.Decode(q, &raw); err != nil {
		return QueryTypeUnknown
	}

	typ := toSlice(raw.Type)
	if len(typ) == 0 {
		return QueryTypeUnknown
	}

	name, ok := typ[0].(string)
	if !ok {
		return QueryTypeUnknown
	}

	// type names are case sensitive
	switch t := QueryType(name); t {
	case QueryByExample, DIDAuthentication, DIDAuth:
		return t
	default:
		return QueryTypeUnknown
	}
}

func toSlice(v interface{}) []interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return val
	default:
		return []interface{}{val}
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string) // nolint:errcheck

	return s
}
