/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/hyperledger/aries-framework-go/component/models/verifiable"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidCredentialQuery is returned for a predicate that is neither an example query nor a JSONPath.
var ErrInvalidCredentialQuery = errors.New("invalid credential query")

// TrustedIssuer restricts the issuer of a matching credential.
type TrustedIssuer struct {
	Issuer   string `mapstructure:"issuer"`
	Required bool   `mapstructure:"required"`
}

// ExampleDefinition is the example of a QueryByExample credential query.
type ExampleDefinition struct {
	Context           interface{}            `mapstructure:"@context"`
	Type              interface{}            `mapstructure:"type"`
	CredentialSubject map[string]interface{} `mapstructure:"credentialSubject"`
	CredentialSchema  map[string]interface{} `mapstructure:"credentialSchema"`
	TrustedIssuer     []TrustedIssuer        `mapstructure:"trustedIssuer"`
}

// CredentialQuery is one predicate. Example matches like a QueryByExample example; Path is a JSONPath
// expression that must resolve, to Equals when Equals is set.
type CredentialQuery struct {
	Reason  string             `mapstructure:"reason"`
	Example *ExampleDefinition `mapstructure:"example"`
	Path    string             `mapstructure:"path"`
	Equals  interface{}        `mapstructure:"equals"`
}

// Query returns the candidates matching at least one predicate, in candidate order. A predicate
// is a credential query object or a bare JSONPath string. Candidates that cannot be read never match.
func Query(candidates []json.RawMessage, predicates []interface{}) ([]json.RawMessage, error) {
	queries, err := parseQueries(predicates)
	if err != nil {
		return nil, err
	}

	if len(queries) == 0 {
		return append([]json.RawMessage(nil), candidates...), nil
	}

	var result []json.RawMessage

	for _, c := range candidates {
		doc, err := decodeDocument(c)
		if err != nil {
			logger.Debugf("skipping unreadable credential: %s", err)

			continue
		}

		for _, q := range queries {
			if q.Match(doc) {
				result = append(result, c)

				break
			}
		}
	}

	return result, nil
}

func parseQueries(predicates []interface{}) ([]*CredentialQuery, error) {
	queries := make([]*CredentialQuery, 0, len(predicates))

	for i, p := range predicates {
		if path, ok := p.(string); ok {
			queries = append(queries, &CredentialQuery{Path: path})

			continue
		}

		var q CredentialQuery
		if err := mapstructure.Decode(p, &q); err != nil {
			return nil, fmt.Errorf("%w %d: %s", ErrInvalidCredentialQuery, i, err)
		}

		if q.Example == nil && q.Path == "" {
			return nil, fmt.Errorf("%w %d: neither example nor path", ErrInvalidCredentialQuery, i)
		}

		queries = append(queries, &q)
	}

	return queries, nil
}

// Match reports whether the decoded credential satisfies the query.
func (q *CredentialQuery) Match(doc map[string]interface{}) bool {
	if q.Example != nil && !q.Example.Match(doc) {
		return false
	}

	if q.Path == "" {
		return true
	}

	got, err := jsonpath.Get(q.Path, doc)
	if err != nil || isEmpty(got) {
		return false
	}

	return q.Equals == nil || valueMatches(got, q.Equals)
}

// Match reports whether the decoded credential matches the example.
func (e *ExampleDefinition) Match(doc map[string]interface{}) bool { // nolint: gocyclo
	if !isEmpty(e.Context) && !contains(stringList(doc["@context"]), e.Context) {
		return false
	}

	if !isEmpty(e.Type) && !contains(stringList(doc["type"]), e.Type) {
		return false
	}

	if !e.matchIssuer(lookupString(doc, "$.issuer.id", "$.issuer")) {
		return false
	}

	if schemaID, ok := e.CredentialSchema["id"]; ok {
		if !anyField(doc["credentialSchema"], "id", func(v string) bool { return v == schemaID }) {
			return false
		}
	}

	if schemaType, ok := e.CredentialSchema["type"].(string); ok {
		if !anyField(doc["credentialSchema"], "type", func(v string) bool { return strings.EqualFold(v, schemaType) }) {
			return false
		}
	}

	if querySubjectID, ok := e.CredentialSubject["id"]; ok {
		if lookupString(doc, "$.credentialSubject.id", "$.credentialSubject[0].id") != querySubjectID {
			return false
		}
	}

	return true
}

func (e *ExampleDefinition) matchIssuer(issuer string) bool {
	matched := len(e.TrustedIssuer) == 0

	for _, ti := range e.TrustedIssuer {
		ok := strings.EqualFold(issuer, ti.Issuer)

		if !ok && ti.Required {
			return false
		}

		matched = matched || ok
	}

	return matched
}

// decodeDocument reads a JSON-LD credential object or the "vc" claim of a JWT credential.
func decodeDocument(raw json.RawMessage) (map[string]interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}

	switch val := v.(type) {
	case map[string]interface{}:
		return val, nil
	case string:
		return decodeJWT(val)
	default:
		return nil, fmt.Errorf("unsupported credential format %T", v)
	}
}

// decodeJWT reads the data model of a JWT credential, with iss and jti applied as issuer and id.
// Signatures are not checked: stored credentials were accepted from the issuer.
func decodeJWT(token string) (map[string]interface{}, error) {
	vc, err := verifiable.ParseCredential([]byte(token),
		verifiable.WithDisabledProofCheck(),
		verifiable.WithCredDisableValidation())
	if err != nil {
		return nil, fmt.Errorf("parse JWT credential: %w", err)
	}

	// marshal the decoded model rather than the compact JWT
	vc.JWT = ""

	b, err := vc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal JWT credential: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("read JWT credential: %w", err)
	}

	return doc, nil
}

// lookupString returns the first path resolving to a string.
func lookupString(doc map[string]interface{}, paths ...string) string {
	for _, p := range paths {
		v, err := jsonpath.Get(p, doc)
		if err != nil {
			continue
		}

		if s, ok := v.(string); ok {
			return s
		}
	}

	return ""
}

// anyField reports whether obj, or any element of obj, has a string field satisfying match.
func anyField(obj interface{}, field string, match func(string) bool) bool {
	items, ok := obj.([]interface{})
	if !ok {
		items = []interface{}{obj}
	}

	for _, item := range items {
		m, isMap := item.(map[string]interface{})
		if !isMap {
			continue
		}

		if s, isString := m[field].(string); isString && match(s) {
			return true
		}
	}

	return false
}

func stringList(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []interface{}:
		list := make([]string, 0, len(val))

		for _, item := range val {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}

		return list
	default:
		return nil
	}
}

// contains reports whether every string of item is in slice.
func contains(slice []string, item interface{}) bool {
	set := make(map[string]struct{}, len(slice))
	for _, s := range slice {
		set[s] = struct{}{}
	}

	for _, s := range stringList(item) {
		if _, ok := set[s]; !ok {
			return false
		}
	}

	return len(stringList(item)) > 0
}

func isEmpty(item interface{}) bool {
	switch val := item.(type) {
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	default:
		return val == nil
	}
}

func valueMatches(got, want interface{}) bool {
	if reflect.DeepEqual(got, want) {
		return true
	}

	if list, ok := got.([]interface{}); ok {
		for _, v := range list {
			if reflect.DeepEqual(v, want) {
				return true
			}
		}
	}

	return false
}
