/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
)

// DefaultPageSize is the page size used to load candidate credentials.
const DefaultPageSize = 50

// Selection holds the credentials chosen to answer a QueryByExample request.
// The automatic suggestion runs at most once; afterwards only the holder changes the selection.
// A Selection is not safe for concurrent use.
type Selection struct {
	hasSuggested bool
	selected     []json.RawMessage
	pageSize     int
}

// HasSuggested reports whether the selection has already been filled once.
func (s *Selection) HasSuggested() bool {
	return s.hasSuggested
}

// Selected returns a copy of the current selection.
func (s *Selection) Selected() []json.RawMessage {
	return append([]json.RawMessage(nil), s.selected...)
}

// Select replaces the selection. A holder choice also disarms the automatic suggestion.
func (s *Selection) Select(creds []json.RawMessage) {
	s.selected = append([]json.RawMessage(nil), creds...)
	s.hasSuggested = true
}

// Suggest fills the selection with the stored credentials matching req. It does nothing once the
// selection has been filled. A failed suggestion leaves the latch armed.
func (s *Selection) Suggest(ctx context.Context, index api.CredentialIndex, req *PresentationRequest) (
	[]json.RawMessage, error) {
	if s.hasSuggested {
		return s.Selected(), nil
	}

	candidates, err := s.loadAll(ctx, index)
	if err != nil {
		return nil, err
	}

	matches, err := index.QueryCredentials(ctx, candidates, req.CredentialQueries())
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}

	s.selected = matches
	s.hasSuggested = true

	return s.Selected(), nil
}

func (s *Selection) loadAll(ctx context.Context, index api.CredentialIndex) ([]json.RawMessage, error) {
	size := s.pageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	var all []json.RawMessage

	for offset := 0; ; offset += size {
		page, err := index.GetCredentials(ctx, api.Page{Offset: offset, Limit: size})
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}

		all = append(all, page.Credentials...)

		if !page.HasMore || len(page.Credentials) == 0 {
			return all, nil
		}
	}
}
