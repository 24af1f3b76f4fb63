/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/spi/log"
)

// ErrEmptyRequest is returned by ReadRequest for a missing body.
var ErrEmptyRequest = errors.New("empty request")

// ReadRequest decodes the JSON request in r into v.
func ReadRequest(r io.Reader, v interface{}) error {
	if r == nil {
		return ErrEmptyRequest
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyRequest
		}

		return fmt.Errorf("decode request: %w", err)
	}

	return nil
}

// WriteNillableResponse writes v to w as JSON. A nil v is written as {}.
func WriteNillableResponse(w io.Writer, v interface{}, l log.Logger) {
	if v == nil {
		v = struct{}{}
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		l.Errorf("unable to send response: %s", err)
	}
}
