/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package rest holds the helpers shared by the REST controllers.
package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command"
)

var logger = log.New("vcapi-exchange/rest")

// Handler http handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// genericErrorBody is the error response of every REST endpoint.
type genericErrorBody struct {
	Code    command.Code `json:"code"`
	Message string       `json:"message"`
}

// Execute runs exec with the request body and writes its response. Command errors are written with
// SendError.
func Execute(exec command.Exec, rw http.ResponseWriter, req io.Reader) {
	rw.Header().Set("Content-Type", "application/json")

	var buf bytes.Buffer

	if err := exec(&buf, req); err != nil {
		SendError(rw, err)

		return
	}

	if _, err := rw.Write(buf.Bytes()); err != nil {
		logger.Errorf("Unable to send response, %s", err)
	}
}

// SendError writes a command error: 400 for validation errors, 500 otherwise.
func SendError(rw http.ResponseWriter, err command.Error) {
	status := http.StatusInternalServerError
	if err.Type() == command.ValidationError {
		status = http.StatusBadRequest
	}

	SendHTTPStatusError(rw, status, err.Code(), err)
}

// SendHTTPStatusError writes statusCode with an error body.
func SendHTTPStatusError(rw http.ResponseWriter, statusCode int, code command.Code, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)

	e := json.NewEncoder(rw).Encode(genericErrorBody{
		Code:    code,
		Message: err.Error(),
	})
	if e != nil {
		logger.Errorf("Unable to send error response, %s", e)
	}
}
