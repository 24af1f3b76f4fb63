/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command/exchange"
)

// startRequest is request model for starting an exchange.
//
// swagger:parameters startReq
type startRequest struct { // nolint: unused,deadcode
	// Params for starting an exchange.
	//
	// in: body
	Params *exchange.StartRequest
}

// sessionIDRequest addresses an existing exchange session.
//
// swagger:parameters sessionReq suggestReq respondReq retryReq closeReq
type sessionIDRequest struct { // nolint: unused,deadcode
	// Exchange session ID.
	//
	// in: path
	// required: true
	ID string `json:"id"`
}

// selectRequest is request model for selecting credentials.
//
// swagger:parameters selectReq
type selectRequest struct { // nolint: unused,deadcode
	// Exchange session ID.
	//
	// in: path
	// required: true
	ID string `json:"id"`

	// Params for selecting credentials. The session ID of the body is ignored.
	//
	// in: body
	Params *exchange.SelectRequest
}

// explainRequest is request model for explaining an error message.
//
// swagger:parameters explainReq
type explainRequest struct { // nolint: unused,deadcode
	// in: body
	Params *exchange.ExplainRequest
}

// sessionResponse is response model of every operation returning a session.
//
// swagger:response sessionRes
type sessionResponse struct { // nolint: unused,deadcode
	// in: body
	exchange.SessionResponse
}

// suggestResponse is response model for credential suggestion.
//
// swagger:response suggestRes
type suggestResponse struct { // nolint: unused,deadcode
	// in: body
	exchange.SuggestResponse
}

// explainResponse is response model for explaining an error message.
//
// swagger:response explainRes
type explainResponse struct { // nolint: unused,deadcode
	// in: body
	exchange.ExplainResponse
}

// emptyRes model
//
// swagger:response emptyRes
type emptyRes struct{} // nolint: unused,deadcode
