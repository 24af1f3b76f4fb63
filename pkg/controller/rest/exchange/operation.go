/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/internal/cmdutil"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/rest"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
)

// All command operations.
const (
	OperationID = "/exchange"

	// command Paths.
	StartPath   = OperationID + "/start"
	ExplainPath = OperationID + "/explain"
	SessionPath = OperationID + "/{id}"
	SuggestPath = SessionPath + "/suggest"
	SelectPath  = SessionPath + "/select"
	RespondPath = SessionPath + "/respond"
	RetryPath   = SessionPath + "/retry"
	ClosePath   = SessionPath + "/close"
)

// provider contains dependencies for the exchange REST controller.
type provider interface {
	Transport() api.Transport
	Signer() api.Signer
	CredentialIndex() api.CredentialIndex
	Claimer() api.Claimer
}

// Operation contains REST operations provided by the exchange controller.
type Operation struct {
	handlers []rest.Handler
	command  *exchange.Command
}

// New returns new exchange REST controller.
func New(p provider, opts ...exchange.Option) *Operation {
	return NewFromCommand(exchange.New(p, opts...))
}

// NewFromCommand exposes an existing exchange command over REST.
func NewFromCommand(cmd *exchange.Command) *Operation {
	o := &Operation{command: cmd}

	o.registerHandler()

	return o
}

// GetRESTHandlers get all controller API handler available for this service.
func (o *Operation) GetRESTHandlers() []rest.Handler {
	return o.handlers
}

// registerHandler register handlers to be exposed from this service as REST API endpoints.
// Static paths come first so they are not captured by the session path.
func (o *Operation) registerHandler() {
	o.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(StartPath, http.MethodPost, o.Start),
		cmdutil.NewHTTPHandler(ExplainPath, http.MethodPost, o.Explain),
		cmdutil.NewHTTPHandler(SessionPath, http.MethodGet, o.Session),
		cmdutil.NewHTTPHandler(SuggestPath, http.MethodPost, o.Suggest),
		cmdutil.NewHTTPHandler(SelectPath, http.MethodPost, o.Select),
		cmdutil.NewHTTPHandler(RespondPath, http.MethodPost, o.Respond),
		cmdutil.NewHTTPHandler(RetryPath, http.MethodPost, o.Retry),
		cmdutil.NewHTTPHandler(ClosePath, http.MethodPost, o.Close),
	}
}

// Start swagger:route POST /exchange/start exchange startReq
//
// Opens a session for an exchange URL and sends the initial request.
//
// Responses:
//    default: genericError
//        200: sessionRes
func (o *Operation) Start(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Start, rw, req.Body)
}

// Session swagger:route GET /exchange/{id} exchange sessionReq
//
// Returns the current state of an exchange session.
//
// Responses:
//    default: genericError
//        200: sessionRes
func (o *Operation) Session(rw http.ResponseWriter, req *http.Request) {
	o.executeWithID(o.command.Session, rw, req)
}

// Suggest swagger:route POST /exchange/{id}/suggest exchange suggestReq
//
// Suggests stored credentials matching the presentation request of the session.
//
// Responses:
//    default: genericError
//        200: suggestRes
func (o *Operation) Suggest(rw http.ResponseWriter, req *http.Request) {
	o.executeWithID(o.command.Suggest, rw, req)
}

// Select swagger:route POST /exchange/{id}/select exchange selectReq
//
// Replaces the credentials selected for the presentation request of the session.
//
// Responses:
//    default: genericError
//        200: sessionRes
func (o *Operation) Select(rw http.ResponseWriter, req *http.Request) {
	id, found := getIDFromRequest(rw, req)
	if !found {
		return
	}

	request := &exchange.SelectRequest{}

	if err := json.NewDecoder(req.Body).Decode(request); err != nil {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, exchange.InvalidRequestErrorCode, err)

		return
	}

	request.SessionID = id

	b, err := json.Marshal(request)
	if err != nil {
		rest.SendHTTPStatusError(rw, http.StatusInternalServerError, exchange.InvalidRequestErrorCode, err)

		return
	}

	rest.Execute(o.command.Select, rw, bytes.NewReader(b))
}

// Respond swagger:route POST /exchange/{id}/respond exchange respondReq
//
// Answers the current state of the session and advances the exchange.
//
// Responses:
//    default: genericError
//        200: sessionRes
func (o *Operation) Respond(rw http.ResponseWriter, req *http.Request) {
	o.executeWithID(o.command.Respond, rw, req)
}

// Retry swagger:route POST /exchange/{id}/retry exchange retryReq
//
// Re-sends the last request of a failed session.
//
// Responses:
//    default: genericError
//        200: sessionRes
func (o *Operation) Retry(rw http.ResponseWriter, req *http.Request) {
	o.executeWithID(o.command.Retry, rw, req)
}

// Close swagger:route POST /exchange/{id}/close exchange closeReq
//
// Forgets an exchange session.
//
// Responses:
//    default: genericError
//        200: emptyRes
func (o *Operation) Close(rw http.ResponseWriter, req *http.Request) {
	o.executeWithID(o.command.Close, rw, req)
}

// Explain swagger:route POST /exchange/explain exchange explainReq
//
// Returns the user facing summary of a raw error message.
//
// Responses:
//    default: genericError
//        200: explainRes
func (o *Operation) Explain(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Explain, rw, req.Body)
}

func (o *Operation) executeWithID(exec command.Exec, rw http.ResponseWriter, req *http.Request) {
	id, found := getIDFromRequest(rw, req)
	if !found {
		return
	}

	rest.Execute(exec, rw, bytes.NewBufferString(fmt.Sprintf(`{"sessionID": %q}`, id)))
}

func getIDFromRequest(rw http.ResponseWriter, req *http.Request) (string, bool) {
	id := mux.Vars(req)["id"]
	if id == "" {
		rest.SendHTTPStatusError(rw, http.StatusBadRequest, exchange.InvalidRequestErrorCode,
			fmt.Errorf("empty session ID"))
		return "", false
	}

	return id, true
}
