/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange implements the holder side of a VC-API credential exchange.
//
// An exchange is a sequence of POST requests to a single exchange URL. Every response is classified
// (presentation request, presentation, redirect or unknown) and moves the Session to a new State:
//
//	initiate -> loading -> did-auth | presentation-request | accept-credentials | redirect | error | finished
//
// The Machine only sends requests and interprets responses. Building the next request body is left to
// the handlers: DIDAuthBody, PresentationBody, AcceptCredentials and OpenRedirect. Whether bodies are
// wrapped under "verifiablePresentation" is decided once, from the first recognized response.
package exchange
