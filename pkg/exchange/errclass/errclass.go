/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package errclass turns opaque exchange and claim errors into a small set of user facing categories.
//
// Classification is a case-insensitive substring match over an ordered rule table; the first matching
// rule wins. The table is data: keep the order and the wording stable, tests pin every rule.
package errclass

import (
	"strings"
)

// FriendlyError is the user facing summary of a raw error.
type FriendlyError struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	RawMessage  string `json:"rawMessage,omitempty"`
}

// Error implements error so a FriendlyError can travel through error returns.
func (e *FriendlyError) Error() string {
	if e.RawMessage == "" {
		return e.Title
	}

	return e.Title + ": " + e.RawMessage
}

// Rule maps a set of trigger phrases to one category.
type Rule struct {
	Name        string
	Triggers    []string
	Title       string
	Description string
	Suggestion  string
}

// Rules is the ordered rule table. Order resolves messages matching more than one rule.
// nolint:gochecknoglobals
var Rules = []Rule{
	{
		Name:        "not-found",
		Triggers:    []string{"could not find boost", "could not find", "not found"},
		Title:       "Credential Not Found",
		Description: "We couldn't find the credential you're trying to claim.",
		Suggestion:  "The credential may have been removed or the link may be incorrect. Please contact the issuer.",
	},
	{
		Name:        "expired-claim-token",
		Triggers:    []string{"invalid claim token", "claim token", "expired"},
		Title:       "Link Expired",
		Description: "This claim link has expired or has already been used.",
		Suggestion:  "Ask the issuer to send you a new claim link.",
	},
	{
		Name:        "draft-not-ready",
		Triggers:    []string{"draft"},
		Title:       "Credential Not Ready",
		Description: "This credential is still being prepared by the issuer.",
		Suggestion:  "Please try again later or contact the issuer.",
	},
	{
		Name:        "verification-failed",
		Triggers:    []string{"challenge", "verification failed", "failed to verify"},
		Title:       "Verification Failed",
		Description: "We couldn't verify your identity with the issuer.",
		Suggestion:  "Please try again. If the problem persists, restart the claim from the original link.",
	},
	{
		Name:        "no-pending-credentials",
		Triggers:    []string{"no pending credentials", "no credentials"},
		Title:       "Nothing to Claim",
		Description: "There are no credentials waiting to be claimed from this link.",
		Suggestion:  "You may have already claimed this credential. Check your wallet.",
	},
	{
		Name:        "invalid-exchange",
		Triggers:    []string{"invalid exchange", "exchange is not active", "exchange has already"},
		Title:       "Invalid Exchange",
		Description: "This exchange is no longer valid.",
		Suggestion:  "Start again from the original link or ask the issuer for a new one.",
	},
	{
		Name:        "server-error",
		Triggers:    []string{"internal server error", "internal", "server error"},
		Title:       "Server Error",
		Description: "The issuer's server ran into a problem.",
		Suggestion:  "Please try again in a few minutes.",
	},
	{
		Name:        "signing-authority",
		Triggers:    []string{"signing authority"},
		Title:       "Issuer Configuration Error",
		Description: "The issuer is not set up to sign this credential.",
		Suggestion:  "Please contact the issuer and let them know about this error.",
	},
}

// Default is returned when no rule matches.
// nolint:gochecknoglobals
var Default = Rule{
	Name:        "default",
	Title:       "Something Went Wrong",
	Description: "An unexpected error occurred while processing your request.",
	Suggestion:  "Please try again. If the problem persists, contact support.",
}

const alreadyExistsTrigger = "exists"

// Classify returns the friendly summary of err, nil if err is nil.
func Classify(err error) *FriendlyError {
	if err == nil {
		return nil
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage returns the friendly summary of a raw error message.
func ClassifyMessage(msg string) *FriendlyError {
	return Match(msg).friendly(msg)
}

// Match returns the first rule matching msg, or Default.
func Match(msg string) Rule {
	lower := strings.ToLower(msg)

	for _, rule := range Rules {
		for _, trigger := range rule.Triggers {
			if strings.Contains(lower, trigger) {
				return rule
			}
		}
	}

	return Default
}

// IsAlreadyClaimed reports whether a storage error signals a credential that is already in the wallet.
func IsAlreadyClaimed(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), alreadyExistsTrigger)
}

func (r Rule) friendly(raw string) *FriendlyError {
	return &FriendlyError{
		Title:       r.Title,
		Description: r.Description,
		Suggestion:  r.Suggestion,
		RawMessage:  raw,
	}
}
