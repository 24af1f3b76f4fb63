/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/log"
	spilog "github.com/hyperledger/aries-framework-go/spi/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
)

//go:generate mockgen -destination ../../internal/gomocks/exchange/claim/mocks.gen.go -package claim github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim Store,Analytics

var logger = log.New("vcapi-exchange/claim")

// EventClaim is the analytics event name logged once per claimed credential.
const EventClaim = "claim"

// analytics event parameter names.
const (
	ParamCategory        = "category"
	ParamAchievementType = "achievementType"
	ParamAlreadyClaimed  = "alreadyClaimed"
)

// ErrNoStore is returned by New when no store is given.
var ErrNoStore = errors.New("claim executor requires a credential store")

// Store persists credentials into the holder's wallet.
// An error whose message contains "exists" signals a credential that is already in the wallet.
type Store interface {
	StoreAndAddCredentialToWallet(ctx context.Context, credential json.RawMessage, meta *Metadata) error
}

// Analytics receives fire-and-forget events. Implementations must be safe for concurrent use.
type Analytics interface {
	LogEvent(name string, params map[string]interface{})
}

// Categorizer derives display metadata for a credential.
type Categorizer interface {
	Category(credential json.RawMessage) string
	AchievementType(credential json.RawMessage) string
}

// Metadata is stored alongside a claimed credential.
type Metadata struct {
	Category        string `json:"category,omitempty"`
	AchievementType string `json:"achievementType,omitempty"`
}

// Status of a single credential claim.
type Status string

const (
	// StatusClaimed means the credential was stored by this call.
	StatusClaimed Status = "claimed"
	// StatusAlreadyClaimed means the wallet already held the credential.
	StatusAlreadyClaimed Status = "already-claimed"
	// StatusFailed means the store rejected the credential.
	StatusFailed Status = "failed"
)

// Outcome of one credential in a batch.
type Outcome struct {
	Index  int    `json:"index"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result of a claim batch.
type Result struct {
	Claimed        int       `json:"claimed"`
	AlreadyClaimed int       `json:"alreadyClaimed"`
	Outcomes       []Outcome `json:"outcomes,omitempty"`
}

// Total counts credentials the holder now has from this batch, new or previously claimed.
func (r *Result) Total() int {
	if r == nil {
		return 0
	}

	return r.Claimed + r.AlreadyClaimed
}

// Error is returned when at least one credential of a batch could not be stored.
// Credentials stored before the failure stay stored.
type Error struct {
	Reason   string
	Friendly *errclass.FriendlyError
	Result   *Result
	Err      error
}

func (e *Error) Error() string {
	return "claim credentials: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures an Executor.
type Option func(e *Executor)

// WithAnalytics sets the analytics sink.
func WithAnalytics(a Analytics) Option {
	return func(e *Executor) {
		e.analytics = a
	}
}

// WithCategorizer sets the categorizer used for analytics and storage metadata.
func WithCategorizer(c Categorizer) Option {
	return func(e *Executor) {
		e.categorizer = c
	}
}

// WithLogger overrides the module logger.
func WithLogger(l spilog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// Executor claims credential batches into the wallet.
type Executor struct {
	store       Store
	analytics   Analytics
	categorizer Categorizer
	logger      spilog.Logger
	tracer      trace.Tracer
}

// New returns a claim executor backed by store.
func New(store Store, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	e := &Executor{
		store:       store,
		analytics:   noopAnalytics{},
		categorizer: &TypeCategorizer{},
		logger:      logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.tracer == nil {
		e.tracer = otel.Tracer("vcapi-exchange/claim")
	}

	return e, nil
}

// Claim stores all credentials concurrently. Every credential is attempted; the first storage
// failure that is not an already-claimed signal fails the batch as a whole.
func (e *Executor) Claim(ctx context.Context, credentials []json.RawMessage) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "claim.batch",
		trace.WithAttributes(attribute.Int("claim.batch_size", len(credentials))))
	defer span.End()

	outcomes := make([]Outcome, len(credentials))

	// no shared context cancellation: a failure must not abort the remaining stores.
	var g errgroup.Group

	for i, cred := range credentials {
		i, cred := i, cred

		g.Go(func() error {
			outcomes[i] = e.claimOne(ctx, i, cred)
			if outcomes[i].Status == StatusFailed {
				return fmt.Errorf("credential %d: %s", i, outcomes[i].Error)
			}

			return nil
		})
	}

	err := g.Wait()

	result := &Result{Outcomes: outcomes}

	for _, o := range outcomes {
		switch o.Status {
		case StatusClaimed:
			result.Claimed++
		case StatusAlreadyClaimed:
			result.AlreadyClaimed++
		case StatusFailed:
		}
	}

	span.SetAttributes(attribute.Int("claim.claimed", result.Claimed),
		attribute.Int("claim.already_claimed", result.AlreadyClaimed))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		e.logger.Warnf("claim batch failed: claimed=%d alreadyClaimed=%d total=%d: %s",
			result.Claimed, result.AlreadyClaimed, len(credentials), err)

		return result, &Error{
			Reason:   err.Error(),
			Friendly: errclass.Classify(err),
			Result:   result,
			Err:      err,
		}
	}

	e.logger.Debugf("claim batch done: claimed=%d alreadyClaimed=%d", result.Claimed, result.AlreadyClaimed)

	return result, nil
}

func (e *Executor) claimOne(ctx context.Context, index int, cred json.RawMessage) Outcome {
	meta := &Metadata{
		Category:        e.categorizer.Category(cred),
		AchievementType: e.categorizer.AchievementType(cred),
	}

	err := e.store.StoreAndAddCredentialToWallet(ctx, cred, meta)

	switch {
	case err == nil:
		e.logClaimEvent(meta, false)

		return Outcome{Index: index, Status: StatusClaimed}
	case errclass.IsAlreadyClaimed(err):
		e.logger.Debugf("credential %d already claimed: %s", index, err)
		e.logClaimEvent(meta, true)

		return Outcome{Index: index, Status: StatusAlreadyClaimed}
	default:
		return Outcome{Index: index, Status: StatusFailed, Error: err.Error()}
	}
}

func (e *Executor) logClaimEvent(meta *Metadata, alreadyClaimed bool) {
	e.analytics.LogEvent(EventClaim, map[string]interface{}{
		ParamCategory:        meta.Category,
		ParamAchievementType: meta.AchievementType,
		ParamAlreadyClaimed:  alreadyClaimed,
	})
}

type noopAnalytics struct{}

func (noopAnalytics) LogEvent(string, map[string]interface{}) {}
