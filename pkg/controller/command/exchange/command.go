/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package exchange exposes credential exchange sessions as controller commands.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/analytics"
	exchangeclient "github.com/learningeconomy/vcapi-exchange-go/pkg/client/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/command"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/internal/cmdutil"
	vcapi "github.com/learningeconomy/vcapi-exchange-go/pkg/exchange"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/api"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/errclass"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/internal/logutil"
)

var logger = log.New("vcapi-exchange/command/exchange")

// Error codes.
const (
	// InvalidRequestErrorCode is typically a code for invalid requests.
	InvalidRequestErrorCode = command.Code(iota + command.Exchange)

	// StartExchangeErrorCode for errors while starting an exchange.
	StartExchangeErrorCode

	// SessionNotFoundErrorCode for requests addressing an unknown session.
	SessionNotFoundErrorCode

	// SessionBusyErrorCode for requests made while another operation holds the session.
	SessionBusyErrorCode

	// SuggestErrorCode for errors while suggesting credentials.
	SuggestErrorCode

	// SelectErrorCode for errors while selecting credentials.
	SelectErrorCode

	// RespondErrorCode for errors while responding to the exchange.
	RespondErrorCode

	// RetryErrorCode for errors while retrying a failed request.
	RetryErrorCode
)

// All command operations.
const (
	CommandName = "exchange"

	// command methods.
	StartMethod   = "Start"
	SessionMethod = "Session"
	SuggestMethod = "Suggest"
	SelectMethod  = "Select"
	RespondMethod = "Respond"
	RetryMethod   = "Retry"
	CloseMethod   = "Close"
	ExplainMethod = "Explain"
)

// miscellaneous constants for the exchange command controller.
const (
	// log constants.
	logSuccess      = "success"
	logSessionIDKey = "sessionID"
	logStateKey     = "state"

	defaultTimeout    = 30 * time.Second
	defaultSessionTTL = 30 * time.Minute
)

var (
	errEmptyURL        = errors.New("exchange url is required")
	errEmptySessionID  = errors.New("session ID is required")
	errSessionNotFound = errors.New("exchange session not found")
)

// provider contains dependencies for the exchange command controller.
type provider interface {
	Transport() api.Transport
	Signer() api.Signer
	CredentialIndex() api.CredentialIndex
	Claimer() api.Claimer
}

// Option configures the exchange command controller.
type Option func(c *Command)

// WithMetrics counts states entered and open sessions on m.
func WithMetrics(m *analytics.Metrics) Option {
	return func(c *Command) {
		c.metrics = m
	}
}

// WithObserver is notified of every state entered by any session.
func WithObserver(o vcapi.Observer) Option {
	return func(c *Command) {
		c.observers = append(c.observers, o)
	}
}

// WithSessionTTL forgets sessions left idle for longer than ttl.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Command) {
		c.ttl = ttl
	}
}

// WithTimeout bounds every operation talking to an exchange endpoint.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Command) {
		c.timeout = timeout
	}
}

type entry struct {
	client *exchangeclient.Client
	opener *recordingOpener
	// touched is guarded by Command.mu.
	touched time.Time
}

// Command contains operations provided by the exchange controller.
type Command struct {
	ctx       provider
	metrics   *analytics.Metrics
	observers []vcapi.Observer
	timeout   time.Duration
	ttl       time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// New returns new exchange controller command instance.
func New(p provider, opts ...Option) *Command {
	cmd := &Command{
		ctx:      p,
		timeout:  defaultTimeout,
		ttl:      defaultSessionTTL,
		now:      time.Now,
		sessions: map[string]*entry{},
	}

	for _, opt := range opts {
		opt(cmd)
	}

	return cmd
}

// GetHandlers returns list of all commands supported by this controller command.
func (o *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, StartMethod, o.Start),
		cmdutil.NewCommandHandler(CommandName, SessionMethod, o.Session),
		cmdutil.NewCommandHandler(CommandName, SuggestMethod, o.Suggest),
		cmdutil.NewCommandHandler(CommandName, SelectMethod, o.Select),
		cmdutil.NewCommandHandler(CommandName, RespondMethod, o.Respond),
		cmdutil.NewCommandHandler(CommandName, RetryMethod, o.Retry),
		cmdutil.NewCommandHandler(CommandName, CloseMethod, o.Close),
		cmdutil.NewCommandHandler(CommandName, ExplainMethod, o.Explain),
	}
}

// Start opens a session for an exchange URL and sends the initial request.
// A failing exchange is not a command error: the returned session is in the error state.
func (o *Command) Start(rw io.Writer, req io.Reader) command.Error {
	request := &StartRequest{}

	err := command.ReadRequest(req, request)
	if err != nil {
		logutil.LogInfo(logger, CommandName, StartMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if err = validateURL(request.URL); err != nil {
		logutil.LogInfo(logger, CommandName, StartMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	e, err := o.open(request.URL)
	if err != nil {
		logutil.LogError(logger, CommandName, StartMethod, err.Error())

		return command.NewExecuteError(StartExchangeErrorCode, err)
	}

	ctx, cancel := o.context()
	defer cancel()

	s, err := e.client.Start(ctx)
	if err != nil {
		o.remove(s.ID)
		logutil.LogError(logger, CommandName, StartMethod, err.Error(),
			logutil.CreateKeyValueString(logSessionIDKey, s.ID))

		return command.NewExecuteError(StartExchangeErrorCode, err)
	}

	command.WriteNillableResponse(rw, e.response(), logger)
	o.release(e)

	logutil.LogDebug(logger, CommandName, StartMethod, logSuccess,
		logutil.CreateKeyValueString(logSessionIDKey, s.ID),
		logutil.CreateKeyValueString(logStateKey, s.State.Name()))

	return nil
}

// Session returns the current state of a session.
func (o *Command) Session(rw io.Writer, req io.Reader) command.Error {
	e, cmdErr := o.lookup(SessionMethod, req)
	if cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, e.response(), logger)

	return nil
}

// Suggest fills the selection of a presentation request with matching stored credentials.
func (o *Command) Suggest(rw io.Writer, req io.Reader) command.Error {
	e, cmdErr := o.lookup(SuggestMethod, req)
	if cmdErr != nil {
		return cmdErr
	}

	ctx, cancel := o.context()
	defer cancel()

	creds, err := e.client.Suggest(ctx)
	if err != nil {
		return o.sessionError(SuggestMethod, SuggestErrorCode, e, err)
	}

	command.WriteNillableResponse(rw, &SuggestResponse{Credentials: creds}, logger)

	logutil.LogDebug(logger, CommandName, SuggestMethod, logSuccess,
		logutil.CreateKeyValueString(logSessionIDKey, e.client.Session().ID))

	return nil
}

// Select replaces the selection of a presentation request.
func (o *Command) Select(rw io.Writer, req io.Reader) command.Error {
	request := &SelectRequest{}

	err := command.ReadRequest(req, request)
	if err != nil {
		logutil.LogInfo(logger, CommandName, SelectMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	e, cmdErr := o.get(SelectMethod, request.SessionID)
	if cmdErr != nil {
		return cmdErr
	}

	if err = e.client.Select(request.Credentials); err != nil {
		return o.sessionError(SelectMethod, SelectErrorCode, e, err)
	}

	command.WriteNillableResponse(rw, e.response(), logger)

	logutil.LogDebug(logger, CommandName, SelectMethod, logSuccess,
		logutil.CreateKeyValueString(logSessionIDKey, request.SessionID))

	return nil
}

// Respond answers the current state of a session and advances it.
func (o *Command) Respond(rw io.Writer, req io.Reader) command.Error {
	e, cmdErr := o.lookup(RespondMethod, req)
	if cmdErr != nil {
		return cmdErr
	}

	ctx, cancel := o.context()
	defer cancel()

	s, err := e.client.Respond(ctx)
	if err != nil {
		return o.sessionError(RespondMethod, RespondErrorCode, e, err)
	}

	command.WriteNillableResponse(rw, e.response(), logger)
	o.release(e)

	logutil.LogDebug(logger, CommandName, RespondMethod, logSuccess,
		logutil.CreateKeyValueString(logSessionIDKey, s.ID),
		logutil.CreateKeyValueString(logStateKey, s.State.Name()))

	return nil
}

// Retry re-sends the last request of a failed session.
func (o *Command) Retry(rw io.Writer, req io.Reader) command.Error {
	e, cmdErr := o.lookup(RetryMethod, req)
	if cmdErr != nil {
		return cmdErr
	}

	ctx, cancel := o.context()
	defer cancel()

	s, err := e.client.Retry(ctx)
	if err != nil {
		return o.sessionError(RetryMethod, RetryErrorCode, e, err)
	}

	command.WriteNillableResponse(rw, e.response(), logger)
	o.release(e)

	logutil.LogDebug(logger, CommandName, RetryMethod, logSuccess,
		logutil.CreateKeyValueString(logSessionIDKey, s.ID),
		logutil.CreateKeyValueString(logStateKey, s.State.Name()))

	return nil
}

// Close forgets a session.
func (o *Command) Close(rw io.Writer, req io.Reader) command.Error {
	e, cmdErr := o.lookup(CloseMethod, req)
	if cmdErr != nil {
		return cmdErr
	}

	id := e.client.Session().ID
	o.remove(id)

	command.WriteNillableResponse(rw, nil, logger)

	logutil.LogDebug(logger, CommandName, CloseMethod, logSuccess,
		logutil.CreateKeyValueString(logSessionIDKey, id))

	return nil
}

// Explain returns the user facing summary of a raw error message.
func (o *Command) Explain(rw io.Writer, req io.Reader) command.Error {
	request := &ExplainRequest{}

	err := command.ReadRequest(req, request)
	if err != nil {
		logutil.LogInfo(logger, CommandName, ExplainMethod, err.Error())

		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	command.WriteNillableResponse(rw, &ExplainResponse{errclass.ClassifyMessage(request.Message)}, logger)

	return nil
}

func (o *Command) open(exchangeURL string) (*entry, error) {
	e := &entry{opener: &recordingOpener{}}

	opts := []exchangeclient.Option{exchangeclient.WithOpener(e.opener)}

	if o.metrics != nil {
		opts = append(opts, exchangeclient.WithObserver(func(s vcapi.Session) {
			o.metrics.StateEntered(s.State.Name())
		}))
	}

	for _, obs := range o.observers {
		opts = append(opts, exchangeclient.WithObserver(obs))
	}

	client, err := exchangeclient.New(exchangeURL, o.ctx, opts...)
	if err != nil {
		return nil, err
	}

	e.client = client

	o.sweep()

	o.mu.Lock()
	e.touched = o.now()
	o.sessions[client.Session().ID] = e
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Inc()
	}

	return e, nil
}

// release forgets a session once nothing more can be done with it: the exchange finished, or
// its redirect was handed to the caller.
func (o *Command) release(e *entry) {
	s := e.client.Session()

	if s.State == vcapi.StateFinished || (s.State == vcapi.StateRedirect && e.opener.URL() != "") {
		o.remove(s.ID)

		logutil.LogDebug(logger, CommandName, "release", logSuccess,
			logutil.CreateKeyValueString(logSessionIDKey, s.ID),
			logutil.CreateKeyValueString(logStateKey, s.State.Name()))
	}
}

// sweep forgets sessions idle for longer than the session TTL.
func (o *Command) sweep() {
	if o.ttl <= 0 {
		return
	}

	deadline := o.now().Add(-o.ttl)

	var expired []string

	o.mu.RLock()
	for id, e := range o.sessions {
		if e.touched.Before(deadline) {
			expired = append(expired, id)
		}
	}
	o.mu.RUnlock()

	for _, id := range expired {
		o.remove(id)

		logutil.LogInfo(logger, CommandName, "sweep", "idle session expired",
			logutil.CreateKeyValueString(logSessionIDKey, id))
	}
}

func (o *Command) remove(id string) {
	o.mu.Lock()
	_, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()

	if ok && o.metrics != nil {
		o.metrics.ActiveSessions.Dec()
	}
}

// lookup decodes an IDRequest and returns its session.
func (o *Command) lookup(method string, req io.Reader) (*entry, command.Error) {
	request := &IDRequest{}

	err := command.ReadRequest(req, request)
	if err != nil {
		logutil.LogInfo(logger, CommandName, method, err.Error())

		return nil, command.NewValidationError(InvalidRequestErrorCode, err)
	}

	return o.get(method, request.SessionID)
}

func (o *Command) get(method, id string) (*entry, command.Error) {
	if id == "" {
		logutil.LogInfo(logger, CommandName, method, errEmptySessionID.Error())

		return nil, command.NewValidationError(InvalidRequestErrorCode, errEmptySessionID)
	}

	o.mu.Lock()
	e, ok := o.sessions[id]
	if ok {
		e.touched = o.now()
	}
	o.mu.Unlock()

	if !ok {
		logutil.LogInfo(logger, CommandName, method, errSessionNotFound.Error(),
			logutil.CreateKeyValueString(logSessionIDKey, id))

		return nil, command.NewValidationError(SessionNotFoundErrorCode, fmt.Errorf("%w: %s", errSessionNotFound, id))
	}

	return e, nil
}

func (o *Command) sessionError(method string, code command.Code, e *entry, err error) command.Error {
	logutil.LogError(logger, CommandName, method, err.Error(),
		logutil.CreateKeyValueString(logSessionIDKey, e.client.Session().ID))

	switch {
	case errors.Is(err, exchangeclient.ErrSessionBusy):
		return command.NewExecuteError(SessionBusyErrorCode, err)
	case errors.Is(err, exchangeclient.ErrNotPresentationRequest),
		errors.Is(err, exchangeclient.ErrExchangeFinished),
		errors.Is(err, vcapi.ErrInvalidTransition),
		errors.Is(err, vcapi.ErrNoCredentialsSelected):
		return command.NewValidationError(code, err)
	default:
		return command.NewExecuteError(code, err)
	}
}

func (o *Command) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

func (e *entry) response() *SessionResponse {
	return &SessionResponse{
		Session:      e.client.Session(),
		Selected:     e.client.Selected(),
		HasSuggested: e.client.HasSuggested(),
		Claim:        e.client.LastClaim(),
		RedirectURL:  e.opener.URL(),
	}
}

func validateURL(exchangeURL string) error {
	if exchangeURL == "" {
		return errEmptyURL
	}

	u, err := url.Parse(exchangeURL)
	if err != nil {
		return fmt.Errorf("invalid exchange url: %w", err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid exchange url: %s", exchangeURL)
	}

	return nil
}

// recordingOpener keeps the redirect URL so it can be handed back to the caller.
type recordingOpener struct {
	mu  sync.RWMutex
	url string
}

func (r *recordingOpener) Open(_ context.Context, redirectURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.url = redirectURL

	return nil
}

func (r *recordingOpener) URL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.url
}
