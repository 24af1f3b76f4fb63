/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package analytics provides sinks for claim events and exchange metrics.
package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"
	spilog "github.com/hyperledger/aries-framework-go/spi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
)

var logger = log.New("vcapi-exchange/analytics")

// Sink receives fire-and-forget analytics events.
type Sink interface {
	LogEvent(name string, params map[string]interface{})
}

// Metrics holds the Prometheus metrics of the exchange service.
type Metrics struct {
	ClaimEvents    *prometheus.CounterVec
	Events         *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers the metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		ClaimEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcapi_exchange_credentials_claimed_total",
			Help: "Total number of credentials claimed, labeled by category and whether they were already held",
		}, []string{"category", "already_claimed"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcapi_exchange_events_total",
			Help: "Total number of analytics events, labeled by event name",
		}, []string{"event"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcapi_exchange_state_transitions_total",
			Help: "Total number of exchange states entered, labeled by state",
		}, []string{"state"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcapi_exchange_active_sessions",
			Help: "Current number of open exchange sessions",
		}),
	}
}

// LogEvent counts an event. Claim events are also counted by category.
func (m *Metrics) LogEvent(name string, params map[string]interface{}) {
	m.Events.WithLabelValues(name).Inc()

	if name != claim.EventClaim {
		return
	}

	category, _ := params[claim.ParamCategory].(string) // nolint:errcheck
	if category == "" {
		category = claim.CategoryUnknown
	}

	already, _ := params[claim.ParamAlreadyClaimed].(bool) // nolint:errcheck

	m.ClaimEvents.WithLabelValues(category, fmt.Sprint(already)).Inc()
}

// StateEntered counts an exchange state.
func (m *Metrics) StateEntered(state string) {
	m.Transitions.WithLabelValues(state).Inc()
}

// Logger writes every event as one info line.
type Logger struct {
	Log spilog.Logger
}

// LogEvent logs the event with its parameters sorted by name.
func (l *Logger) LogEvent(name string, params map[string]interface{}) {
	out := l.Log
	if out == nil {
		out = logger
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=[%v]", k, params[k]))
	}

	out.Infof("event=[%s] %s", name, strings.Join(pairs, " "))
}

// Multi sends every event to each sink.
type Multi []Sink

// LogEvent forwards the event.
func (m Multi) LogEvent(name string, params map[string]interface{}) {
	for _, s := range m {
		s.LogEvent(name, params)
	}
}
