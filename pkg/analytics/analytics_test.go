/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package analytics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/exchange/claim"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/internal/mocklogger"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.LogEvent(claim.EventClaim, map[string]interface{}{
		claim.ParamCategory: claim.CategoryAchievement, claim.ParamAlreadyClaimed: false,
	})
	m.LogEvent(claim.EventClaim, map[string]interface{}{
		claim.ParamCategory: claim.CategoryAchievement, claim.ParamAlreadyClaimed: true,
	})
	m.LogEvent(claim.EventClaim, nil)
	m.LogEvent("login", nil)

	require.Equal(t, float64(1), testutil.ToFloat64(m.ClaimEvents.WithLabelValues(claim.CategoryAchievement, "false")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ClaimEvents.WithLabelValues(claim.CategoryAchievement, "true")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ClaimEvents.WithLabelValues(claim.CategoryUnknown, "false")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.Events.WithLabelValues(claim.EventClaim)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues("login")))

	m.StateEntered("did-auth")
	m.StateEntered("did-auth")
	require.Equal(t, float64(2), testutil.ToFloat64(m.Transitions.WithLabelValues("did-auth")))

	m.ActiveSessions.Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
}

func TestLoggerAndMulti(t *testing.T) {
	l := &mocklogger.MockLogger{}
	m := NewMetrics(prometheus.NewRegistry())

	sink := Multi{&Logger{Log: l}, m}
	sink.LogEvent(claim.EventClaim, map[string]interface{}{
		claim.ParamCategory: "ID", claim.ParamAchievementType: "", claim.ParamAlreadyClaimed: false,
	})

	require.Equal(t, "INFO event=[claim] achievementType=[] alreadyClaimed=[false] category=[ID]", l.AllLogContents())
	require.Equal(t, float64(1), testutil.ToFloat64(m.ClaimEvents.WithLabelValues("ID", "false")))
}
