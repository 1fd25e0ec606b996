package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/warp/staking-engine/generic"
)

func TestRecorder(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.RecordStake("flex")
	m.RecordStake("flex")
	m.RecordPayout("flex", generic.PayoutClaim, generic.USD(70))
	m.RecordFailure("flex", "claim", generic.ErrNoRewardsYet)
	m.RecordFailure("flex", "claim", errors.New("boom"))
	m.RecordLedger("flex", "set_earnings")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StakesTotal.WithLabelValues("flex")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayoutsTotal.WithLabelValues("flex", "claim")))
	assert.Equal(t, 70.0, testutil.ToFloat64(m.PayoutUSD.WithLabelValues("flex", "claim")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("flex", "claim", "no_rewards_yet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("flex", "claim", "internal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("flex", "set_earnings")))
}

func TestSchedulerRuns(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	at := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	m.RecordSchedulerRun(at, nil)
	m.RecordSchedulerRun(at, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues("error")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.LastSchedulerOK))
}

func TestHandlerAndMiddleware(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/strategies/{id}", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/metrics", m.Handler().ServeHTTP)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/strategies/flex", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `route="/strategies/{id}"`))
}
