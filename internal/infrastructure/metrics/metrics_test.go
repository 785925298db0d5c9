package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

func TestRecordEvent(t *testing.T) {
	m := New()

	require.NoError(t, m.RecordEvent(shared.NewPointsChangedEvent(shared.EventPointsEarned, "u", 30, 30, "")))
	require.NoError(t, m.RecordEvent(shared.NewPointsChangedEvent(shared.EventPointsRedeemed, "u", 10, 20, "Mug")))
	require.NoError(t, m.RecordEvent(shared.NewXPGrantedEvent("u", 250, "", 375)))
	require.NoError(t, m.RecordEvent(shared.NewLevelUpEvent("u", 2, 4, 172)))
	require.NoError(t, m.RecordEvent(shared.NewBadgeAwardedEvent("u", "goal_getter", "Goal Getter", "gold", 200)))

	assert.Equal(t, 30.0, testutil.ToFloat64(m.pointsMoved.WithLabelValues("earned")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.pointsMoved.WithLabelValues("spent")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.xpGranted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.levelUps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.badgesAwarded.WithLabelValues("goal_getter", "gold")))
}

func TestObserveHandlerAndJob(t *testing.T) {
	m := New()

	m.ObservePublish(shared.EventXPGranted)
	m.ObserveHandler(shared.EventXPGranted, time.Millisecond, nil)
	m.ObserveHandler(shared.EventXPGranted, time.Millisecond, errors.New("x"))
	m.ObserveJob("rebuild_leaderboard", time.Second, errors.New("x"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues(string(shared.EventXPGranted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues(string(shared.EventXPGranted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobFailures.WithLabelValues("rebuild_leaderboard")))
}

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	m := New()

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/users/{user_id}/points", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/"+id+"/points", nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/users/{user_id}/points", "GET", "201")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "progression_http_requests_total")
}
