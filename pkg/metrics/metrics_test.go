package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCounters(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		m := NewManager(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

		Convey("When attempts are recorded", func() {
			m.RecordAttempt(false, false)
			m.RecordAttempt(false, true)
			m.RecordAttempt(true, false)

			Convey("Then outcomes and blocks are counted separately", func() {
				So(testutil.ToFloat64(m.attemptsRecorded.WithLabelValues("failure")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.attemptsRecorded.WithLabelValues("success")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.blockedAttempts), ShouldEqual, 1)
			})
		})

		Convey("When validations and conflicts are recorded", func() {
			m.RecordValidationCreated()
			m.RecordConflictRecovered()
			m.RecordConflictRecovered()

			Convey("Then both counters move", func() {
				So(testutil.ToFloat64(m.validationsCreated), ShouldEqual, 1)
				So(testutil.ToFloat64(m.conflictsRecovered), ShouldEqual, 2)
			})
		})

		Convey("When the handler is scraped", func() {
			m.RecordLeaderboardQuery("weekly")
			m.ObserveOperation("record_attempt", 5*time.Millisecond)

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Convey("Then the exposition contains the namespaced series", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				body := rec.Body.String()
				So(strings.Contains(body, `test_progression_leaderboard_queries_total{scope="weekly"} 1`), ShouldBeTrue)
				So(strings.Contains(body, "test_progression_operation_duration_seconds"), ShouldBeTrue)
			})
		})
	})
}

func TestNilManager(t *testing.T) {
	Convey("Given a nil manager", t, func() {
		var m *Manager

		Convey("Then recording is a no-op", func() {
			So(func() {
				m.RecordAttempt(true, false)
				m.RecordValidationCreated()
				m.RecordCacheResult("hit")
				m.ObserveHTTPRequest("/health", 200, time.Millisecond)
			}, ShouldNotPanic)
			So(m.Registry(), ShouldBeNil)
		})
	})
}
