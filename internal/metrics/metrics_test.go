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

func TestManagerCreation(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		Convey("When created with a custom registry", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithRegistry(registry),
				WithNamespace("test"),
				WithHistogramBuckets([]float64{0.1, 1}),
				WithConstLabels(map[string]string{"env": "test"}),
			)

			Convey("Then it registers on that registry", func() {
				So(m.Registry(), ShouldEqual, registry)
				m.PredictionCreated("1h")
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_")
			})
		})

		Convey("When created with defaults", func() {
			m := NewManager()

			Convey("Then runtime collectors are included", func() {
				families, err := m.Registry().Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if strings.HasPrefix(f.GetName(), "go_") {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		m := NewManager(WithRegistry(prometheus.NewRegistry()))

		Convey("When predictions and settlements are recorded", func() {
			m.PredictionCreated("1h")
			m.PredictionCreated("1h")
			m.PredictionRejected("slot_locked")
			m.PredictionSettled("correct", "sweep")
			m.ScoreRowAnomaly()
			m.RecordsArchived(3)
			m.RecordsArchived(-1)

			Convey("Then the counters reflect them", func() {
				So(testutil.ToFloat64(m.predictionsCreated.WithLabelValues("1h")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.predictionsRejected.WithLabelValues("slot_locked")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.evaluations.WithLabelValues("correct", "sweep")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.scoreRowAnomalies), ShouldEqual, 1)
				So(testutil.ToFloat64(m.archivedRecords), ShouldEqual, 3)
			})
		})

		Convey("When a sweep finishes", func() {
			m.SweepFinished("ok", 42, 250*time.Millisecond)

			Convey("Then the backlog gauge is set", func() {
				So(testutil.ToFloat64(m.sweepBacklog), ShouldEqual, 42)
				So(testutil.ToFloat64(m.sweepRuns.WithLabelValues("ok")), ShouldEqual, 1)
			})
		})

		Convey("When the handler is scraped", func() {
			m.HTTPRequest("GET /health", http.MethodGet, 200, time.Millisecond)
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Convey("Then the exposition contains the request counter", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `trendslot_http_requests_total{method="GET",route="GET /health",status="200"} 1`)
			})
		})
	})
}

func TestNilManagerIsNoop(t *testing.T) {
	Convey("Given a nil manager", t, func() {
		var m *Manager

		Convey("Then recording does not panic", func() {
			So(func() {
				m.PredictionCreated("1h")
				m.PredictionRejected("x")
				m.ScoreIncrementFailed()
				m.PredictionSettled("correct", "sweep")
				m.EvaluationFailed()
				m.SettleConflict()
				m.ScoreRowAnomaly()
				m.SweepFinished("ok", 0, 0)
				m.QuoteServed("live")
				m.LiveQuoteLatency(time.Second)
				m.RecordsArchived(1)
				m.HTTPRequest("r", "GET", 200, 0)
			}, ShouldNotPanic)
		})
	})
}
