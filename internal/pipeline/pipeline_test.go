package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/alanyoungcy/trendslot/internal/notify"
	"github.com/alanyoungcy/trendslot/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingArchiver struct {
	mu   sync.Mutex
	days []string
	fail map[string]bool
}

func (r *recordingArchiver) ArchiveDay(_ context.Context, dayStart time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := dayStart.Format("2006-01-02")
	r.days = append(r.days, day)
	if r.fail[day] {
		return 0, errors.New("upload refused")
	}
	return 1, nil
}

type recordingAlerter struct {
	events []string
}

func (a *recordingAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.events = append(a.events, event)
	return nil
}

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) EvaluateExpired(context.Context) (service.SweepReport, error) {
	c.calls.Add(1)
	return service.SweepReport{}, nil
}

func TestCron(t *testing.T) {
	Convey("Given a daily cron expression", t, func() {
		c, err := parseCron("30 0 * * *")
		So(err, ShouldBeNil)

		Convey("The next run is the following 00:30 in the given zone", func() {
			loc, _ := time.LoadLocation("Europe/Berlin")
			next, err := c.next(time.Date(2026, 3, 28, 12, 0, 0, 0, loc))
			So(err, ShouldBeNil)
			So(next.Equal(time.Date(2026, 3, 29, 0, 30, 0, 0, loc)), ShouldBeTrue)
		})

		Convey("A matching minute is not returned again", func() {
			at := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
			next, err := c.next(at)
			So(err, ShouldBeNil)
			So(next.Equal(at.AddDate(0, 0, 1)), ShouldBeTrue)
		})
	})

	Convey("Given invalid expressions", t, func() {
		for _, expr := range []string{"", "* * * *", "61 * * * *", "0 24 * * *", "x * * * *", "0 0 0 * *"} {
			_, err := parseCron(expr)
			So(err, ShouldNotBeNil)
		}
	})
}

func TestArchiveJob(t *testing.T) {
	Convey("Given an archive job with a three day window", t, func() {
		loc, _ := time.LoadLocation("Europe/Berlin")
		arch := &recordingArchiver{fail: map[string]bool{}}
		alerts := &recordingAlerter{}
		job, err := NewArchiveJob(arch, loc, 3, "30 0 * * *", alerts, quietLogger())
		So(err, ShouldBeNil)
		job.now = func() time.Time { return time.Date(2026, 3, 10, 0, 30, 0, 0, loc) }

		Convey("It archives the completed days oldest first", func() {
			n, err := job.Run(context.Background())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			So(arch.days, ShouldResemble, []string{"2026-03-07", "2026-03-08", "2026-03-09"})
			So(alerts.events, ShouldBeEmpty)
		})

		Convey("A failing day does not stop the others and raises an alert", func() {
			arch.fail["2026-03-08"] = true
			n, err := job.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(n, ShouldEqual, 2)
			So(len(arch.days), ShouldEqual, 3)
			So(alerts.events, ShouldResemble, []string{notify.EventArchiveFailed})
		})
	})

	Convey("Given a bad schedule", t, func() {
		_, err := NewArchiveJob(&recordingArchiver{}, time.UTC, 1, "daily", nil, quietLogger())
		So(err, ShouldNotBeNil)
	})
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler with a fast sweep interval", t, func() {
		sweeper := &countingSweeper{}
		s := NewScheduler(sweeper, 10*time.Millisecond, nil, quietLogger())

		Convey("It sweeps immediately and on every tick until cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
			defer cancel()
			err := s.Run(ctx)
			So(err, ShouldBeNil)
			So(sweeper.calls.Load(), ShouldBeGreaterThanOrEqualTo, 2)
		})
	})

	Convey("Given a scheduler with a non-positive interval", t, func() {
		s := NewScheduler(&countingSweeper{}, 0, nil, quietLogger())

		Convey("Run fails", func() {
			err := s.Run(context.Background())
			So(err, ShouldNotBeNil)
		})
	})
}
