package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/trendslot/internal/domain"
	"github.com/alanyoungcy/trendslot/internal/notify"
)

// Alerter delivers operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ArchiveJob copies completed days of evaluated predictions to cold storage.
// Each run walks back over the retention window so days missed while the
// worker was down are caught up; already archived days cost one existence
// check.
type ArchiveJob struct {
	archiver      domain.Archiver
	loc           *time.Location
	retentionDays int
	schedule      parsedCron
	alerts        Alerter
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiveJob creates an ArchiveJob. schedule is a 5-field cron expression
// matched against wall-clock time in loc. alerts may be nil.
func NewArchiveJob(
	archiver domain.Archiver,
	loc *time.Location,
	retentionDays int,
	schedule string,
	alerts Alerter,
	logger *slog.Logger,
) (*ArchiveJob, error) {
	cron, err := parseCron(schedule)
	if err != nil {
		return nil, fmt.Errorf("pipeline: archive schedule %q: %w", schedule, err)
	}
	return &ArchiveJob{
		archiver:      archiver,
		loc:           loc,
		retentionDays: max(retentionDays, 1),
		schedule:      cron,
		alerts:        alerts,
		logger:        logger.With(slog.String("component", "archive_job")),
		now:           time.Now,
	}, nil
}

// Run archives every completed day inside the retention window, oldest
// first. A failing day is logged and the run moves on; the joined errors are
// returned.
func (j *ArchiveJob) Run(ctx context.Context) (int, error) {
	local := j.now().In(j.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, j.loc)

	var (
		total int
		errs  []error
	)
	for back := j.retentionDays; back >= 1; back-- {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		day := today.AddDate(0, 0, -back)
		n, err := j.archiver.ArchiveDay(ctx, day)
		if err != nil {
			j.logger.ErrorContext(ctx, "archive_job: day failed",
				slog.String("day", day.Format("2006-01-02")),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		total += n
	}

	if total > 0 {
		j.logger.InfoContext(ctx, "archive_job: run complete", slog.Int("records", total))
	}
	if err := errors.Join(errs...); err != nil {
		j.alert(ctx, err)
		return total, err
	}
	return total, nil
}

// RunCron runs the job whenever the schedule matches until ctx is cancelled.
func (j *ArchiveJob) RunCron(ctx context.Context) error {
	for {
		next, err := j.schedule.next(j.now().In(j.loc))
		if err != nil {
			return err
		}
		wait := time.Until(next)
		j.logger.DebugContext(ctx, "archive_job: waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			_, _ = j.Run(ctx)
		}
	}
}

func (j *ArchiveJob) alert(ctx context.Context, cause error) {
	if j.alerts == nil {
		return
	}
	if err := j.alerts.Notify(ctx, notify.EventArchiveFailed, "Prediction archive failed", cause.Error()); err != nil {
		j.logger.WarnContext(ctx, "archive_job: alert failed", slog.String("error", err.Error()))
	}
}

// cronField is one parsed cron field.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField accepts "*", a number, or a comma-separated list, each
// value within [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		if v < lo || v > hi {
			return cronField{}, fmt.Errorf("cron field value %d outside %d-%d", v, lo, hi)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds the five fields of a cron expression.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// next returns the first minute after `after` matching c, in after's
// location. It searches at most one year ahead.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, errors.New("no matching cron time within one year")
}

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}
	return parsedCron{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}
