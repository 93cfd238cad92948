// Package archive runs the cold-storage job: resolved markets, probability
// history, and aged feed entries are exported to object storage, and
// exported probability rows are then removed from Postgres.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/parlaygames/parlay/internal/domain"
)

// SnapshotRetention deletes probability history older than a cutoff. The
// Postgres snapshot store satisfies it.
type SnapshotRetention interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Runner drives archive runs, one-shot or on a cron schedule.
type Runner struct {
	archiver      domain.Archiver
	snapshots     SnapshotRetention
	retentionDays int
	logger        *slog.Logger
}

// NewRunner creates a Runner. retentionDays sets the cutoff for every run:
// anything older than now minus the retention window is exported.
func NewRunner(archiver domain.Archiver, snapshots SnapshotRetention, retentionDays int, logger *slog.Logger) *Runner {
	return &Runner{
		archiver:      archiver,
		snapshots:     snapshots,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// Run executes a single archive pass. Probability snapshots are deleted only
// after their export succeeded; market and activity rows are left in place
// for their own retention mechanisms.
func (r *Runner) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.InfoContext(ctx, "archive run started",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	markets, err := r.archiver.ArchiveResolvedMarkets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: markets before %v: %w", cutoff, err)
	}

	snaps, err := r.archiver.ArchiveSnapshots(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: snapshots before %v: %w", cutoff, err)
	}

	var deleted int64
	if snaps > 0 {
		deleted, err = r.snapshots.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive: delete snapshots before %v: %w", cutoff, err)
		}
	}

	activity, err := r.archiver.ArchiveActivity(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: activity before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("markets", markets),
		slog.Int64("snapshots", snaps),
		slog.Int64("snapshots_deleted", deleted),
		slog.Int64("activity", activity),
	)
	return nil
}

// RunCron runs archive passes on a standard 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until the context is
// cancelled. A failed run is logged and the next trigger is awaited.
func (r *Runner) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.InfoContext(ctx, "archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive: parse cron %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		r.logger.InfoContext(ctx, "archive waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "archive cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive run failed", slog.Any("error", err))
			}
		}
	}
}

// cronField matches one position of a cron expression: a wildcard or an
// explicit value list.
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

func parseCronField(field string) (cronField, error) {
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
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

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

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var (
		parsed parsedCron
		err    error
	)
	if parsed.minute, err = parseCronField(fields[0]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	if parsed.hour, err = parseCronField(fields[1]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	if parsed.dayOfMonth, err = parseCronField(fields[2]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	if parsed.month, err = parseCronField(fields[3]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	if parsed.dayOfWeek, err = parseCronField(fields[4]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}
	return parsed, nil
}

// nextCronTime finds the first minute after 'after' matching the expression,
// scanning at most one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year for %q", cronExpr)
}
