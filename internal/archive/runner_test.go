package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	markets, snapshots, activity int64
	snapErr                      error

	calls   []string
	cutoffs []time.Time
}

func (f *fakeArchiver) ArchiveResolvedMarkets(_ context.Context, before time.Time) (int64, error) {
	f.calls = append(f.calls, "markets")
	f.cutoffs = append(f.cutoffs, before)
	return f.markets, nil
}

func (f *fakeArchiver) ArchiveSnapshots(_ context.Context, before time.Time) (int64, error) {
	f.calls = append(f.calls, "snapshots")
	if f.snapErr != nil {
		return 0, f.snapErr
	}
	return f.snapshots, nil
}

func (f *fakeArchiver) ArchiveActivity(_ context.Context, before time.Time) (int64, error) {
	f.calls = append(f.calls, "activity")
	return f.activity, nil
}

type fakeRetention struct {
	deleted int64
	calls   int
	before  time.Time
}

func (f *fakeRetention) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return f.deleted, nil
}

func newTestRunner(a *fakeArchiver, ret *fakeRetention) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(a, ret, 90, logger)
}

func TestRunExportsThenDeletesSnapshots(t *testing.T) {
	arch := &fakeArchiver{markets: 2, snapshots: 40, activity: 7}
	ret := &fakeRetention{deleted: 40}
	runner := newTestRunner(arch, ret)

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, []string{"markets", "snapshots", "activity"}, arch.calls)
	assert.Equal(t, 1, ret.calls)

	// cutoff honors the retention window and the delete uses the same cutoff
	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, arch.cutoffs[0], time.Minute)
	assert.Equal(t, arch.cutoffs[0], ret.before)
}

func TestRunSkipsDeleteWhenNothingExported(t *testing.T) {
	arch := &fakeArchiver{snapshots: 0}
	ret := &fakeRetention{}
	runner := newTestRunner(arch, ret)

	require.NoError(t, runner.Run(context.Background()))
	assert.Zero(t, ret.calls)
}

func TestRunStopsOnExportError(t *testing.T) {
	arch := &fakeArchiver{snapErr: errors.New("bucket gone")}
	ret := &fakeRetention{}
	runner := newTestRunner(arch, ret)

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "bucket gone")
	// rows survive a failed export
	assert.Zero(t, ret.calls)
	assert.NotContains(t, arch.calls, "activity")
}

func TestNextCronTimeDaily(t *testing.T) {
	after := time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 16, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeMonthly(t *testing.T) {
	after := time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeValueList(t *testing.T) {
	after := time.Date(2026, 8, 15, 14, 10, 0, 0, time.UTC)
	next, err := nextCronTime("0,30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC), next)
}

func TestNextCronTimeAdvancesPastCurrentMinute(t *testing.T) {
	after := time.Date(2026, 8, 15, 3, 0, 20, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 16, 3, 0, 0, 0, time.UTC), next)
}

func TestParseCronErrors(t *testing.T) {
	_, err := parseCron("0 3 * *")
	assert.ErrorContains(t, err, "5 fields")

	_, err = parseCron("x 3 * * *")
	assert.ErrorContains(t, err, "minute")

	_, err = parseCron("0 3 * * mon")
	assert.ErrorContains(t, err, "day-of-week")
}
