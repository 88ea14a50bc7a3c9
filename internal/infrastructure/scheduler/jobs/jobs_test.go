package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/retry"
)

type fakeRefresher struct {
	errs  []error
	calls []command.RefreshRegistryCommand
}

func (f *fakeRefresher) Handle(_ context.Context, cmd command.RefreshRegistryCommand) (student.RefreshStats, error) {
	f.calls = append(f.calls, cmd)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return student.RefreshStats{}, err
	}
	return student.RefreshStats{Version: uint64(len(f.calls)), Accepted: 3}, nil
}

func TestRefreshRegistryJobBroadcasts(t *testing.T) {
	f := &fakeRefresher{}
	job := NewRefreshRegistryJob(f, nil)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, f.calls, 1)
	assert.True(t, f.calls[0].Broadcast)
	assert.Equal(t, "scheduled", f.calls[0].Trigger)
}

func TestRefreshRegistryJobRetriesTransientErrors(t *testing.T) {
	f := &fakeRefresher{errs: []error{retry.Retryable(errors.New("connection reset"))}}
	job := NewRefreshRegistryJob(f, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, f.calls, 2)
}

func TestRefreshRegistryJobStopsOnPermanentErrors(t *testing.T) {
	bad := errors.New("bad credentials")
	f := &fakeRefresher{errs: []error{bad}}
	job := NewRefreshRegistryJob(f, nil)

	assert.ErrorIs(t, job.Run(context.Background()), bad)
	assert.Len(t, f.calls, 1)
}

type fakeLedger struct {
	asOf time.Time
	out  []*intervention.Intervention
	err  error
}

func (f *fakeLedger) Overdue(_ context.Context, asOf time.Time) ([]*intervention.Intervention, error) {
	f.asOf = asOf
	return f.out, f.err
}

type fakeCounter struct {
	count int64
	asOf  time.Time
	err   error
}

func (f *fakeCounter) SetOverdueCount(_ context.Context, count int64, asOf time.Time) error {
	f.count, f.asOf = count, asOf
	return f.err
}

func TestOverdueInterventionsJob(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	ledger := &fakeLedger{out: []*intervention.Intervention{
		{ID: "a", StudentID: "S1", DueDate: "2026-05-01"},
		{ID: "b", StudentID: "S2", DueDate: "2026-05-03"},
	}}
	counter := &fakeCounter{}
	job := NewOverdueInterventionsJob(ledger, counter, nil)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now, ledger.asOf)
	assert.Equal(t, int64(2), counter.count)
	assert.Equal(t, now, counter.asOf)
}

func TestOverdueInterventionsJobErrors(t *testing.T) {
	job := NewOverdueInterventionsJob(&fakeLedger{err: errors.New("db down")}, &fakeCounter{}, nil)
	assert.ErrorContains(t, job.Run(context.Background()), "db down")

	job = NewOverdueInterventionsJob(&fakeLedger{}, &fakeCounter{err: errors.New("redis down")}, nil)
	assert.ErrorContains(t, job.Run(context.Background()), "redis down")
}
