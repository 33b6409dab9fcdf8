package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/identity"
)

type stubSweeper struct {
	res   identity.SweepResult
	err   error
	calls int
}

func (s *stubSweeper) Sweep(context.Context) (identity.SweepResult, error) {
	s.calls++
	return s.res, s.err
}

func TestSweepJob_Handle(t *testing.T) {
	s := &stubSweeper{res: identity.SweepResult{Expired: 4}}
	job := NewSweepJob(s, nil)

	require.NoError(t, job.Handle(context.Background(), NewSweepTask()))
	assert.Equal(t, 1, s.calls)
}

func TestSweepJob_HandleSkippedIsSuccess(t *testing.T) {
	job := NewSweepJob(&stubSweeper{res: identity.SweepResult{Skipped: true}}, nil)
	assert.NoError(t, job.Handle(context.Background(), NewSweepTask()))
}

func TestSweepJob_HandleError(t *testing.T) {
	boom := errors.New("db down")
	job := NewSweepJob(&stubSweeper{err: boom}, nil)
	assert.ErrorIs(t, job.Handle(context.Background(), NewSweepTask()), boom)
}

func TestNewSweepTask(t *testing.T) {
	assert.Equal(t, TaskObservedSweep, NewSweepTask().Type())
}
