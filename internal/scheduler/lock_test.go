package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/directdebit/internal/lock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockLocker) Release(ctx context.Context, key, token string) error {
	return m.Called(ctx, key, token).Error(0)
}

func TestPollTaskReleasesWithIssuedToken(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	key := lock.TaskKey("gocardless", "IS1")
	locker := &mockLocker{}
	locker.On("TryLock", mock.Anything, key, time.Minute).Return("tok-1", true, nil).Once()
	locker.On("Release", mock.Anything, key, "tok-1").Return(nil).Once()

	proc := &stubProcessor{due: tasks("IS1")}
	s := newTestScheduler(t, proc, nil)
	s.locker = locker

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, []string{"IS1"}, proc.processed)
	locker.AssertExpectations(t)
}

func TestPollTaskLockErrorSkipsProcessing(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	lockErr := errors.New("redis unavailable")
	locker := &mockLocker{}
	locker.On("TryLock", mock.Anything, mock.AnythingOfType("string"), time.Minute).Return("", false, lockErr)

	proc := &stubProcessor{due: tasks("IS1", "IS2")}
	s := newTestScheduler(t, proc, nil)
	s.locker = locker

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, lockErr)
	require.Empty(t, proc.processed)
	locker.AssertNumberOfCalls(t, "TryLock", 2)
	locker.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}
