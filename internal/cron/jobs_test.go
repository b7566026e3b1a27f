package cronrunner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"memewars/internal/config"
	"memewars/internal/service"
)

type fakeJobs struct {
	retries int
	keeps   int
	err     error
}

func (f *fakeJobs) RetryYieldForwards(context.Context, int) (int, error) {
	f.retries++
	return 1, f.err
}

func (f *fakeJobs) SettleEnded(context.Context, int) (int, error) {
	f.keeps++
	return 0, f.err
}

type switchMap map[string]bool

func (m switchMap) IsEnabled(_ context.Context, key string, fallback bool) bool {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func TestJobsHonorSwitches(t *testing.T) {
	jobs := &fakeJobs{}
	off := switchMap{service.FeatureYieldForwarding: false, service.FeatureSettleKeeper: false}
	ctx := context.Background()

	assert.NoError(t, retryJob(jobs, off, zap.NewNop())(ctx))
	assert.NoError(t, keeperJob(jobs, off, zap.NewNop())(ctx))
	assert.Zero(t, jobs.retries)
	assert.Zero(t, jobs.keeps)

	on := switchMap{}
	assert.NoError(t, retryJob(jobs, on, zap.NewNop())(ctx))
	assert.NoError(t, keeperJob(jobs, on, zap.NewNop())(ctx))
	assert.Equal(t, 1, jobs.retries)
	assert.Equal(t, 1, jobs.keeps)
}

func TestJobErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	jobs := &fakeJobs{err: boom}
	assert.ErrorIs(t, retryJob(jobs, switchMap{}, zap.NewNop())(context.Background()), boom)
}

func TestRegisterBattleJobs(t *testing.T) {
	r := New(zap.NewNop(), context.Background())
	err := RegisterBattleJobs(r, config.CronConfig{YieldRetry: "@every 1m", Keeper: "*/30 * * * * *"}, &fakeJobs{}, switchMap{}, nil)
	assert.NoError(t, err)
	assert.Len(t, r.cron.Entries(), 2)

	err = RegisterBattleJobs(New(nil, context.Background()), config.CronConfig{Keeper: "not a schedule"}, &fakeJobs{}, switchMap{}, nil)
	assert.Error(t, err)
}
