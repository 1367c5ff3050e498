package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

type fakePruner struct {
	published []int64
	exhausted []int64
	cutoffs   []time.Time
	attempts  int
	err       error
}

func pop(queue *[]int64) int64 {
	if len(*queue) == 0 {
		return 0
	}
	n := (*queue)[0]
	*queue = (*queue)[1:]
	return n
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, _ int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return pop(&f.published), nil
}

func (f *fakePruner) DeleteExhaustedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts, _ int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	f.attempts = minAttempts
	return pop(&f.exhausted), nil
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	p.calls++
	return fn(nil)
}

func newRetentionJob(t *testing.T, repo *fakePruner, tx *passthroughTx) *OutboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        logger.Nop(),
		DB:            tx,
		Repository:    repo,
		RetentionDays: 7,
		MaxAttempts:   5,
		BatchSize:     2,
	})
	require.NoError(t, err)
	return job
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakePruner{published: []int64{2, 2, 1}, exhausted: []int64{0}}
	tx := &passthroughTx{}
	job := newRetentionJob(t, repo, tx)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 4, tx.calls, "three published batches and one exhausted batch")
	assert.Equal(t, 5, repo.attempts)
	for _, cutoff := range repo.cutoffs {
		assert.Equal(t, now.Add(-7*24*time.Hour), cutoff)
	}
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	repo := &fakePruner{err: assert.AnError}
	job := newRetentionJob(t, repo, &passthroughTx{})

	err := job.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "prune published")
}

func TestOutboxRetentionDefaults(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         &passthroughTx{},
		Repository: &fakePruner{},
	})
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, job.retention)
	assert.Equal(t, defaultOutboxMaxAttempts, job.maxAttempts)
	assert.Equal(t, time.Hour, job.Every())

	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
