package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/chicagopizza/pizzeria-backend/internal/storage"
	"github.com/chicagopizza/pizzeria-backend/pkg/logger"
	"go.uber.org/multierr"
)

const storageRetentionJobName = "storage-retention"

type staleEntryDeleter interface {
	DeleteStale(ctx context.Context, key string, cutoff time.Time) (int64, error)
}

type removedRecorder interface {
	AddRemoved(key string, rows int64)
}

type StorageRetentionJobParams struct {
	Logger           *logger.Logger
	Repository       staleEntryDeleter
	Metrics          removedRecorder
	CartRetention    time.Duration
	ProfileRetention time.Duration
}

type retentionRule struct {
	key string
	ttl time.Duration
}

type storageRetentionJob struct {
	logg    *logger.Logger
	repo    staleEntryDeleter
	metrics removedRecorder
	rules   []retentionRule
	now     func() time.Time
}

// NewStorageRetentionJob removes abandoned carts and saved profiles that were not touched
// within their retention windows. A zero retention disables cleanup for that key.
func NewStorageRetentionJob(params StorageRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("storage repository required")
	}
	var rules []retentionRule
	if params.CartRetention > 0 {
		rules = append(rules, retentionRule{key: storage.Cart.Name, ttl: params.CartRetention})
	}
	if params.ProfileRetention > 0 {
		rules = append(rules, retentionRule{key: storage.CustomerProfile.Name, ttl: params.ProfileRetention})
	}
	return &storageRetentionJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
		rules:   rules,
		now:     time.Now,
	}, nil
}

func (j *storageRetentionJob) Name() string { return storageRetentionJobName }

// Run attempts every key even when an earlier one fails.
func (j *storageRetentionJob) Run(ctx context.Context) error {
	var errs error
	for _, rule := range j.rules {
		cutoff := j.now().UTC().Add(-rule.ttl)
		rows, err := j.repo.DeleteStale(ctx, rule.key, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete stale %s: %w", rule.key, err))
			continue
		}
		if j.metrics != nil {
			j.metrics.AddRemoved(rule.key, rows)
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"storage_key":  rule.key,
			"cutoff":       cutoff,
			"rows_deleted": rows,
		}), "cron.storage_retention_swept")
	}
	return errs
}
