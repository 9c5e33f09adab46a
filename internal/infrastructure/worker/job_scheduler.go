package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
)

// JobScheduler implements port.Scheduler on the durable job table. The event
// name "reminder" schedules a followup reminder; any other name schedules that
// workflow signal.
type JobScheduler struct {
	jobs   port.JobRepository
	logger *zap.Logger
}

// NewJobScheduler creates a new JobScheduler
func NewJobScheduler(jobs port.JobRepository, logger *zap.Logger) *JobScheduler {
	return &JobScheduler{jobs: jobs, logger: logger}
}

// ScheduleAt implements port.Scheduler
func (s *JobScheduler) ScheduleAt(ctx context.Context, documentID int64, eventName string, dueTime time.Time, dedupeKey string) error {
	job := &entity.ScheduledJob{
		DocumentID: documentID,
		DedupeKey:  dedupeKey,
		DueAt:      dueTime,
	}
	if eventName == entity.JobKindReminder {
		job.Kind = entity.JobKindReminder
	} else {
		job.Kind = entity.JobKindProgress
		job.Trigger = eventName
	}
	if job.DedupeKey == "" {
		job.DedupeKey = fmt.Sprintf("%d:%s:%d", documentID, eventName, dueTime.UnixNano())
	}

	inserted, err := s.jobs.Schedule(ctx, job)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug("Job already scheduled", zap.String("dedupe_key", job.DedupeKey))
	}
	return nil
}

var _ port.Scheduler = (*JobScheduler)(nil)
