package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

type memJobs struct {
	mu   sync.Mutex
	jobs []*entity.ScheduledJob
}

func (m *memJobs) Schedule(ctx context.Context, job *entity.ScheduledJob) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.DedupeKey == job.DedupeKey {
			return false, nil
		}
	}
	job.ID = int64(len(m.jobs) + 1)
	job.Status = entity.JobStatusPending
	m.jobs = append(m.jobs, job)
	return true, nil
}

func (m *memJobs) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ScheduledJob
	for _, j := range m.jobs {
		if j.Status == entity.JobStatusPending && !j.DueAt.After(now) {
			j.Status = entity.JobStatusRunning
			j.Attempts++
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobs) find(id int64) *entity.ScheduledJob {
	for _, j := range m.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (m *memJobs) MarkDone(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.find(id).Status = entity.JobStatusDone
	return nil
}

func (m *memJobs) Reschedule(ctx context.Context, id int64, dueAt time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(id)
	j.Status = entity.JobStatusPending
	j.DueAt = dueAt
	j.LastError = lastErr
	return nil
}

func (m *memJobs) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(id)
	j.Status = entity.JobStatusFailed
	j.LastError = lastErr
	return nil
}

func (m *memJobs) ListByDocument(ctx context.Context, documentID int64) ([]*entity.ScheduledJob, error) {
	return m.jobs, nil
}

type stubStore struct {
	records map[int64]*entity.WorkflowRecord
}

func (s *stubStore) CreateIfAbsent(ctx context.Context, record *entity.WorkflowRecord) (bool, error) {
	return false, nil
}

func (s *stubStore) Get(ctx context.Context, documentID int64) (*entity.WorkflowRecord, error) {
	return s.records[documentID], nil
}

func (s *stubStore) GetByExternalRef(ctx context.Context, ref string) (*entity.WorkflowRecord, error) {
	return nil, nil
}

func (s *stubStore) CompareAndSwap(ctx context.Context, record *entity.WorkflowRecord, expectedStage domainwf.Stage, expectedVersion int64) (bool, error) {
	return false, nil
}

func (s *stubStore) SetExternalRef(ctx context.Context, documentID int64, ref string) error {
	return nil
}

type stubProgressor struct {
	mu     sync.Mutex
	calls  []domainwf.Signal
	result *appwf.Result
	err    error
}

func (p *stubProgressor) Progress(ctx context.Context, documentID int64, sig domainwf.Signal, opts ...appwf.ProgressOption) (*appwf.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sig)
	return p.result, p.err
}

type stubMessenger struct {
	sent []string
	err  error
}

func (m *stubMessenger) SendTemplatedMessage(ctx context.Context, documentID int64, channel domainwf.Channel, templateID string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, string(channel)+":"+templateID)
	return nil
}

type fixture struct {
	jobs       *memJobs
	store      *stubStore
	progressor *stubProgressor
	messenger  *stubMessenger
	scheduler  *JobScheduler
	worker     *SchedulerWorker
	now        time.Time
}

func newFixture() *fixture {
	f := &fixture{
		jobs:       &memJobs{},
		store:      &stubStore{records: map[int64]*entity.WorkflowRecord{}},
		progressor: &stubProgressor{result: &appwf.Result{Applied: true, NewStage: domainwf.StageClientSent}},
		messenger:  &stubMessenger{},
		now:        time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := DefaultSchedulerConfig()
	cfg.MaxAttempts = 2
	cfg.RetryBackoff = time.Minute
	f.scheduler = NewJobScheduler(f.jobs, zap.NewNop())
	f.worker = NewSchedulerWorker(cfg, f.jobs, f.store, f.progressor, f.messenger, zap.NewNop())
	f.worker.now = func() time.Time { return f.now }
	return f
}

func TestJobScheduler_MapsEventsToJobKinds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.scheduler.ScheduleAt(ctx, 1, "auto", f.now, "k1"))
	require.NoError(t, f.scheduler.ScheduleAt(ctx, 1, "auto", f.now, "k1"))
	require.NoError(t, f.scheduler.ScheduleAt(ctx, 1, entity.JobKindReminder, f.now.Add(time.Hour), "k2"))

	require.Len(t, f.jobs.jobs, 2)
	assert.Equal(t, entity.JobKindProgress, f.jobs.jobs[0].Kind)
	assert.Equal(t, "auto", f.jobs.jobs[0].Trigger)
	assert.Equal(t, entity.JobKindReminder, f.jobs.jobs[1].Kind)
}

func TestSchedulerWorker_RunsDueProgressJobs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.scheduler.ScheduleAt(ctx, 7, "auto", f.now.Add(-time.Second), "due"))
	require.NoError(t, f.scheduler.ScheduleAt(ctx, 7, "auto", f.now.Add(time.Hour), "later"))

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.progressor.calls, 1)
	assert.Equal(t, domainwf.TriggerAuto, f.progressor.calls[0].Trigger)
	assert.Equal(t, "scheduler", f.progressor.calls[0].Actor)
	assert.Equal(t, entity.JobStatusDone, f.jobs.jobs[0].Status)
	assert.Equal(t, entity.JobStatusPending, f.jobs.jobs[1].Status)
}

func TestSchedulerWorker_StaleAndInapplicableSignalsComplete(t *testing.T) {
	for name, setup := range map[string]func(*stubProgressor){
		"stale":         func(p *stubProgressor) { p.err = domainwf.ErrStaleState },
		"not applied":   func(p *stubProgressor) { p.result = &appwf.Result{Applied: false, NewStage: domainwf.StageAccepted} },
		"unknown stage": func(p *stubProgressor) { p.err = domainwf.ErrNotFound },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			setup(f.progressor)
			require.NoError(t, f.scheduler.ScheduleAt(context.Background(), 1, "auto", f.now, "k"))

			_, err := f.worker.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, entity.JobStatusDone, f.jobs.jobs[0].Status)
		})
	}
}

func TestSchedulerWorker_RetriesThenFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.progressor.err = errors.New("database is locked")
	require.NoError(t, f.scheduler.ScheduleAt(ctx, 1, "auto", f.now, "k"))

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	job := f.jobs.jobs[0]
	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, f.now.Add(time.Minute), job.DueAt)
	assert.Equal(t, "database is locked", job.LastError)

	f.now = f.now.Add(2 * time.Minute)
	_, err = f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
}

func TestSchedulerWorker_ReminderOnlyWhileAwaitingClient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.records[1] = &entity.WorkflowRecord{DocumentID: 1, CurrentStage: domainwf.StageClientReviewing}
	f.store.records[2] = &entity.WorkflowRecord{DocumentID: 2, CurrentStage: domainwf.StageAccepted}

	require.NoError(t, f.scheduler.ScheduleAt(ctx, 1, entity.JobKindReminder, f.now, "r1"))
	require.NoError(t, f.scheduler.ScheduleAt(ctx, 2, entity.JobKindReminder, f.now, "r2"))

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"team:" + domainwf.TemplateFollowupReminder}, f.messenger.sent)
	assert.Equal(t, entity.JobStatusDone, f.jobs.jobs[0].Status)
	assert.Equal(t, entity.JobStatusDone, f.jobs.jobs[1].Status)
}

func TestSchedulerWorker_StartStop(t *testing.T) {
	f := newFixture()
	f.worker.config.PollInterval = 5 * time.Millisecond
	f.worker.now = time.Now
	require.NoError(t, f.scheduler.ScheduleAt(context.Background(), 1, "auto", time.Now().Add(-time.Second), "k"))

	manager := NewManager(zap.NewNop())
	manager.Register(f.worker)
	require.NoError(t, manager.StartAll(context.Background()))
	assert.True(t, manager.IsRunning())
	assert.Error(t, manager.StartAll(context.Background()))

	assert.Eventually(t, func() bool {
		f.progressor.mu.Lock()
		defer f.progressor.mu.Unlock()
		return len(f.progressor.calls) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, manager.StopAll())
	assert.False(t, manager.IsRunning())
	assert.Equal(t, 1, manager.WorkerCount())
}
