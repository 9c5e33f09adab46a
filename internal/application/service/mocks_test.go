package service

import (
	"context"
	"errors"
	"sync"
	"time"

	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type memTaskRepo struct {
	mu     sync.Mutex
	tasks  []*entity.Task
	nextID int64
}

func (m *memTaskRepo) InsertIfAbsent(ctx context.Context, task *entity.Task) (*entity.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.DocumentID == task.DocumentID && t.TaskType == task.TaskType && t.IsOpen() {
			return t, false, nil
		}
	}
	m.nextID++
	task.ID = m.nextID
	m.tasks = append(m.tasks, task)
	return task, true, nil
}

func (m *memTaskRepo) FindOpen(ctx context.Context, documentID int64, taskType domainwf.TaskType) (*entity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.DocumentID == documentID && t.TaskType == taskType && t.IsOpen() {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTaskRepo) CompleteOpen(ctx context.Context, documentID int64, taskType domainwf.TaskType, notes string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		if t.DocumentID == documentID && t.TaskType == taskType && t.IsOpen() {
			t.Status = entity.TaskStatusCompleted
			t.CompletionNotes = notes
			n++
		}
	}
	return n, nil
}

func (m *memTaskRepo) LatestAssignee(ctx context.Context, documentID int64, types []domainwf.TaskType) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tasks) - 1; i >= 0; i-- {
		t := m.tasks[i]
		if t.DocumentID != documentID {
			continue
		}
		for _, tt := range types {
			if t.TaskType == tt && t.Assignee != "" {
				return t.Assignee, nil
			}
		}
	}
	return "", nil
}

func (m *memTaskRepo) ListByDocument(ctx context.Context, documentID int64) ([]*entity.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Task
	for _, t := range m.tasks {
		if t.DocumentID == documentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTaskRepo) count(documentID int64, taskType domainwf.TaskType) int {
	tasks, _ := m.ListByDocument(context.Background(), documentID)
	n := 0
	for _, t := range tasks {
		if t.TaskType == taskType {
			n++
		}
	}
	return n
}

type memStore struct {
	mu      sync.Mutex
	records map[int64]*entity.WorkflowRecord
}

func newMemStore(records ...*entity.WorkflowRecord) *memStore {
	s := &memStore{records: make(map[int64]*entity.WorkflowRecord)}
	for _, r := range records {
		s.records[r.DocumentID] = r
	}
	return s
}

func (m *memStore) CreateIfAbsent(ctx context.Context, record *entity.WorkflowRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.DocumentID]; ok {
		return false, nil
	}
	m.records[record.DocumentID] = record
	return true, nil
}

func (m *memStore) Get(ctx context.Context, documentID int64) (*entity.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[documentID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetByExternalRef(ctx context.Context, ref string) (*entity.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if ref != "" && r.ExternalRef == ref {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CompareAndSwap(ctx context.Context, record *entity.WorkflowRecord, expectedStage domainwf.Stage, expectedVersion int64) (bool, error) {
	return false, errors.New("not used")
}

func (m *memStore) SetExternalRef(ctx context.Context, documentID int64, ref string) error {
	return nil
}

type memDecisions struct {
	mu        sync.Mutex
	decisions []*entity.ApprovalDecision
	err       error
}

func (m *memDecisions) Append(ctx context.Context, d *entity.ApprovalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	d.ID = int64(len(m.decisions) + 1)
	m.decisions = append(m.decisions, d)
	return nil
}

func (m *memDecisions) Latest(ctx context.Context, documentID int64) (*entity.ApprovalDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.decisions) - 1; i >= 0; i-- {
		if m.decisions[i].DocumentID == documentID {
			return m.decisions[i], nil
		}
	}
	return nil, nil
}

func (m *memDecisions) ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalDecision, error) {
	return nil, nil
}

// fakeProgressor applies the outcome it is told to return and runs commit hooks
type fakeProgressor struct {
	calls  []domainwf.Signal
	result *appwf.Result
	err    error
}

func (f *fakeProgressor) Progress(ctx context.Context, documentID int64, sig domainwf.Signal, opts ...appwf.ProgressOption) (*appwf.Result, error) {
	f.calls = append(f.calls, sig)
	if f.err != nil {
		return nil, f.err
	}
	if f.result.Applied {
		applyHooks(ctx, opts)
	}
	return f.result, nil
}

func applyHooks(ctx context.Context, opts []appwf.ProgressOption) {
	for _, hook := range appwf.CommitHooks(opts...) {
		_ = hook(ctx, &entity.WorkflowRecord{UpdatedAt: time.Now()})
	}
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeMessenger) SendTemplatedMessage(ctx context.Context, documentID int64, channel domainwf.Channel, templateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, string(channel)+":"+templateID)
	return nil
}

type scheduledCall struct {
	documentID int64
	event      string
	due        time.Time
	key        string
}

type fakeScheduler struct {
	calls []scheduledCall
}

func (f *fakeScheduler) ScheduleAt(ctx context.Context, documentID int64, eventName string, dueTime time.Time, dedupeKey string) error {
	f.calls = append(f.calls, scheduledCall{documentID, eventName, dueTime, dedupeKey})
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Type
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
