package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

type gateFixture struct {
	gate       ApprovalGate
	store      *memStore
	tasks      *memTaskRepo
	decisions  *memDecisions
	progressor *fakeProgressor
	publisher  *recordingPublisher
}

func newGateFixture(records ...*entity.WorkflowRecord) *gateFixture {
	f := &gateFixture{
		store:      newMemStore(records...),
		tasks:      &memTaskRepo{},
		decisions:  &memDecisions{},
		progressor: &fakeProgressor{result: &appwf.Result{Applied: true}},
		publisher:  &recordingPublisher{},
	}
	logger := &mockLogger{}
	directory := NewStaticApproverDirectory("head", map[string]string{"emea": "erin"})
	f.gate = NewApprovalGate(f.progressor, f.store, NewTaskLedger(f.tasks, logger), directory, f.decisions, f.publisher, DefaultPolicy(), logger)
	return f
}

func pendingApprovalRecord(id int64) *entity.WorkflowRecord {
	return &entity.WorkflowRecord{
		DocumentID:   id,
		CurrentStage: domainwf.StagePendingApproval,
		Metadata:     map[string]interface{}{entity.MetaBusinessUnit: "EMEA"},
	}
}

type failingDirectory struct{}

func (failingDirectory) ResolveApprover(ctx context.Context, businessUnit string) (string, error) {
	return "", errors.New("directory unavailable")
}

func TestApprovalGate_OpenApprovalCreatesSingleTask(t *testing.T) {
	record := pendingApprovalRecord(1)
	f := newGateFixture(record)
	ctx := context.Background()
	action := domainwf.CreateTask(domainwf.TaskTypeApproval)

	follow, err := f.gate.OpenApproval(ctx, record, action)
	require.NoError(t, err)
	assert.Nil(t, follow)
	_, err = f.gate.OpenApproval(ctx, record, action)
	require.NoError(t, err)

	assert.Equal(t, 1, f.tasks.count(1, domainwf.TaskTypeApproval))
	open, _ := f.tasks.FindOpen(ctx, 1, domainwf.TaskTypeApproval)
	require.NotNil(t, open)
	assert.Equal(t, "erin", open.Assignee)
	require.NotNil(t, open.DueDate)

	latest, err := f.gate.LatestDecision(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, entity.DecisionStatusPending, latest.Status)
	assert.Len(t, f.decisions.decisions, 1)
}

func TestApprovalGate_OpenApprovalUsesCommittedRecord(t *testing.T) {
	// the stored record may already be past pending_approval; the committed one decides
	stored := pendingApprovalRecord(2)
	stored.CurrentStage = domainwf.StageApproved
	f := newGateFixture(stored)

	committed := pendingApprovalRecord(2)
	committed.RevisionCount = 2
	_, err := f.gate.OpenApproval(context.Background(), committed, domainwf.CreateTask(domainwf.TaskTypeApproval))
	require.NoError(t, err)

	open, _ := f.tasks.FindOpen(context.Background(), 2, domainwf.TaskTypeApproval)
	require.NotNil(t, open)
	assert.Equal(t, 2, open.Metadata[entity.MetaRevisionCycle])
}

func TestApprovalGate_OpenApprovalFailuresAbortCommit(t *testing.T) {
	record := pendingApprovalRecord(3)
	logger := &mockLogger{}
	tasks := &memTaskRepo{}
	gate := NewApprovalGate(&fakeProgressor{}, newMemStore(record), NewTaskLedger(tasks, logger), failingDirectory{}, &memDecisions{}, nil, DefaultPolicy(), logger)

	_, err := gate.OpenApproval(context.Background(), record, domainwf.CreateTask(domainwf.TaskTypeApproval))
	require.Error(t, err)
	assert.Equal(t, 0, tasks.count(3, domainwf.TaskTypeApproval))

	f := newGateFixture(record)
	f.decisions.err = errors.New("disk full")
	_, err = f.gate.OpenApproval(context.Background(), record, domainwf.CreateTask(domainwf.TaskTypeApproval))
	assert.Error(t, err)
}

func TestApprovalGate_RecordDecision(t *testing.T) {
	f := newGateFixture(pendingApprovalRecord(4))

	result, err := f.gate.RecordApprovalDecision(context.Background(), 4, entity.DecisionStatusRejected, "price too low", "erin")
	require.NoError(t, err)
	assert.True(t, result.Applied)

	require.Len(t, f.progressor.calls, 1)
	sig := f.progressor.calls[0]
	assert.Equal(t, domainwf.TriggerDecision, sig.Trigger)
	assert.Equal(t, domainwf.DecisionRejected, sig.Value)
	assert.Equal(t, "price too low", sig.Note)
	assert.Equal(t, "erin", sig.Actor)

	require.Len(t, f.decisions.decisions, 1)
	assert.Equal(t, entity.DecisionStatusRejected, f.decisions.decisions[0].Status)
	assert.Contains(t, f.publisher.types(), event.TypeDecisionRecorded)
}

func TestApprovalGate_RecordDecisionNotApplied(t *testing.T) {
	f := newGateFixture(pendingApprovalRecord(5))
	f.progressor.result = &appwf.Result{Applied: false, NewStage: domainwf.StageDraft}

	result, err := f.gate.RecordApprovalDecision(context.Background(), 5, entity.DecisionStatusApproved, "", "erin")
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Empty(t, f.decisions.decisions)
	assert.Empty(t, f.publisher.types())
}

func TestApprovalGate_RecordDecisionAfterDecided(t *testing.T) {
	for _, stage := range []domainwf.Stage{domainwf.StageApproved, domainwf.StageRejected, domainwf.StageClientSent} {
		t.Run(string(stage), func(t *testing.T) {
			f := newGateFixture(pendingApprovalRecord(5))
			f.progressor.result = &appwf.Result{Applied: false, NewStage: stage}

			_, err := f.gate.RecordApprovalDecision(context.Background(), 5, entity.DecisionStatusRejected, "", "late")
			assert.True(t, errors.Is(err, domainwf.ErrStaleState))
			assert.Empty(t, f.decisions.decisions)
			assert.Empty(t, f.publisher.types())
		})
	}
}

func TestApprovalGate_RecordDecisionStale(t *testing.T) {
	f := newGateFixture(pendingApprovalRecord(6))
	f.progressor.err = domainwf.ErrStaleState

	_, err := f.gate.RecordApprovalDecision(context.Background(), 6, entity.DecisionStatusApproved, "", "erin")
	assert.True(t, errors.Is(err, domainwf.ErrStaleState))
	assert.Empty(t, f.decisions.decisions)
}

func TestApprovalGate_RecordDecisionInvalidStatus(t *testing.T) {
	f := newGateFixture(pendingApprovalRecord(7))

	for _, status := range []string{"", entity.DecisionStatusPending, "maybe"} {
		_, err := f.gate.RecordApprovalDecision(context.Background(), 7, status, "", "erin")
		assert.True(t, errors.Is(err, domainwf.ErrInvalidSignal), status)
	}
	assert.Empty(t, f.progressor.calls)
}

func TestApprovalGate_RecordExternalDecision(t *testing.T) {
	record := pendingApprovalRecord(8)
	record.ExternalRef = "inst-8"
	f := newGateFixture(record)
	ctx := context.Background()

	require.NoError(t, f.gate.RecordExternalDecision(ctx, "inst-8", entity.DecisionStatusApproved, "ok", "erin"))
	require.Len(t, f.progressor.calls, 1)
	assert.Equal(t, domainwf.DecisionApproved, f.progressor.calls[0].Value)

	err := f.gate.RecordExternalDecision(ctx, "unknown", entity.DecisionStatusApproved, "", "erin")
	assert.True(t, errors.Is(err, domainwf.ErrNotFound))

	// a lost race is not an error for the event source
	f.progressor.err = domainwf.ErrStaleState
	assert.NoError(t, f.gate.RecordExternalDecision(ctx, "inst-8", entity.DecisionStatusRejected, "", "erin"))
}
