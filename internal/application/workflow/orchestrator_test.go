package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/garyjia/quotation-workflow/internal/application/executor"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Mock implementations

type mockStore struct {
	mu      sync.Mutex
	records map[int64]*entity.WorkflowRecord

	// beforeCAS runs before each compare-and-swap, letting tests simulate a concurrent writer
	beforeCAS func(m *mockStore)
	casCalls  int
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[int64]*entity.WorkflowRecord)}
}

func (m *mockStore) CreateIfAbsent(ctx context.Context, record *entity.WorkflowRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.DocumentID]; ok {
		return false, nil
	}
	cp := *record
	cp.Version = 1
	m.records[record.DocumentID] = &cp
	return true, nil
}

func (m *mockStore) Get(ctx context.Context, documentID int64) (*entity.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[documentID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) GetByExternalRef(ctx context.Context, ref string) (*entity.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ExternalRef == ref {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CompareAndSwap(ctx context.Context, record *entity.WorkflowRecord, expectedStage domainwf.Stage, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	m.casCalls++
	hook := m.beforeCAS
	m.mu.Unlock()
	if hook != nil {
		hook(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.records[record.DocumentID]
	if current.CurrentStage != expectedStage || current.Version != expectedVersion {
		return false, nil
	}
	record.Version = expectedVersion + 1
	cp := *record
	m.records[record.DocumentID] = &cp
	return true, nil
}

func (m *mockStore) SetExternalRef(ctx context.Context, documentID int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[documentID].ExternalRef = ref
	return nil
}

func (m *mockStore) seed(docID int64, stage domainwf.Stage, auto bool) {
	m.records[docID] = &entity.WorkflowRecord{DocumentID: docID, CurrentStage: stage, AutoProgression: auto, Version: 1}
}

type mockHistoryRepo struct {
	entries []*entity.HistoryEntry
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) GetByDocumentID(ctx context.Context, documentID int64) ([]*entity.HistoryEntry, error) {
	var out []*entity.HistoryEntry
	for _, e := range m.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockExecutor struct {
	mu      sync.Mutex
	batches []executor.Batch
}

func (m *mockExecutor) Register(kind domainwf.ActionKind, handler executor.ActionHandler) {}

func (m *mockExecutor) RegisterTask(kind domainwf.ActionKind, taskType domainwf.TaskType, handler executor.ActionHandler) {
}

func (m *mockExecutor) Submit(ctx context.Context, batch executor.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
}

func (m *mockExecutor) Execute(ctx context.Context, batch executor.Batch) []executor.Result {
	m.Submit(ctx, batch)
	return nil
}

func (m *mockExecutor) Replay(ctx context.Context, deadLetterID int64) error { return nil }

func (m *mockExecutor) Wait() {}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

type fixture struct {
	store   *mockStore
	history *mockHistoryRepo
	exec    *mockExecutor
	pub     *mockPublisher
	orch    Orchestrator
}

func newFixture(opts ...OrchestratorOption) *fixture {
	f := &fixture{
		store:   newMockStore(),
		history: &mockHistoryRepo{},
		exec:    &mockExecutor{},
		pub:     &mockPublisher{},
	}
	opts = append([]OrchestratorOption{WithPublisher(f.pub)}, opts...)
	f.orch = NewOrchestrator(f.store, f.history, &mockTxManager{}, BuildQuotationTable(), f.exec, opts...)
	return f
}

func signal(trigger domainwf.Trigger, value string) domainwf.Signal {
	return domainwf.NewSignal(trigger, value)
}

func TestBuildQuotationTable_Transitions(t *testing.T) {
	table := BuildQuotationTable()

	tests := []struct {
		name    string
		from    domainwf.Stage
		signal  domainwf.Signal
		to      domainwf.Stage
		actions []string
		bump    bool
	}{
		{"submit", domainwf.StageDraft, signal(domainwf.TriggerSubmit, ""), domainwf.StagePendingApproval,
			[]string{"create_task:approval"}, false},
		{"approve", domainwf.StagePendingApproval, signal(domainwf.TriggerDecision, domainwf.DecisionApproved), domainwf.StageApproved,
			[]string{"complete_task:approval"}, false},
		{"reject", domainwf.StagePendingApproval, signal(domainwf.TriggerDecision, domainwf.DecisionRejected), domainwf.StageRejected,
			[]string{"complete_task:approval", "create_task:revision"}, true},
		{"edited", domainwf.StageRejected, signal(domainwf.TriggerEditSignal, ""), domainwf.StagePendingApproval,
			[]string{"complete_task:revision", "create_task:approval"}, false},
		{"send to client", domainwf.StageApproved, signal(domainwf.TriggerAuto, ""), domainwf.StageClientSent,
			[]string{"dispatch_message:client:client_quotation", "create_task:followup"}, false},
		{"client reviewing", domainwf.StageClientSent, signal(domainwf.TriggerAuto, ""), domainwf.StageClientReviewing,
			[]string{"schedule_reminder"}, false},
		{"positive response", domainwf.StageClientReviewing, signal(domainwf.TriggerClientResponse, domainwf.ResponsePositive), domainwf.StageNegotiation,
			[]string{"create_task:followup"}, false},
		{"positive and accepted", domainwf.StageClientReviewing,
			signal(domainwf.TriggerClientResponse, domainwf.ResponsePositive).WithPayload(domainwf.PayloadAccepted, true),
			domainwf.StageAccepted, []string{"complete_task:followup"}, false},
		{"negative response", domainwf.StageClientReviewing, signal(domainwf.TriggerClientResponse, domainwf.ResponseNegative), domainwf.StageDeclined,
			[]string{"complete_task:followup"}, false},
		{"final accept", domainwf.StageNegotiation, signal(domainwf.TriggerFinalOutcome, domainwf.OutcomeAccept), domainwf.StageAccepted,
			[]string{"complete_task:followup"}, false},
		{"final decline", domainwf.StageNegotiation, signal(domainwf.TriggerFinalOutcome, domainwf.OutcomeDecline), domainwf.StageDeclined,
			[]string{"complete_task:followup"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := table.Next(tt.from, tt.signal)
			if !out.Applied {
				t.Fatalf("Next() not applied: %v", out.Reason)
			}
			if out.To != tt.to {
				t.Errorf("Next() stage = %v, want %v", out.To, tt.to)
			}
			if out.BumpRevision != tt.bump {
				t.Errorf("Next() bump = %v, want %v", out.BumpRevision, tt.bump)
			}
			var names []string
			for _, a := range out.Actions {
				names = append(names, a.Name())
			}
			if len(names) != len(tt.actions) {
				t.Fatalf("actions = %v, want %v", names, tt.actions)
			}
			for i := range names {
				if names[i] != tt.actions[i] {
					t.Errorf("actions[%d] = %v, want %v", i, names[i], tt.actions[i])
				}
			}
		})
	}
}

// allSignals enumerates every well-formed signal plus one malformed one
func allSignals() []domainwf.Signal {
	return []domainwf.Signal{
		signal(domainwf.TriggerSubmit, ""),
		signal(domainwf.TriggerAuto, ""),
		signal(domainwf.TriggerEditSignal, ""),
		signal(domainwf.TriggerDecision, domainwf.DecisionApproved),
		signal(domainwf.TriggerDecision, domainwf.DecisionRejected),
		signal(domainwf.TriggerClientResponse, domainwf.ResponsePositive),
		signal(domainwf.TriggerClientResponse, domainwf.ResponsePositive).WithPayload(domainwf.PayloadAccepted, true),
		signal(domainwf.TriggerClientResponse, domainwf.ResponseNegative),
		signal(domainwf.TriggerFinalOutcome, domainwf.OutcomeAccept),
		signal(domainwf.TriggerFinalOutcome, domainwf.OutcomeDecline),
		signal(domainwf.TriggerDecision, "maybe"),
	}
}

func TestBuildQuotationTable_ReachableStagesStayInGraph(t *testing.T) {
	table := BuildQuotationTable()

	seen := map[domainwf.Stage]bool{domainwf.StageDraft: true}
	queue := []domainwf.Stage{domainwf.StageDraft}
	for len(queue) > 0 {
		stage := queue[0]
		queue = queue[1:]
		for _, sig := range allSignals() {
			out := table.Next(stage, sig)
			if !out.To.IsValid() {
				t.Fatalf("Next(%s, %s) escaped the graph: %q", stage, sig, out.To)
			}
			if !out.Applied && out.To != stage {
				t.Fatalf("unapplied Next(%s, %s) changed stage to %s", stage, sig, out.To)
			}
			if !seen[out.To] {
				seen[out.To] = true
				queue = append(queue, out.To)
			}
		}
	}

	for _, s := range domainwf.Stages() {
		if !seen[s] {
			t.Errorf("stage %s is unreachable from draft", s)
		}
	}
}

func TestProgress_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.orch.Progress(context.Background(), 404, signal(domainwf.TriggerSubmit, ""))
	if !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("Progress() error = %v, want ErrNotFound", err)
	}
}

func TestProgress_InvalidSignal(t *testing.T) {
	f := newFixture()
	f.store.seed(1, domainwf.StagePendingApproval, false)

	_, err := f.orch.Progress(context.Background(), 1, signal(domainwf.TriggerDecision, "maybe"))
	if !errors.Is(err, domainwf.ErrInvalidSignal) {
		t.Errorf("Progress() error = %v, want ErrInvalidSignal", err)
	}
}

func TestProgress_UnknownPairIsNoOp(t *testing.T) {
	f := newFixture()
	f.store.seed(1, domainwf.StagePendingApproval, false)

	res, err := f.orch.Progress(context.Background(), 1, signal(domainwf.TriggerSubmit, ""))
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if res.Applied || res.NewStage != domainwf.StagePendingApproval || len(res.Actions) != 0 {
		t.Errorf("Progress() = %+v, want unapplied no-op", res)
	}
	if len(f.exec.batches) != 0 || len(f.history.entries) != 0 {
		t.Error("no-op must not submit actions or write history")
	}
}

func TestProgress_RejectionBumpsRevision(t *testing.T) {
	f := newFixture()
	f.store.seed(43, domainwf.StagePendingApproval, false)

	res, err := f.orch.Progress(context.Background(), 43,
		signal(domainwf.TriggerDecision, domainwf.DecisionRejected).WithNote("too expensive").WithActor("head@example.com"))
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}

	if res.NewStage != domainwf.StageRejected || res.RevisionCount != 1 {
		t.Errorf("Progress() = %+v", res)
	}
	if len(f.exec.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(f.exec.batches))
	}
	batch := f.exec.batches[0]
	if batch.RevisionCycle != 1 || batch.Stage != domainwf.StageRejected || batch.Version != 2 {
		t.Errorf("batch = %+v", batch)
	}
	if batch.Actions[0].Note != "too expensive" {
		t.Errorf("complete note = %q", batch.Actions[0].Note)
	}

	if len(f.history.entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(f.history.entries))
	}
	h := f.history.entries[0]
	if h.Actor != "head@example.com" || h.Value != domainwf.DecisionRejected || h.RevisionCount != 1 {
		t.Errorf("history = %+v", h)
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Type != event.TypeStageChanged {
		t.Errorf("events = %v, want one stage change", f.pub.events)
	}
	if f.pub.events[0].CorrelationID != batch.CorrelationID {
		t.Error("batch and event should share the correlation id")
	}
}

func TestProgress_AutoProgressionSchedulesEvent(t *testing.T) {
	tests := []struct {
		name string
		auto bool
		want int
	}{
		{"enabled", true, 2},
		{"disabled", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.seed(42, domainwf.StagePendingApproval, tt.auto)

			res, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionApproved))
			if err != nil {
				t.Fatalf("Progress() error = %v", err)
			}
			if len(res.Actions) != tt.want {
				t.Fatalf("actions = %v, want %d", res.Actions, tt.want)
			}
			if tt.auto && res.Actions[1].Name() != "schedule_event:auto" {
				t.Errorf("last action = %s, want schedule_event:auto", res.Actions[1].Name())
			}
		})
	}
}

func TestProgress_NoAutoScheduleFromClientReviewing(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StageClientSent, true)

	res, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerAuto, ""))
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	for _, a := range res.Actions {
		if a.Kind == domainwf.ActionScheduleEvent {
			t.Error("client_reviewing has no auto edge; nothing should be scheduled")
		}
	}
}

func TestProgress_StaleStateWhenConcurrentDecisionWins(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StagePendingApproval, false)

	f.store.beforeCAS = func(m *mockStore) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.casCalls == 1 {
			r := m.records[42]
			r.CurrentStage = domainwf.StageRejected
			r.Version++
		}
	}

	_, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionApproved))
	if !errors.Is(err, domainwf.ErrStaleState) {
		t.Fatalf("Progress() error = %v, want ErrStaleState", err)
	}
	if len(f.exec.batches) != 0 {
		t.Error("losing call must not submit actions")
	}
	if f.store.casCalls != 1 {
		t.Errorf("casCalls = %d, want 1 (changed stage is not retried)", f.store.casCalls)
	}
}

func TestProgress_RetriesOnceWhenOnlyVersionMoved(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StagePendingApproval, false)

	f.store.beforeCAS = func(m *mockStore) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.casCalls == 1 {
			m.records[42].Version++
		}
	}

	res, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionApproved))
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if res.NewStage != domainwf.StageApproved || f.store.casCalls != 2 {
		t.Errorf("res = %+v, casCalls = %d", res, f.store.casCalls)
	}
}

func TestProgress_StaleStateAfterSecondFailure(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StagePendingApproval, false)

	f.store.beforeCAS = func(m *mockStore) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.records[42].Version++
	}

	_, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionApproved))
	if !errors.Is(err, domainwf.ErrStaleState) {
		t.Fatalf("Progress() error = %v, want ErrStaleState", err)
	}
	if f.store.casCalls != 2 {
		t.Errorf("casCalls = %d, want 2", f.store.casCalls)
	}
}

func TestProgress_CommitHooks(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StagePendingApproval, false)

	var seen domainwf.Stage
	hook := OnCommit(func(ctx context.Context, record *entity.WorkflowRecord) error {
		seen = record.CurrentStage
		return nil
	})

	if _, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerSubmit, ""), hook); err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if seen != "" {
		t.Error("hook ran for an unapplied transition")
	}

	if _, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionApproved), hook); err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if seen != domainwf.StageApproved {
		t.Errorf("hook saw %v, want approved", seen)
	}

	f.store.seed(7, domainwf.StagePendingApproval, false)
	boom := errors.New("decision log unavailable")
	_, err := f.orch.Progress(context.Background(), 7, signal(domainwf.TriggerDecision, domainwf.DecisionApproved),
		OnCommit(func(ctx context.Context, record *entity.WorkflowRecord) error { return boom }))
	if !errors.Is(err, boom) {
		t.Errorf("Progress() error = %v, want hook error", err)
	}
}

func TestStartWorkflow_IdempotentSubmit(t *testing.T) {
	f := newFixture()
	auto := false
	req := StartRequest{DocumentID: 42, Owner: "sales@example.com", BusinessUnit: "emea", AutoProgression: &auto}

	first, err := f.orch.StartWorkflow(context.Background(), req)
	if err != nil {
		t.Fatalf("StartWorkflow() error = %v", err)
	}
	if !first.Applied || first.NewStage != domainwf.StagePendingApproval {
		t.Errorf("first start = %+v", first)
	}

	second, err := f.orch.StartWorkflow(context.Background(), req)
	if err != nil {
		t.Fatalf("StartWorkflow() error = %v", err)
	}
	if second.Applied {
		t.Error("second start should not re-submit")
	}
	if len(f.exec.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(f.exec.batches))
	}

	record, _ := f.store.Get(context.Background(), 42)
	if record.MetadataString(entity.MetaOwner) != "sales@example.com" || record.AutoProgression {
		t.Errorf("record = %+v", record)
	}
}

func TestStartWorkflow_RejectsInvalidID(t *testing.T) {
	f := newFixture()
	if _, err := f.orch.StartWorkflow(context.Background(), StartRequest{}); !errors.Is(err, domainwf.ErrInvalidSignal) {
		t.Errorf("StartWorkflow() error = %v, want ErrInvalidSignal", err)
	}
}

func TestProgressByExternalRef(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StagePendingApproval, false)
	_ = f.store.SetExternalRef(context.Background(), 42, "lark-instance-1")

	res, err := f.orch.ProgressByExternalRef(context.Background(), "lark-instance-1", signal(domainwf.TriggerDecision, domainwf.DecisionApproved))
	if err != nil {
		t.Fatalf("ProgressByExternalRef() error = %v", err)
	}
	if res.DocumentID != 42 || res.NewStage != domainwf.StageApproved {
		t.Errorf("res = %+v", res)
	}

	if _, err := f.orch.ProgressByExternalRef(context.Background(), "unknown", signal(domainwf.TriggerSubmit, "")); !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetState(t *testing.T) {
	f := newFixture()
	f.store.seed(42, domainwf.StagePendingApproval, false)
	if _, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionApproved)); err != nil {
		t.Fatalf("Progress() error = %v", err)
	}

	state, err := f.orch.GetState(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Record.CurrentStage != domainwf.StageApproved || len(state.History) != 1 {
		t.Errorf("state = %+v", state)
	}

	if _, err := f.orch.GetState(context.Background(), 1); !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("GetState() error = %v, want ErrNotFound", err)
	}
}

func TestProgress_CommitActionsRunInsideCommit(t *testing.T) {
	inCommit := NewCommitActions()
	var opened []domainwf.Stage
	inCommit.RegisterTask(domainwf.ActionCreateTask, domainwf.TaskTypeRevision, func(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*FollowUp, error) {
		opened = append(opened, record.CurrentStage)
		if record.RevisionCount != 1 {
			t.Errorf("commit action saw revision %d, want the committed 1", record.RevisionCount)
		}
		return &FollowUp{
			Actions: []domainwf.Action{domainwf.DispatchMessage(domainwf.ChannelTeam, domainwf.TemplateRevisionEscalation)},
			Events:  []*event.Event{event.NewEvent(event.TypeRevisionOpened, record.DocumentID, nil)},
		}, nil
	})
	var completed int
	inCommit.Register(domainwf.ActionCompleteTask, func(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*FollowUp, error) {
		completed++
		return nil, nil
	})

	f := newFixture(WithCommitActions(inCommit))
	f.store.seed(42, domainwf.StagePendingApproval, false)

	res, err := f.orch.Progress(context.Background(), 42, signal(domainwf.TriggerDecision, domainwf.DecisionRejected))
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if len(opened) != 1 || opened[0] != domainwf.StageRejected || completed != 1 {
		t.Fatalf("opened = %v, completed = %d", opened, completed)
	}

	var names []string
	for _, a := range res.Actions {
		names = append(names, a.Name())
	}
	want := []string{"complete_task:approval", "create_task:revision", "dispatch_message:team:revision_escalation"}
	if len(names) != len(want) {
		t.Fatalf("result actions = %v, want %v", names, want)
	}

	if len(f.exec.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(f.exec.batches))
	}
	batch := f.exec.batches[0]
	if len(batch.Actions) != 1 || batch.Actions[0].Kind != domainwf.ActionDispatchMessage {
		t.Errorf("batch actions = %v, want only the follow-up message", batch.Actions)
	}

	if len(f.pub.events) != 2 || f.pub.events[1].Type != event.TypeRevisionOpened {
		t.Fatalf("events = %v", f.pub.events)
	}
	if f.pub.events[1].CorrelationID != f.pub.events[0].CorrelationID {
		t.Error("follow-up events should carry the stage change correlation id")
	}
}

func TestProgress_CommitActionFailureFailsTransition(t *testing.T) {
	inCommit := NewCommitActions()
	inCommit.Register(domainwf.ActionCreateTask, func(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*FollowUp, error) {
		return nil, errors.New("task store down")
	})

	f := newFixture(WithCommitActions(inCommit))
	f.store.seed(7, domainwf.StageDraft, true)

	if _, err := f.orch.Progress(context.Background(), 7, signal(domainwf.TriggerSubmit, "")); err == nil {
		t.Fatal("Progress() should fail when a commit action fails")
	}
	if len(f.exec.batches) != 0 || len(f.pub.events) != 0 {
		t.Error("a failed commit must not submit actions or publish events")
	}
}

func TestProgress_UnroutedActionsGoToExecutor(t *testing.T) {
	inCommit := NewCommitActions()
	inCommit.Register(domainwf.ActionCompleteTask, func(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*FollowUp, error) {
		return nil, nil
	})

	f := newFixture(WithCommitActions(inCommit))
	f.store.seed(8, domainwf.StageApproved, true)

	if _, err := f.orch.Progress(context.Background(), 8, signal(domainwf.TriggerAuto, "")); err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	var names []string
	for _, a := range f.exec.batches[0].Actions {
		names = append(names, a.Name())
	}
	want := []string{"dispatch_message:client:client_quotation", "create_task:followup", "schedule_event:auto"}
	if len(names) != len(want) {
		t.Fatalf("batch actions = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("batch actions[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}
