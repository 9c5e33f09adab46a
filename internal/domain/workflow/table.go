package workflow

import (
	"fmt"
	"sort"
)

// GuardFunc decides whether a transition applies to the signal
type GuardFunc func(sig Signal) bool

// OnValue guards a transition on the signal value
func OnValue(value string) GuardFunc {
	return func(sig Signal) bool {
		return sig.Value == value
	}
}

// All combines guards; every guard must pass
func All(guards ...GuardFunc) GuardFunc {
	return func(sig Signal) bool {
		for _, g := range guards {
			if g != nil && !g(sig) {
				return false
			}
		}
		return true
	}
}

// TableBuilder builds an immutable transition table
type TableBuilder interface {
	// Configure returns the configuration for transitions leaving stage
	Configure(stage Stage) StageConfiguration

	// Build validates coverage of the stage set and freezes the table
	Build() *TransitionTable
}

// StageConfiguration configures transitions for a specific stage
type StageConfiguration interface {
	// Permit allows the trigger to move to the target stage with the given actions
	Permit(trigger Trigger, to Stage, actions ...Action) StageConfiguration

	// PermitIf is Permit guarded by a condition on the signal
	PermitIf(trigger Trigger, to Stage, guard GuardFunc, actions ...Action) StageConfiguration

	// PermitRevisionIf is PermitIf for a transition that opens a new revision cycle
	PermitRevisionIf(trigger Trigger, to Stage, guard GuardFunc, actions ...Action) StageConfiguration
}

type transition struct {
	to           Stage
	guard        GuardFunc
	actions      []Action
	bumpRevision bool
}

type stageConfig struct {
	from        Stage
	transitions map[Trigger][]transition
}

type tableBuilder struct {
	configurations map[Stage]*stageConfig
}

// NewBuilder creates a new transition table builder
func NewBuilder() TableBuilder {
	return &tableBuilder{
		configurations: make(map[Stage]*stageConfig),
	}
}

// Configure returns a stage configuration for the given stage
func (b *tableBuilder) Configure(stage Stage) StageConfiguration {
	if !stage.IsValid() {
		panic(fmt.Sprintf("invalid stage: %s", stage))
	}

	config, exists := b.configurations[stage]
	if !exists {
		config = &stageConfig{
			from:        stage,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[stage] = config
	}

	return config
}

// Build panics when a non-terminal stage has no outgoing transitions or a
// terminal stage has any, so a newly added stage cannot silently dead-end.
func (b *tableBuilder) Build() *TransitionTable {
	for _, stage := range allStages {
		config, exists := b.configurations[stage]
		configured := exists && len(config.transitions) > 0
		if stage.IsTerminal() && configured {
			panic(fmt.Sprintf("terminal stage %s must not have transitions", stage))
		}
		if !stage.IsTerminal() && !configured {
			panic(fmt.Sprintf("stage %s has no transitions configured", stage))
		}
	}

	frozen := make(map[Stage]map[Trigger][]transition, len(b.configurations))
	for stage, config := range b.configurations {
		copied := make(map[Trigger][]transition, len(config.transitions))
		for trigger, ts := range config.transitions {
			copied[trigger] = append([]transition(nil), ts...)
		}
		frozen[stage] = copied
	}

	return &TransitionTable{transitions: frozen}
}

// Permit allows a trigger to move to the target stage
func (c *stageConfig) Permit(trigger Trigger, to Stage, actions ...Action) StageConfiguration {
	return c.add(trigger, to, nil, false, actions)
}

// PermitIf allows a trigger to move to the target stage if the guard passes
func (c *stageConfig) PermitIf(trigger Trigger, to Stage, guard GuardFunc, actions ...Action) StageConfiguration {
	return c.add(trigger, to, guard, false, actions)
}

// PermitRevisionIf allows a guarded transition that increments the revision count on commit
func (c *stageConfig) PermitRevisionIf(trigger Trigger, to Stage, guard GuardFunc, actions ...Action) StageConfiguration {
	return c.add(trigger, to, guard, true, actions)
}

func (c *stageConfig) add(trigger Trigger, to Stage, guard GuardFunc, bump bool, actions []Action) StageConfiguration {
	if !trigger.IsValid() {
		panic(fmt.Sprintf("invalid trigger: %s", trigger))
	}
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target stage: %s", to))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		to:           to,
		guard:        guard,
		actions:      append([]Action(nil), actions...),
		bumpRevision: bump,
	})

	return c
}

// Outcome is the result of evaluating a signal against the table
type Outcome struct {
	From         Stage
	To           Stage
	Signal       Signal
	Actions      []Action
	BumpRevision bool
	Applied      bool

	// Reason explains why the outcome was not applied
	Reason error
}

// TransitionEngine computes the next stage and actions for a signal without I/O
type TransitionEngine interface {
	// Next evaluates the signal against the current stage. Unknown pairs yield
	// an unapplied outcome with the unchanged stage and no actions.
	Next(current Stage, sig Signal) Outcome

	// CanFire reports whether any transition for the trigger leaves the stage
	CanFire(stage Stage, trigger Trigger) bool

	// PermittedTriggers returns the triggers configured for the stage
	PermittedTriggers(stage Stage) []Trigger
}

// TransitionTable is the frozen (stage, trigger) -> transition mapping
type TransitionTable struct {
	transitions map[Stage]map[Trigger][]transition
}

var _ TransitionEngine = (*TransitionTable)(nil)

// Next implements TransitionEngine
func (t *TransitionTable) Next(current Stage, sig Signal) Outcome {
	out := Outcome{From: current, To: current, Signal: sig}

	if !current.IsValid() {
		out.Reason = fmt.Errorf("%w: %s", ErrInvalidStage, current)
		return out
	}
	if err := sig.Validate(); err != nil {
		out.Reason = err
		return out
	}

	candidates := t.transitions[current][sig.Trigger]
	for _, tr := range candidates {
		if tr.guard != nil && !tr.guard(sig) {
			continue
		}
		actions := make([]Action, len(tr.actions))
		copy(actions, tr.actions)
		for i := range actions {
			if actions[i].Kind == ActionCompleteTask && sig.Note != "" {
				actions[i].Note = sig.Note
			}
		}
		out.To = tr.to
		out.Actions = actions
		out.BumpRevision = tr.bumpRevision
		out.Applied = true
		return out
	}

	out.Reason = fmt.Errorf("%w: %s from %s", ErrInvalidTransition, sig, current)
	return out
}

// CanFire implements TransitionEngine
func (t *TransitionTable) CanFire(stage Stage, trigger Trigger) bool {
	return len(t.transitions[stage][trigger]) > 0
}

// PermittedTriggers implements TransitionEngine
func (t *TransitionTable) PermittedTriggers(stage Stage) []Trigger {
	triggers := make([]Trigger, 0, len(t.transitions[stage]))
	for trigger := range t.transitions[stage] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// Targets returns every stage directly reachable from stage
func (t *TransitionTable) Targets(stage Stage) []Stage {
	seen := make(map[Stage]bool)
	var targets []Stage
	for _, ts := range t.transitions[stage] {
		for _, tr := range ts {
			if !seen[tr.to] {
				seen[tr.to] = true
				targets = append(targets, tr.to)
			}
		}
	}
	return targets
}
