package workflow

import (
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// BuildQuotationTable creates the transition table for the quotation lifecycle
func BuildQuotationTable() *domainwf.TransitionTable {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StageDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StagePendingApproval,
			domainwf.CreateTask(domainwf.TaskTypeApproval))

	// A rejection opens the revision cycle in the same commit: the revision
	// task is keyed to the new cycle so each rejection yields exactly one.
	builder.Configure(domainwf.StagePendingApproval).
		PermitIf(domainwf.TriggerDecision, domainwf.StageApproved,
			domainwf.OnValue(domainwf.DecisionApproved),
			domainwf.CompleteTask(domainwf.TaskTypeApproval)).
		PermitRevisionIf(domainwf.TriggerDecision, domainwf.StageRejected,
			domainwf.OnValue(domainwf.DecisionRejected),
			domainwf.CompleteTask(domainwf.TaskTypeApproval),
			domainwf.CreateTask(domainwf.TaskTypeRevision))

	builder.Configure(domainwf.StageRejected).
		Permit(domainwf.TriggerEditSignal, domainwf.StagePendingApproval,
			domainwf.CompleteTask(domainwf.TaskTypeRevision),
			domainwf.CreateTask(domainwf.TaskTypeApproval))

	builder.Configure(domainwf.StageApproved).
		Permit(domainwf.TriggerAuto, domainwf.StageClientSent,
			domainwf.DispatchMessage(domainwf.ChannelClient, domainwf.TemplateClientQuotation),
			domainwf.CreateTask(domainwf.TaskTypeFollowup))

	builder.Configure(domainwf.StageClientSent).
		Permit(domainwf.TriggerAuto, domainwf.StageClientReviewing,
			domainwf.ScheduleReminder())

	builder.Configure(domainwf.StageClientReviewing).
		PermitIf(domainwf.TriggerClientResponse, domainwf.StageAccepted,
			domainwf.All(domainwf.OnValue(domainwf.ResponsePositive), acceptedOutright),
			domainwf.CompleteTask(domainwf.TaskTypeFollowup)).
		PermitIf(domainwf.TriggerClientResponse, domainwf.StageNegotiation,
			domainwf.OnValue(domainwf.ResponsePositive),
			domainwf.CreateTask(domainwf.TaskTypeFollowup)).
		PermitIf(domainwf.TriggerClientResponse, domainwf.StageDeclined,
			domainwf.OnValue(domainwf.ResponseNegative),
			domainwf.CompleteTask(domainwf.TaskTypeFollowup))

	builder.Configure(domainwf.StageNegotiation).
		PermitIf(domainwf.TriggerFinalOutcome, domainwf.StageAccepted,
			domainwf.OnValue(domainwf.OutcomeAccept),
			domainwf.CompleteTask(domainwf.TaskTypeFollowup)).
		PermitIf(domainwf.TriggerFinalOutcome, domainwf.StageDeclined,
			domainwf.OnValue(domainwf.OutcomeDecline),
			domainwf.CompleteTask(domainwf.TaskTypeFollowup))

	return builder.Build()
}

func acceptedOutright(sig domainwf.Signal) bool {
	return sig.PayloadBool(domainwf.PayloadAccepted)
}
