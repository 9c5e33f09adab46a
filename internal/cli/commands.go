package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/container"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
	"github.com/garyjia/quotation-workflow/pkg/utils"
)

// StartOptions holds flags for the start command.
type StartOptions struct {
	*RootOptions
	Request appwf.StartRequest
	Manual  bool
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "start <document-id>",
		Short: "Register a quotation and submit it for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			opts.Request.DocumentID = id
			if cmd.Flags().Changed("manual") {
				auto := !opts.Manual
				opts.Request.AutoProgression = &auto
			}
			if opts.Request.Currency != "" {
				if err := utils.ValidateCurrency(opts.Request.Currency); err != nil {
					return err
				}
			}
			if err := utils.ValidateAmount(opts.Request.Amount); err != nil {
				return err
			}

			return withContainer(cmd.Context(), opts.RootOptions, func(ctx context.Context, c *container.Container) error {
				result, err := c.Orchestrator().StartWorkflow(ctx, opts.Request)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Request.ClientRef, "client", "", "client reference")
	cmd.Flags().StringVar(&opts.Request.ClientContact, "contact", "", "client contact email")
	cmd.Flags().Float64Var(&opts.Request.Amount, "amount", 0, "quoted amount")
	cmd.Flags().StringVar(&opts.Request.Currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&opts.Request.BusinessUnit, "unit", "", "business unit used for approver routing")
	cmd.Flags().StringVar(&opts.Request.Owner, "owner", "", "sales owner")
	cmd.Flags().StringVar(&opts.Request.ExternalRef, "external-ref", "", "external approval reference")
	cmd.Flags().BoolVar(&opts.Manual, "manual", false, "disable automatic progression for this document")

	return cmd
}

// ProgressOptions holds flags for the progress command.
type ProgressOptions struct {
	*RootOptions
	Event         string
	Value         string
	Note          string
	Actor         string
	CorrelationID string
}

// NewProgressCommand creates the progress command.
func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProgressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "progress <document-id>",
		Short: "Deliver a signal to a document",
		Long: `Deliver a signal to a document and print the transition result.

Examples:
  wfctl progress 42 --event client_response --value positive
  wfctl progress 42 --event final_outcome --value accept --actor olga`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			sig := domainwf.NewSignal(domainwf.Trigger(opts.Event), opts.Value).
				WithNote(utils.SanitizeString(opts.Note)).
				WithActor(opts.Actor)
			if err := sig.Validate(); err != nil {
				return err
			}
			correlationID := opts.CorrelationID
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			return withContainer(cmd.Context(), opts.RootOptions, func(ctx context.Context, c *container.Container) error {
				correlation := appwf.WithCorrelationID(correlationID)

				var result *appwf.Result
				var err error
				if sig.Trigger == domainwf.TriggerEditSignal {
					result, err = c.Services().Revisions.HandleEdited(ctx, id, sig.Actor, correlation)
				} else {
					result, err = c.Orchestrator().Progress(ctx, id, sig, correlation)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "trigger name (required)")
	_ = cmd.MarkFlagRequired("event")
	cmd.Flags().StringVar(&opts.Value, "value", "", "trigger value")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note recorded with the transition")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "who sent the signal")
	cmd.Flags().StringVar(&opts.CorrelationID, "correlation-id", "", "correlation id for dispatched actions (generated when empty)")

	return cmd
}

// DecideOptions holds flags for the decide command.
type DecideOptions struct {
	*RootOptions
	Status   string
	Comments string
	Decider  string
}

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecideOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decide <document-id>",
		Short: "Record an approve or reject decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), opts.RootOptions, func(ctx context.Context, c *container.Container) error {
				result, err := c.Services().Approvals.RecordApprovalDecision(ctx, id, opts.Status,
					utils.SanitizeString(opts.Comments), opts.Decider)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "approved or rejected (required)")
	_ = cmd.MarkFlagRequired("status")
	cmd.Flags().StringVar(&opts.Comments, "comments", "", "decision comments")
	cmd.Flags().StringVar(&opts.Decider, "decider", "", "who decided (required)")
	_ = cmd.MarkFlagRequired("decider")

	return cmd
}

// NewEditedCommand creates the edited command.
func NewEditedCommand(rootOpts *RootOptions) *cobra.Command {
	var editor string

	cmd := &cobra.Command{
		Use:   "edited <document-id>",
		Short: "Report that a rejected quotation was edited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *container.Container) error {
				result, err := c.Services().Revisions.HandleEdited(ctx, id, editor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&editor, "editor", "", "who edited the quotation")

	return cmd
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <document-id>",
		Short: "Print the workflow state, tasks and history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *container.Container) error {
				state, err := c.Orchestrator().GetState(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), state)
			})
		},
	}
}

// NewDeadLettersCommand creates the dead-letters command group.
func NewDeadLettersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Inspect and retry actions that exhausted their retries",
	}

	var all bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *container.Container) error {
				letters, err := c.Services().DeadLetters.List(ctx, !all, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), letters)
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved dead letters")
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of entries (0 for the default)")

	retry := &cobra.Command{
		Use:   "retry <dead-letter-id>",
		Short: "Replay a dead-lettered action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *container.Container) error {
				letter, err := c.Services().DeadLetters.Retry(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), letter)
			})
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}
