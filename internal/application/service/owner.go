package service

import (
	"context"
	"fmt"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// ownerTaskTypes are the task types whose assignee is treated as the document owner
var ownerTaskTypes = []domainwf.TaskType{domainwf.TaskTypeFollowup, domainwf.TaskTypeGeneration}

// OwnerResolver finds the original owner of a document
type OwnerResolver struct {
	tasks        port.TaskRepository
	defaultOwner string
}

// NewOwnerResolver creates a resolver falling back to defaultOwner
func NewOwnerResolver(tasks port.TaskRepository, defaultOwner string) *OwnerResolver {
	return &OwnerResolver{tasks: tasks, defaultOwner: defaultOwner}
}

// ResolveOwner prefers the most recent followup or generation assignee, then the
// owner recorded at start, then the configured default.
func (r *OwnerResolver) ResolveOwner(ctx context.Context, record *entity.WorkflowRecord) (string, error) {
	assignee, err := r.tasks.LatestAssignee(ctx, record.DocumentID, ownerTaskTypes)
	if err != nil {
		return "", fmt.Errorf("lookup owner: %w", err)
	}
	if assignee != "" {
		return assignee, nil
	}
	if owner := record.MetadataString(entity.MetaOwner); owner != "" {
		return owner, nil
	}
	return r.defaultOwner, nil
}
