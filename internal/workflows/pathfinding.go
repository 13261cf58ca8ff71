package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/transitlabs/fasttrips-go/internal/core/domain"
	"github.com/transitlabs/fasttrips-go/internal/core/usecases"
)

// PathfindingInput is the input for the pathfinding workflow. It carries
// domain.PathSpecification as-is: Temporal input/output values must
// round-trip through JSON, and PathSpecification has no unexported fields.
type PathfindingInput struct {
	Spec domain.PathSpecification
}

// ItineraryResult is a JSON-serializable summary of one enumerated path,
// since domain.Path itself carries an unexported link slice that an
// activity result can't round-trip through Temporal's payload codec.
type ItineraryResult struct {
	Cost            float64
	Fare            float64
	CapacityProblem bool
	Links           []domain.PathLink
}

// PathfindingOutput is the workflow's result: the chosen path plus whatever
// alternates the pathfinder enumerated alongside it.
type PathfindingOutput struct {
	Chosen     ItineraryResult
	Found      bool
	Alternates []ItineraryResult
}

// PathfindingWorkflow runs one findpath query as a durable activity,
// retrying on transient failure. It has no rollback leg — a failed or
// timed-out query has nothing to compensate, it simply fails.
func PathfindingWorkflow(ctx workflow.Context, input PathfindingInput) (*PathfindingOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting pathfinding workflow", "pathID", input.Spec.PathID, "outbound", input.Spec.Outbound)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{"NoPathError"},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var out PathfindingOutput
	err := workflow.ExecuteActivity(ctx, "FindPath", input.Spec).Get(ctx, &out)
	if err != nil {
		logger.Warn("pathfinding activity failed", "error", err)
		return nil, err
	}

	logger.Info("pathfinding workflow complete", "found", out.Found, "alternates", len(out.Alternates))
	return &out, nil
}

// PathfinderActivities wraps a Pathfinder so its FindPath call can run as a
// Temporal activity.
type PathfinderActivities struct {
	Pathfinder *usecases.Pathfinder
}

// FindPath is the activity entry point registered as "FindPath". It
// flattens the pathfinder's result into the JSON-safe ItineraryResult shape
// the workflow returns to its caller.
func (a *PathfinderActivities) FindPath(ctx context.Context, spec domain.PathSpecification) (*PathfindingOutput, error) {
	path, alternates, _, err := a.Pathfinder.FindPath(ctx, &spec)
	if err != nil {
		return nil, fmt.Errorf("find path %s: %w", spec.PathID, err)
	}
	if path == nil {
		return &PathfindingOutput{Found: false}, nil
	}

	out := &PathfindingOutput{
		Found:      true,
		Chosen:     toItineraryResult(path),
		Alternates: make([]ItineraryResult, 0, len(alternates)),
	}
	for _, alt := range alternates {
		out.Alternates = append(out.Alternates, ItineraryResult{
			Cost:            alt.Cost,
			CapacityProblem: alt.CapacityProblem,
		})
	}
	return out, nil
}

func toItineraryResult(p *domain.Path) ItineraryResult {
	return ItineraryResult{
		Cost:            p.Cost,
		Fare:            p.Fare,
		CapacityProblem: p.CapacityProblem,
		Links:           p.ChronologicalLinks(),
	}
}
