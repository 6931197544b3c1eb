package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gkontridze/reorg/internal/models"
)

// ExecuteOptions tunes plan execution.
type ExecuteOptions struct {
	// OnOutcome, if set, is called after each operation in plan order.
	OnOutcome func(Outcome)
}

// Execute applies plan against client, one operation at a time in plan order.
//
// A failed operation is recorded and execution continues. When a subscribe
// fails, every later operation referencing that item is skipped instead of
// attempted. Nothing is retried. Execution ignores cancellation of ctx once
// started; each call is bounded by the client's own timeout.
func Execute(ctx context.Context, plan *Plan, client RemoteWriter, opts ExecuteOptions) *ExecutionReport {
	ctx = context.WithoutCancel(ctx)
	report := &ExecutionReport{Started: time.Now()}
	failedSubs := make(map[models.ItemID]bool)

	var ops []Operation
	if plan != nil {
		ops = plan.Operations
	}

	for _, op := range ops {
		out := Outcome{Op: op}

		if blocker, blocked := blockedBy(op, failedSubs); blocked {
			out.Status = StatusSkipped
			out.Reason = ReasonDependencyFailed
			out.Blocker = blocker
			slog.Warn("operation skipped", "op", op.String(), "blocked_by", blocker)
		} else if err := apply(ctx, client, op); err != nil {
			out.Status = StatusFailed
			out.Reason = err.Error()
			out.Kind = Classify(err)
			out.Err = err
			if op.Kind == OpSubscribe {
				failedSubs[op.Item] = true
			}
			slog.Warn("operation failed", "op", op.String(), "kind", out.Kind, "err", err)
		} else {
			out.Status = StatusApplied
			slog.Debug("operation applied", "op", op.String())
		}

		report.Outcomes = append(report.Outcomes, out)
		if opts.OnOutcome != nil {
			opts.OnOutcome(out)
		}
	}

	report.Finished = time.Now()
	return report
}

// blockedBy returns the first failed subscription op depends on.
func blockedBy(op Operation, failedSubs map[models.ItemID]bool) (models.ItemID, bool) {
	if len(failedSubs) == 0 {
		return "", false
	}
	if op.Kind == OpSubscribe {
		return op.Item, failedSubs[op.Item]
	}
	for _, it := range op.Items {
		if failedSubs[it] {
			return it, true
		}
	}
	return "", false
}

func apply(ctx context.Context, client RemoteWriter, op Operation) error {
	switch op.Kind {
	case OpDeleteCollection:
		return client.DeleteCollection(ctx, op.Name)
	case OpSubscribe:
		return client.Subscribe(ctx, op.Item)
	case OpCreateCollection:
		return client.CreateCollection(ctx, op.Name, op.Items)
	case OpAddItems:
		return client.AddItems(ctx, op.Name, op.Items)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}
