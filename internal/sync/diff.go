package sync

import (
	"github.com/gkontridze/reorg/internal/models"
)

// BuildPlan validates desired and diffs it against remote. Invalid input is
// rejected before any operation is planned.
func BuildPlan(desired models.DesiredState, remote *models.RemoteState) (*Plan, error) {
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	return Diff(desired, remote), nil
}

// Diff computes the plan that converges remote toward desired.
//
// The plan is ordered: deletes, then subscribes, then creates, then adds.
// Collection operations are sorted by name. Subscribes follow first
// reference across the creates and adds, so a subscribe always precedes
// every operation that needs it. Membership is additive only: remote
// members missing from desired are reported in Plan.Drift, never removed.
//
// Diff is pure and expects validated input.
func Diff(desired models.DesiredState, remote *models.RemoteState) *Plan {
	if remote == nil {
		remote = models.NewRemoteState()
	}
	plan := &Plan{}

	for _, name := range remote.Names() {
		if _, ok := desired[name]; !ok {
			plan.Operations = append(plan.Operations, Operation{Kind: OpDeleteCollection, Name: name})
		}
	}

	var creates, adds []Operation
	for _, name := range desired.Names() {
		want := desired[name]
		have, ok := remote.Collections[name]
		if !ok {
			creates = append(creates, Operation{Kind: OpCreateCollection, Name: name, Items: want.Items.Items()})
			continue
		}
		if missing := want.Items.Minus(have.Items); len(missing) > 0 {
			adds = append(adds, Operation{Kind: OpAddItems, Name: name, Items: missing})
		}
		if extra := have.Items.Minus(want.Items); len(extra) > 0 {
			if plan.Drift == nil {
				plan.Drift = make(map[models.Name][]models.ItemID)
			}
			plan.Drift[name] = extra
		}
	}

	toSubscribe := models.NewItemSet()
	for _, ops := range [][]Operation{creates, adds} {
		for _, op := range ops {
			for _, it := range op.Items {
				if !remote.Subscriptions.Has(it) {
					toSubscribe.Add(it)
				}
			}
		}
	}
	for _, it := range toSubscribe.Items() {
		plan.Operations = append(plan.Operations, Operation{Kind: OpSubscribe, Item: it})
	}

	plan.Operations = append(plan.Operations, creates...)
	plan.Operations = append(plan.Operations, adds...)
	return plan
}
