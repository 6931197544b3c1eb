package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gkontridze/reorg/internal/models"
)

func TestExecute_SubscribeFailureSkipsDependents(t *testing.T) {
	f := newFakeRemote()
	f.collections["news"] = nil
	f.failOn[`Subscribe("worldnews")`] = fmt.Errorf("%w: slow down", ErrRateLimited)

	plan := &Plan{Operations: []Operation{
		{Kind: OpSubscribe, Item: "worldnews"},
		{Kind: OpAddItems, Name: "news", Items: ids("worldnews")},
	}}

	report := Execute(context.Background(), plan, f, ExecuteOptions{})
	if len(report.Outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(report.Outcomes))
	}

	sub := report.Outcomes[0]
	if sub.Status != StatusFailed {
		t.Errorf("subscribe status = %s, want failed", sub.Status)
	}
	if sub.Kind != FailureRateLimited {
		t.Errorf("subscribe failure kind = %s, want rate_limited", sub.Kind)
	}

	add := report.Outcomes[1]
	if add.Status != StatusSkipped {
		t.Errorf("add status = %s, want skipped", add.Status)
	}
	if add.Reason != ReasonDependencyFailed {
		t.Errorf("add reason = %q, want %q", add.Reason, ReasonDependencyFailed)
	}
	if add.Blocker != "worldnews" {
		t.Errorf("add blocker = %q, want worldnews", add.Blocker)
	}

	for _, call := range f.calls {
		if call == `AddItems("news", [worldnews])` {
			t.Error("dependent AddItems was attempted")
		}
	}
	if report.OK() {
		t.Error("report OK() = true with a failure")
	}
}

func TestExecute_FailureIsolation(t *testing.T) {
	f := newFakeRemote()
	f.collections["old"] = nil
	f.subs["golang"] = true
	f.failOn[`DeleteCollection("old")`] = fmt.Errorf("%w: nope", ErrForbidden)

	plan := &Plan{Operations: []Operation{
		{Kind: OpDeleteCollection, Name: "old"},
		{Kind: OpCreateCollection, Name: "fresh", Items: ids("golang")},
	}}

	report := Execute(context.Background(), plan, f, ExecuteOptions{})
	if report.Outcomes[0].Status != StatusFailed {
		t.Errorf("delete status = %s, want failed", report.Outcomes[0].Status)
	}
	if report.Outcomes[0].Kind != FailureForbidden {
		t.Errorf("delete kind = %s, want forbidden", report.Outcomes[0].Kind)
	}
	if report.Outcomes[1].Status != StatusApplied {
		t.Errorf("create status = %s, want applied", report.Outcomes[1].Status)
	}
	if _, ok := f.collections["fresh"]; !ok {
		t.Error("independent create was not applied")
	}
	if report.Applied() != 1 || report.Failed() != 1 || report.Skipped() != 0 {
		t.Errorf("counts applied=%d failed=%d skipped=%d", report.Applied(), report.Failed(), report.Skipped())
	}
}

func TestExecute_CascadeOnlyTouchesReferencingOps(t *testing.T) {
	f := newFakeRemote()
	f.failOn[`Subscribe("bad")`] = ErrNotFound

	plan := &Plan{Operations: []Operation{
		{Kind: OpSubscribe, Item: "bad"},
		{Kind: OpSubscribe, Item: "good"},
		{Kind: OpCreateCollection, Name: "mixed", Items: ids("good", "bad")},
		{Kind: OpCreateCollection, Name: "clean", Items: ids("good")},
	}}

	report := Execute(context.Background(), plan, f, ExecuteOptions{})
	want := []Status{StatusFailed, StatusApplied, StatusSkipped, StatusApplied}
	for i, s := range want {
		if report.Outcomes[i].Status != s {
			t.Errorf("outcome[%d] (%s) = %s, want %s", i, report.Outcomes[i].Op, report.Outcomes[i].Status, s)
		}
	}
}

func TestExecute_PlanOrderAndCallback(t *testing.T) {
	f := newFakeRemote()
	d := desired(map[string][]string{"news": {"worldnews", "politics"}})
	r := remoteState(map[string][]string{"tech": {"programming"}}, "programming")
	f.collections["tech"] = ids("programming")
	f.subs["programming"] = true

	plan := Diff(d, r)
	var seen []string
	report := Execute(context.Background(), plan, f, ExecuteOptions{
		OnOutcome: func(o Outcome) { seen = append(seen, o.Op.String()) },
	})
	if !report.OK() {
		t.Fatalf("report not OK: %+v", report.Outcomes)
	}
	if len(seen) != len(plan.Operations) {
		t.Fatalf("callback saw %d outcomes, want %d", len(seen), len(plan.Operations))
	}
	for i, op := range plan.Operations {
		if seen[i] != op.String() {
			t.Errorf("callback[%d] = %s, want %s", i, seen[i], op)
		}
		if f.calls[i] != op.String() {
			t.Errorf("call[%d] = %s, want %s", i, f.calls[i], op)
		}
	}
	if report.Finished.Before(report.Started) {
		t.Error("finished before started")
	}
}

func TestExecute_DeletePreservesSubscriptions(t *testing.T) {
	f := newFakeRemote()
	f.collections["tech"] = ids("programming", "golang")
	f.subs["programming"] = true
	f.subs["golang"] = true

	plan := Diff(models.DesiredState{}, remoteState(map[string][]string{"tech": {"programming", "golang"}}, "programming", "golang"))
	report := Execute(context.Background(), plan, f, ExecuteOptions{})
	if !report.OK() {
		t.Fatalf("report not OK: %+v", report.Outcomes)
	}
	if !f.subs["programming"] || !f.subs["golang"] {
		t.Error("delete removed a subscription")
	}
}

func TestExecute_IgnoresCancellation(t *testing.T) {
	f := newFakeRemote()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &Plan{Operations: []Operation{
		{Kind: OpSubscribe, Item: "golang"},
		{Kind: OpCreateCollection, Name: "langs", Items: ids("golang")},
	}}
	report := Execute(ctx, plan, cancelAware{f}, ExecuteOptions{})
	if !report.OK() {
		t.Errorf("plan stopped after cancellation: %+v", report.Outcomes)
	}
}

// cancelAware fails any call made with a cancelled context.
type cancelAware struct{ *fakeRemote }

func (c cancelAware) Subscribe(ctx context.Context, item models.ItemID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeRemote.Subscribe(ctx, item)
}

func (c cancelAware) CreateCollection(ctx context.Context, name models.Name, items []models.ItemID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeRemote.CreateCollection(ctx, name, items)
}

func TestExecute_UnknownOperation(t *testing.T) {
	report := Execute(context.Background(), &Plan{Operations: []Operation{{Kind: "bogus"}}}, newFakeRemote(), ExecuteOptions{})
	if report.Outcomes[0].Status != StatusFailed {
		t.Errorf("status = %s, want failed", report.Outcomes[0].Status)
	}
}

func TestExecute_NilPlan(t *testing.T) {
	report := Execute(context.Background(), nil, newFakeRemote(), ExecuteOptions{})
	if len(report.Outcomes) != 0 || !report.OK() {
		t.Errorf("nil plan produced %+v", report)
	}
}

func TestIdempotentConvergence(t *testing.T) {
	f := newFakeRemote()
	f.collections["tech"] = ids("programming")
	f.collections["news"] = ids("worldnews")
	f.collections["stale"] = ids("perl")
	f.subs["programming"] = true
	f.subs["worldnews"] = true
	f.subs["perl"] = true

	d := desired(map[string][]string{
		"tech":  {"programming", "golang", "rust"},
		"news":  {"worldnews", "europe"},
		"games": {"golang", "factorio"},
	})

	ctx := context.Background()
	remote, err := FetchRemoteState(ctx, f, FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	report := Execute(ctx, Diff(d, remote), f, ExecuteOptions{})
	if !report.OK() {
		t.Fatalf("first apply not OK: %+v", report.Outcomes)
	}

	remote, err = FetchRemoteState(ctx, f, FetchOptions{})
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if plan := Diff(d, remote); !plan.Empty() {
		t.Errorf("second plan not empty: %v", plan.Operations)
	}
	if !f.subs["perl"] {
		t.Error("subscription lost after deleting its collection")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", ErrUnauthorized), FailureUnauthorized},
		{fmt.Errorf("wrap: %w", ErrForbidden), FailureForbidden},
		{fmt.Errorf("wrap: %w", ErrNotFound), FailureNotFound},
		{fmt.Errorf("wrap: %w", ErrRateLimited), FailureRateLimited},
		{fmt.Errorf("wrap: %w", ErrTransient), FailureTransient},
		{context.DeadlineExceeded, FailureTransient},
		{errors.New("boom"), FailureUnknown},
	}
	for _, tc := range tests {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
