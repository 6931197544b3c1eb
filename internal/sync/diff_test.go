package sync

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gkontridze/reorg/internal/models"
)

func ids(s ...string) []models.ItemID {
	out := make([]models.ItemID, len(s))
	for i, v := range s {
		out[i] = models.ItemID(v)
	}
	return out
}

func TestDiff_ReplaceCollection(t *testing.T) {
	d := desired(map[string][]string{"news": {"worldnews", "politics"}})
	r := remoteState(map[string][]string{"tech": {"programming"}}, "programming")

	got := Diff(d, r).Operations
	want := []Operation{
		{Kind: OpDeleteCollection, Name: "tech"},
		{Kind: OpSubscribe, Item: "worldnews"},
		{Kind: OpSubscribe, Item: "politics"},
		{Kind: OpCreateCollection, Name: "news", Items: ids("worldnews", "politics")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_ShrinkingIsNotApplied(t *testing.T) {
	d := desired(map[string][]string{"news": {"worldnews"}})
	r := remoteState(map[string][]string{"news": {"worldnews", "politics"}}, "worldnews", "politics")

	plan := Diff(d, r)
	if !plan.Empty() {
		t.Fatalf("expected empty plan, got %v", plan.Operations)
	}
	if diff := cmp.Diff(map[models.Name][]models.ItemID{"news": ids("politics")}, plan.Drift); diff != "" {
		t.Errorf("drift mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_AddItemsToExisting(t *testing.T) {
	d := desired(map[string][]string{"news": {"worldnews", "politics", "europe"}})
	r := remoteState(map[string][]string{"news": {"worldnews"}}, "worldnews", "europe")

	got := Diff(d, r).Operations
	want := []Operation{
		{Kind: OpSubscribe, Item: "politics"},
		{Kind: OpAddItems, Name: "news", Items: ids("politics", "europe")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_SubscribeDeduplicated(t *testing.T) {
	d := desired(map[string][]string{
		"alpha": {"golang", "rust"},
		"beta":  {"rust", "zig"},
		"gamma": {"golang"},
	})
	r := remoteState(map[string][]string{"gamma": {}})

	plan := Diff(d, r)
	seen := make(map[models.ItemID]int)
	for _, op := range plan.Operations {
		if op.Kind == OpSubscribe {
			seen[op.Item]++
		}
	}
	for _, it := range ids("golang", "rust", "zig") {
		if seen[it] != 1 {
			t.Errorf("Subscribe(%s) emitted %d times, want 1", it, seen[it])
		}
	}
	if plan.Count(OpSubscribe) != 3 {
		t.Errorf("subscribe count = %d, want 3", plan.Count(OpSubscribe))
	}
}

func TestDiff_Ordering(t *testing.T) {
	d := desired(map[string][]string{
		"zeta":  {"ccc"},
		"alpha": {"aaa"},
		"keep":  {"bbb", "ddd"},
	})
	r := remoteState(map[string][]string{
		"old2": {},
		"keep": {"bbb"},
		"old1": {},
	}, "bbb")

	var kinds []OpKind
	var names []models.Name
	for _, op := range Diff(d, r).Operations {
		kinds = append(kinds, op.Kind)
		names = append(names, op.Name)
	}
	wantKinds := []OpKind{
		OpDeleteCollection, OpDeleteCollection,
		OpSubscribe, OpSubscribe, OpSubscribe,
		OpCreateCollection, OpCreateCollection,
		OpAddItems,
	}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	wantNames := []models.Name{"old1", "old2", "", "", "", "alpha", "zeta", "keep"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_SubscribeBeforeUse(t *testing.T) {
	d := desired(map[string][]string{
		"a1": {"one", "two"},
		"b2": {"two", "three"},
		"c3": {"four"},
	})
	r := remoteState(map[string][]string{"c3": {"five"}}, "five")

	plan := Diff(d, r)
	subscribedAt := make(map[models.ItemID]int)
	for i, op := range plan.Operations {
		if op.Kind == OpSubscribe {
			subscribedAt[op.Item] = i
			continue
		}
		for _, it := range op.Items {
			if r.Subscriptions.Has(it) {
				continue
			}
			at, ok := subscribedAt[it]
			if !ok || at >= i {
				t.Errorf("%s uses %s before it is subscribed", op, it)
			}
		}
	}
}

func TestDiff_NoSpuriousDeletes(t *testing.T) {
	d := desired(map[string][]string{"shared": {"golang"}, "new": {"rust"}})
	r := remoteState(map[string][]string{"shared": {"python"}, "gone": {"perl"}}, "python", "perl")

	for _, op := range Diff(d, r).Operations {
		if op.Kind != OpDeleteCollection {
			continue
		}
		if _, inDesired := d[op.Name]; inDesired {
			t.Errorf("DeleteCollection(%s) emitted for a desired collection", op.Name)
		}
		if _, inRemote := r.Collections[op.Name]; !inRemote {
			t.Errorf("DeleteCollection(%s) emitted for a non-remote collection", op.Name)
		}
	}
}

func TestDiff_Deterministic(t *testing.T) {
	d := desired(map[string][]string{
		"m1": {"a1", "b1", "c1"},
		"m2": {"c1", "d1"},
		"m3": {"e1"},
		"m4": {"f1", "a1"},
	})
	r := remoteState(map[string][]string{"m3": {}, "x1": {}, "x2": {"a1"}}, "a1")

	first := Diff(d, r)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, Diff(d, r)); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestDiff_NoAddItemsForNewCollection(t *testing.T) {
	d := desired(map[string][]string{"fresh": {"golang", "rust"}})
	plan := Diff(d, nil)
	for _, op := range plan.Operations {
		if op.Kind == OpAddItems && op.Name == "fresh" {
			t.Errorf("AddItems emitted for collection created in the same plan")
		}
	}
	if plan.Count(OpCreateCollection) != 1 {
		t.Errorf("create count = %d, want 1", plan.Count(OpCreateCollection))
	}
}

func TestDiff_EmptyDesiredDeletesEverything(t *testing.T) {
	r := remoteState(map[string][]string{"a1": {"x1"}, "b1": {}}, "x1")
	plan := Diff(models.DesiredState{}, r)
	if plan.Count(OpDeleteCollection) != 2 || len(plan.Operations) != 2 {
		t.Errorf("plan = %v, want two deletes", plan.Operations)
	}
}

func TestBuildPlan_RejectsInvalidInput(t *testing.T) {
	d := models.DesiredState{"news": models.NewCollection("news", "Not Valid")}
	plan, err := BuildPlan(d, models.NewRemoteState())
	if err == nil {
		t.Fatalf("expected error, got plan %v", plan)
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error %T, want *models.ValidationError", err)
	}
	if plan != nil {
		t.Error("plan built from invalid input")
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{Operation{Kind: OpDeleteCollection, Name: "tech"}, `DeleteCollection("tech")`},
		{Operation{Kind: OpSubscribe, Item: "golang"}, `Subscribe("golang")`},
		{Operation{Kind: OpCreateCollection, Name: "news", Items: ids("a1", "b1")}, `CreateCollection("news", [a1 b1])`},
		{Operation{Kind: OpAddItems, Name: "news", Items: ids("c1")}, `AddItems("news", [c1])`},
	}
	for _, tc := range tests {
		if got := tc.op.String(); got != tc.want {
			t.Errorf("String() = %s, want %s", got, tc.want)
		}
	}
}
