// Package syncharness drives full reconcile passes against an in-memory
// reddit served over HTTP, using the real client, fetcher, planner and
// executor.
package syncharness

import (
	"context"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gkontridze/reorg/internal/models"
	"github.com/gkontridze/reorg/internal/reddit"
	reorgsync "github.com/gkontridze/reorg/internal/sync"
)

// HarnessUser is the account name the service authenticates as.
const HarnessUser = "harness_user"

// Harness wires one reddit client to one Service.
type Harness struct {
	t       testing.TB
	Service *Service
	Client  *reddit.Client
}

// NewHarness starts a Service behind httptest and returns a client logged in
// to it. The server is closed when the test ends.
func NewHarness(t testing.TB) *Harness {
	t.Helper()
	svc := NewService(HarnessUser)
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	client := reddit.New(reddit.Options{
		APIURL:            srv.URL,
		TokenURL:          srv.URL + tokenPath,
		ClientID:          "harness-client",
		ClientSecret:      "harness-secret",
		Username:          HarnessUser,
		Password:          "harness-password",
		UserAgent:         "reorg-harness/1.0",
		Timeout:           5 * time.Second,
		RequestsPerMinute: 6_000_000,
	})
	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("me: %v", err)
	}
	return &Harness{t: t, Service: svc, Client: client}
}

// Remote fetches the current remote state.
func (h *Harness) Remote() *models.RemoteState {
	h.t.Helper()
	remote, err := reorgsync.FetchRemoteState(context.Background(), h.Client, reorgsync.FetchOptions{Concurrency: 4})
	if err != nil {
		h.t.Fatalf("fetch remote: %v", err)
	}
	return remote
}

// Plan builds the plan that would converge the service toward desired.
func (h *Harness) Plan(desired models.DesiredState) *reorgsync.Plan {
	h.t.Helper()
	plan, err := reorgsync.BuildPlan(desired, h.Remote())
	if err != nil {
		h.t.Fatalf("build plan: %v", err)
	}
	return plan
}

// Apply runs one full pass: fetch, plan, execute.
func (h *Harness) Apply(desired models.DesiredState) (*reorgsync.Plan, *reorgsync.ExecutionReport) {
	h.t.Helper()
	plan := h.Plan(desired)
	report := reorgsync.Execute(context.Background(), plan, h.Client, reorgsync.ExecuteOptions{})
	return plan, report
}

// Snapshot generates a document from the current remote state.
func (h *Harness) Snapshot() models.DesiredState {
	h.t.Helper()
	return reorgsync.Generate(h.Remote())
}

// AssertConverged checks that the service holds exactly the desired feeds,
// each containing at least its desired subs.
func (h *Harness) AssertConverged(desired models.DesiredState) {
	h.t.Helper()

	var want []string
	for name := range desired {
		want = append(want, string(name))
	}
	sort.Strings(want)
	var got []string
	for _, n := range h.Service.MultiNames() {
		got = append(got, strings.ToLower(n))
	}
	sort.Strings(got)
	if strings.Join(want, ",") != strings.Join(got, ",") {
		h.t.Fatalf("feeds = %v, want %v", got, want)
	}

	for name, c := range desired {
		subs, _ := h.Service.Multi(string(name))
		have := make(map[string]bool, len(subs))
		for _, s := range subs {
			have[s] = true
		}
		for _, it := range c.Items.Items() {
			if !have[string(it)] {
				h.t.Errorf("feed %s missing %s (has %v)", name, it, subs)
			}
		}
	}
}

// Desired builds a DesiredState from literal names, failing the test on
// invalid input.
func Desired(t testing.TB, feeds map[string][]string) models.DesiredState {
	t.Helper()
	d := models.DesiredState{}
	for n, items := range feeds {
		name, err := models.ParseName(n)
		if err != nil {
			t.Fatalf("name %q: %v", n, err)
		}
		c := models.NewCollection(name)
		for _, s := range items {
			it, err := models.ParseItem(s)
			if err != nil {
				t.Fatalf("item %q: %v", s, err)
			}
			c.Items.Add(it)
		}
		d[name] = c
	}
	return d
}
