package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/gkontridze/reorg/internal/models"
)

// fakeRemote is an in-memory RemoteClient. failOn maps an operation string
// (as produced by Operation.String) or a read name to the error it returns.
type fakeRemote struct {
	mu          gosync.Mutex
	collections map[models.Name][]models.ItemID
	subs        map[models.ItemID]bool
	failOn      map[string]error
	calls       []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		collections: make(map[models.Name][]models.ItemID),
		subs:        make(map[models.ItemID]bool),
		failOn:      make(map[string]error),
	}
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeRemote) ListCollections(ctx context.Context) ([]models.Name, error) {
	if err := f.record("ListCollections"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []models.Name
	for n := range f.collections {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeRemote) CollectionItems(ctx context.Context, name models.Name) ([]models.ItemID, error) {
	if err := f.record(fmt.Sprintf("CollectionItems(%q)", name)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.collections[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.ItemID(nil), items...), nil
}

func (f *fakeRemote) ListSubscriptions(ctx context.Context) ([]models.ItemID, error) {
	if err := f.record("ListSubscriptions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ItemID
	for it := range f.subs {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeRemote) CreateCollection(ctx context.Context, name models.Name, items []models.ItemID) error {
	if err := f.record(Operation{Kind: OpCreateCollection, Name: name, Items: items}.String()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		if !f.subs[it] {
			return fmt.Errorf("%w: not subscribed to %s", ErrForbidden, it)
		}
	}
	f.collections[name] = append([]models.ItemID(nil), items...)
	return nil
}

func (f *fakeRemote) DeleteCollection(ctx context.Context, name models.Name) error {
	if err := f.record(Operation{Kind: OpDeleteCollection, Name: name}.String()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		return ErrNotFound
	}
	delete(f.collections, name)
	return nil
}

func (f *fakeRemote) AddItems(ctx context.Context, name models.Name, items []models.ItemID) error {
	if err := f.record(Operation{Kind: OpAddItems, Name: name, Items: items}.String()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.collections[name]
	if !ok {
		return ErrNotFound
	}
	for _, it := range items {
		if !f.subs[it] {
			return fmt.Errorf("%w: not subscribed to %s", ErrForbidden, it)
		}
	}
	f.collections[name] = append(existing, items...)
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, item models.ItemID) error {
	if err := f.record(Operation{Kind: OpSubscribe, Item: item}.String()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[item] = true
	return nil
}

// desired builds a DesiredState from plain strings.
func desired(m map[string][]string) models.DesiredState {
	d := make(models.DesiredState)
	for name, items := range m {
		n := models.Name(name)
		ids := make([]models.ItemID, len(items))
		for i, it := range items {
			ids[i] = models.ItemID(it)
		}
		d[n] = models.NewCollection(n, ids...)
	}
	return d
}

// remoteState builds a RemoteState from plain strings.
func remoteState(cols map[string][]string, subs ...string) *models.RemoteState {
	r := models.NewRemoteState()
	for name, c := range desired(cols) {
		r.Collections[name] = c
	}
	for _, s := range subs {
		r.Subscriptions.Add(models.ItemID(s))
	}
	return r
}
