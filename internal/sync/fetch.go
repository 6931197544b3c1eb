package sync

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gkontridze/reorg/internal/models"
)

// DefaultFetchConcurrency bounds concurrent member listings.
const DefaultFetchConcurrency = 4

// FetchOptions tunes FetchRemoteState.
type FetchOptions struct {
	// Concurrency caps in-flight CollectionItems calls. <= 0 uses the default.
	Concurrency int
}

// FetchRemoteState reads the subscription set and every collection with its
// members. Reads are issued concurrently. Any read error fails the whole fetch;
// no partial state is returned.
func FetchRemoteState(ctx context.Context, r RemoteReader, opts FetchOptions) (*models.RemoteState, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultFetchConcurrency
	}

	var (
		subs    []models.ItemID
		names   []models.Name
		members [][]models.ItemID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.ListSubscriptions(gctx)
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		subs = s
		return nil
	})
	g.Go(func() error {
		n, err := r.ListCollections(gctx)
		if err != nil {
			return fmt.Errorf("list collections: %w", err)
		}
		names = n
		members = make([][]models.ItemID, len(names))

		mg, mctx := errgroup.WithContext(gctx)
		mg.SetLimit(limit)
		for i, name := range names {
			mg.Go(func() error {
				items, err := r.CollectionItems(mctx, name)
				if err != nil {
					return fmt.Errorf("list members of %q: %w", name, err)
				}
				members[i] = items
				return nil
			})
		}
		return mg.Wait()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	state := models.NewRemoteState()
	for i, name := range names {
		if _, dup := state.Collections[name]; dup {
			slog.Warn("duplicate remote collection", "name", name)
			continue
		}
		state.Collections[name] = models.NewCollection(name, members[i]...)
	}
	for _, it := range subs {
		state.Subscriptions.Add(it)
	}

	slog.Debug("fetched remote state", "collections", len(state.Collections), "subscriptions", state.Subscriptions.Len())
	return state, nil
}
