package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/gkontridze/reorg/internal/document"
	"github.com/gkontridze/reorg/internal/models"
	"github.com/gkontridze/reorg/internal/reddit"
	"github.com/gkontridze/reorg/internal/sync"
	"github.com/gkontridze/reorg/internal/tui/progress"
)

// errAborted is returned when the user declines the apply prompt.
var errAborted = errors.New("aborted")

// newClient builds a reddit client from the loaded config.
func newClient() (*reddit.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return reddit.New(reddit.Options{
		APIURL:            cfg.Reddit.APIURL,
		TokenURL:          cfg.Reddit.TokenURL,
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.ClientSecret,
		Username:          cfg.Reddit.Username,
		Password:          cfg.Reddit.Password,
		UserAgent:         cfg.UserAgent(version),
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}), nil
}

// fetchRemote snapshots the remote feeds and subscriptions behind a spinner.
func fetchRemote(ctx context.Context, r sync.RemoteReader) (*models.RemoteState, error) {
	var state *models.RemoteState
	err := progress.Run(ctx, os.Stderr, "Fetching feeds from reddit", func(ctx context.Context, _ progress.Reporter) error {
		var err error
		state, err = sync.FetchRemoteState(ctx, r, sync.FetchOptions{Concurrency: cfg.FetchConcurrency})
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// documentPath returns the flag value or the configured document.
func documentPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Document
}

// loadDocument reads the desired state, announcing the source on stderr.
func loadDocument(path string, quiet bool) (models.DesiredState, error) {
	store := document.New(path)
	if !quiet {
		if store.IsStdio() {
			fmt.Fprintln(os.Stderr, "reading feeds from stdin")
		} else {
			fmt.Fprintf(os.Stderr, "reading feeds from %s\n", path)
		}
	}
	return store.Load()
}

// confirm asks a yes/no question on the terminal.
func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Apply").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
