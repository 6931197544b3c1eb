package sync

import "github.com/gkontridze/reorg/internal/models"

// Generate copies every remote collection, name and membership verbatim, into
// a desired state. Used to bootstrap a document from the current remote.
func Generate(remote *models.RemoteState) models.DesiredState {
	out := make(models.DesiredState)
	if remote == nil {
		return out
	}
	for name, c := range remote.Collections {
		out[name] = models.NewCollection(name, c.Items.Items()...)
	}
	return out
}
