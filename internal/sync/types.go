package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gkontridze/reorg/internal/models"
)

// OpKind identifies the kind of a plan operation.
type OpKind string

const (
	OpDeleteCollection OpKind = "delete_collection"
	OpSubscribe        OpKind = "subscribe"
	OpCreateCollection OpKind = "create_collection"
	OpAddItems         OpKind = "add_items"
)

// Operation is a single step of a Plan.
type Operation struct {
	Kind  OpKind          `json:"kind"`
	Name  models.Name     `json:"name,omitempty"`
	Items []models.ItemID `json:"items,omitempty"`
	Item  models.ItemID   `json:"item,omitempty"` // subscribe only
}

// References reports whether the operation touches item.
func (op Operation) References(item models.ItemID) bool {
	if op.Kind == OpSubscribe {
		return op.Item == item
	}
	for _, it := range op.Items {
		if it == item {
			return true
		}
	}
	return false
}

func (op Operation) String() string {
	switch op.Kind {
	case OpDeleteCollection:
		return fmt.Sprintf("DeleteCollection(%q)", op.Name)
	case OpSubscribe:
		return fmt.Sprintf("Subscribe(%q)", op.Item)
	case OpCreateCollection:
		return fmt.Sprintf("CreateCollection(%q, [%s])", op.Name, joinItems(op.Items))
	case OpAddItems:
		return fmt.Sprintf("AddItems(%q, [%s])", op.Name, joinItems(op.Items))
	default:
		return fmt.Sprintf("Unknown(%s)", op.Kind)
	}
}

func joinItems(items []models.ItemID) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, " ")
}

// Plan is the ordered list of operations that converges remote toward desired.
type Plan struct {
	Operations []Operation `json:"operations"`

	// Drift lists, per existing collection, remote members absent from the
	// desired collection. Never acted on; membership only grows.
	Drift map[models.Name][]models.ItemID `json:"drift,omitempty"`
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Operations) == 0
}

// Count returns the number of operations of the given kind.
func (p *Plan) Count(kind OpKind) int {
	if p == nil {
		return 0
	}
	n := 0
	for _, op := range p.Operations {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Status is the outcome of executing one operation.
type Status string

const (
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ReasonDependencyFailed is recorded on operations skipped because a
// subscribe they depend on failed.
const ReasonDependencyFailed = "dependency failed"

// Outcome records what happened to one operation.
type Outcome struct {
	Op      Operation     `json:"op"`
	Status  Status        `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Kind    FailureKind   `json:"failure_kind,omitempty"`
	Blocker models.ItemID `json:"blocked_by,omitempty"`
	Err     error         `json:"-"`
}

// ExecutionReport lists the outcome of every operation, in plan order.
type ExecutionReport struct {
	Outcomes []Outcome `json:"outcomes"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

func (r *ExecutionReport) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Applied returns the number of applied operations.
func (r *ExecutionReport) Applied() int { return r.count(StatusApplied) }

// Failed returns the number of failed operations.
func (r *ExecutionReport) Failed() int { return r.count(StatusFailed) }

// Skipped returns the number of skipped operations.
func (r *ExecutionReport) Skipped() int { return r.count(StatusSkipped) }

// OK reports whether every operation was applied.
func (r *ExecutionReport) OK() bool {
	return r.Failed() == 0 && r.Skipped() == 0
}

// RemoteReader is the read side of the remote service.
type RemoteReader interface {
	ListCollections(ctx context.Context) ([]models.Name, error)
	CollectionItems(ctx context.Context, name models.Name) ([]models.ItemID, error)
	ListSubscriptions(ctx context.Context) ([]models.ItemID, error)
}

// RemoteWriter is the write side of the remote service.
type RemoteWriter interface {
	CreateCollection(ctx context.Context, name models.Name, items []models.ItemID) error
	DeleteCollection(ctx context.Context, name models.Name) error
	AddItems(ctx context.Context, name models.Name, items []models.ItemID) error
	Subscribe(ctx context.Context, item models.ItemID) error
}

// RemoteClient is the full remote service surface used by reconciliation.
type RemoteClient interface {
	RemoteReader
	RemoteWriter
}
