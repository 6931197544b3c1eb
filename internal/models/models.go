package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ItemID names a subscribable sub. Always stored in normalized form.
type ItemID string

// Name names a collection (multireddit). Always stored in normalized form.
type Name string

var (
	itemPattern = regexp.MustCompile(`^[a-z0-9_]{2,23}$`)
	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{1,49}$`)
)

// ValidationError reports a malformed collection name or item identifier.
type ValidationError struct {
	Kind  string // "item" or "collection"
	Value string
	Where string // collection the value was found in, if any
}

func (e *ValidationError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("invalid %s %q in %q", e.Kind, e.Value, e.Where)
	}
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
}

// NormalizeItem canonicalizes a sub name: trims whitespace, drops an "r/" or
// "/r/" prefix and a trailing slash, lowercases.
func NormalizeItem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	if len(s) >= 2 && strings.EqualFold(s[:2], "r/") {
		s = s[2:]
	}
	s = strings.TrimSuffix(s, "/")
	return strings.ToLower(s)
}

// ParseItem normalizes and validates a sub name.
func ParseItem(s string) (ItemID, error) {
	n := NormalizeItem(s)
	if !itemPattern.MatchString(n) {
		return "", &ValidationError{Kind: "item", Value: s}
	}
	return ItemID(n), nil
}

// ParseName normalizes and validates a collection name.
func ParseName(s string) (Name, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	if !namePattern.MatchString(n) {
		return "", &ValidationError{Kind: "collection", Value: s}
	}
	return Name(n), nil
}

// ItemSet is an insertion-ordered set of item identifiers.
type ItemSet struct {
	order []ItemID
	index map[ItemID]struct{}
}

// NewItemSet builds a set from items, keeping the first occurrence of duplicates.
func NewItemSet(items ...ItemID) *ItemSet {
	s := &ItemSet{index: make(map[ItemID]struct{}, len(items))}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add appends item unless already present. Returns true if it was added.
func (s *ItemSet) Add(item ItemID) bool {
	if s.index == nil {
		s.index = make(map[ItemID]struct{})
	}
	if _, ok := s.index[item]; ok {
		return false
	}
	s.index[item] = struct{}{}
	s.order = append(s.order, item)
	return true
}

// Has reports membership.
func (s *ItemSet) Has(item ItemID) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[item]
	return ok
}

// Len returns the number of items.
func (s *ItemSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Items returns a copy of the items in insertion order.
func (s *ItemSet) Items() []ItemID {
	if s == nil {
		return nil
	}
	out := make([]ItemID, len(s.order))
	copy(out, s.order)
	return out
}

// Minus returns the items of s not in other, in s's order.
func (s *ItemSet) Minus(other *ItemSet) []ItemID {
	var out []ItemID
	for _, it := range s.Items() {
		if !other.Has(it) {
			out = append(out, it)
		}
	}
	return out
}

// Collection is a named, ordered set of items.
type Collection struct {
	Name  Name
	Items *ItemSet
}

// NewCollection builds a collection; duplicate items are dropped.
func NewCollection(name Name, items ...ItemID) *Collection {
	return &Collection{Name: name, Items: NewItemSet(items...)}
}

// DesiredState maps collection name to the declared collection.
type DesiredState map[Name]*Collection

// Names returns the collection names sorted lexicographically.
func (d DesiredState) Names() []Name {
	return sortedNames(d)
}

// Validate checks that every name and item is in normalized, valid form.
// States built through ParseName/ParseItem always pass.
func (d DesiredState) Validate() error {
	for _, name := range d.Names() {
		c := d[name]
		if c == nil || c.Name != name {
			return fmt.Errorf("collection %q: key does not match collection name", name)
		}
		if !namePattern.MatchString(string(name)) {
			return &ValidationError{Kind: "collection", Value: string(name)}
		}
		for _, it := range c.Items.Items() {
			if !itemPattern.MatchString(string(it)) {
				return &ValidationError{Kind: "item", Value: string(it), Where: string(name)}
			}
		}
	}
	return nil
}

// Sorted returns a copy with every collection's items sorted by name.
func (d DesiredState) Sorted() DesiredState {
	out := make(DesiredState, len(d))
	for name, c := range d {
		items := c.Items.Items()
		sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
		out[name] = NewCollection(name, items...)
	}
	return out
}

// Equal reports whether two desired states have the same names and the same
// items in the same order.
func (d DesiredState) Equal(o DesiredState) bool {
	if len(d) != len(o) {
		return false
	}
	for name, c := range d {
		oc, ok := o[name]
		if !ok {
			return false
		}
		a, b := c.Items.Items(), oc.Items.Items()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// RemoteState is a snapshot of the service: collections plus the
// subscription set of the acting identity.
type RemoteState struct {
	Collections   map[Name]*Collection
	Subscriptions *ItemSet
}

// NewRemoteState returns an empty remote state.
func NewRemoteState() *RemoteState {
	return &RemoteState{
		Collections:   make(map[Name]*Collection),
		Subscriptions: NewItemSet(),
	}
}

// Names returns the remote collection names sorted lexicographically.
func (r *RemoteState) Names() []Name {
	return sortedNames(r.Collections)
}

func sortedNames(m map[Name]*Collection) []Name {
	names := make([]Name, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
