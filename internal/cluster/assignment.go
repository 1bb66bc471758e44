package cluster

import (
	"fmt"
	"sort"
	"sync"

	"cytosort/pkg/errdefs"
)

// Assignment is the single source of truth mapping image identifiers to
// cluster labels. "Members of a label" and "label of an image" are
// derived queries over this table, never independently mutable state.
//
// Every mutation happens under one lock, so the invariant that each
// assigned image carries exactly one label holds at every observable
// point, including across split and merge. Fresh labels come from a
// monotonic counter and are never reused, so a retired label cannot
// collide with a later one.
type Assignment struct {
	mu     sync.RWMutex
	labels map[string]int
	next   int
}

// NewAssignment creates an empty assignment table.
func NewAssignment() *Assignment {
	return &Assignment{labels: make(map[string]int)}
}

// SetAll replaces the whole table with a fresh clustering result. ids and
// labels are parallel slices; labels are expected 0-indexed as returned
// by KMeans.
func (a *Assignment) SetAll(ids []string, labels []int) error {
	if len(ids) != len(labels) {
		return errdefs.NewConfigError("assignment", fmt.Sprintf("%d ids but %d labels", len(ids), len(labels)))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.labels = make(map[string]int, len(ids))
	a.next = 0
	for i, id := range ids {
		if labels[i] < 0 {
			return errdefs.NewConfigError("assignment", fmt.Sprintf("negative label %d for %s", labels[i], id))
		}
		a.labels[id] = labels[i]
		if labels[i] >= a.next {
			a.next = labels[i] + 1
		}
	}
	return nil
}

// Label returns the label assigned to an image identifier.
func (a *Assignment) Label(id string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	label, ok := a.labels[id]
	return label, ok
}

// Len returns the number of assigned identifiers.
func (a *Assignment) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.labels)
}

// Members returns the identifiers carrying the given label, sorted.
func (a *Assignment) Members(label int) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.membersLocked(label)
}

func (a *Assignment) membersLocked(label int) []string {
	var out []string
	for id, l := range a.labels {
		if l == label {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Labels returns the distinct labels currently in use, sorted.
func (a *Assignment) Labels() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[int]struct{})
	for _, l := range a.labels {
		seen[l] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// ApplySplit retires a label, distributing its members over fresh labels.
// ids and subLabels are parallel: subLabels holds the 0-indexed
// sub-cluster of each member, and each distinct sub-cluster maps to one
// fresh label. Every current member of the retired label must appear in
// ids, otherwise a member would be left under a retired label.
func (a *Assignment) ApplySplit(label int, ids []string, subLabels []int) error {
	if len(ids) != len(subLabels) {
		return errdefs.NewConfigError("split", fmt.Sprintf("%d ids but %d sub-labels", len(ids), len(subLabels)))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	members := a.membersLocked(label)
	if len(members) == 0 {
		return errdefs.NewStateError("split", fmt.Sprintf("label %d has no members", label))
	}
	if len(ids) != len(members) {
		return errdefs.NewStateError("split", fmt.Sprintf("label %d has %d members but %d were relabeled", label, len(members), len(ids)))
	}
	covered := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if l, ok := a.labels[id]; !ok || l != label {
			return errdefs.NewStateError("split", fmt.Sprintf("%s does not carry label %d", id, label))
		}
		covered[id] = struct{}{}
	}
	if len(covered) != len(members) {
		return errdefs.NewStateError("split", "duplicate identifiers in split result")
	}

	fresh := make(map[int]int)
	for i, id := range ids {
		sub := subLabels[i]
		newLabel, ok := fresh[sub]
		if !ok {
			newLabel = a.next
			a.next++
			fresh[sub] = newLabel
		}
		a.labels[id] = newLabel
	}
	return nil
}

// Merge reassigns the members of two or more labels to one fresh label,
// retiring the sources. Returns the new label.
func (a *Assignment) Merge(labels ...int) (int, error) {
	if len(labels) < 2 {
		return 0, errdefs.NewStateError("merge", fmt.Sprintf("need at least two labels, got %d", len(labels)))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		if _, dup := seen[l]; dup {
			return 0, errdefs.NewStateError("merge", fmt.Sprintf("label %d listed twice", l))
		}
		seen[l] = struct{}{}
		if len(a.membersLocked(l)) == 0 {
			return 0, errdefs.NewStateError("merge", fmt.Sprintf("label %d has no members", l))
		}
	}

	newLabel := a.next
	a.next++
	for id, l := range a.labels {
		if _, ok := seen[l]; ok {
			a.labels[id] = newLabel
		}
	}
	return newLabel, nil
}

// Snapshot returns a copy of the full id-to-label table.
func (a *Assignment) Snapshot() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]int, len(a.labels))
	for id, l := range a.labels {
		out[id] = l
	}
	return out
}
