package feed

import "maps"

// DefaultMaxSize caps the Display List when MergeOptions.MaxSize is unset.
const DefaultMaxSize = 200

// SeenScope decides which ids a first load records as seen.
type SeenScope int

const (
	// SeenDisplayed records only the ids kept after truncation to MaxSize.
	SeenDisplayed SeenScope = iota
	// SeenSnapshot records every id of the first snapshot, including the ones
	// truncated away, so they never show up later as arrivals.
	SeenSnapshot
)

// ParseSeenScope maps a config string to a SeenScope. Unknown values fall
// back to SeenDisplayed.
func ParseSeenScope(s string) SeenScope {
	if s == "snapshot" {
		return SeenSnapshot
	}
	return SeenDisplayed
}

func (s SeenScope) String() string {
	if s == SeenSnapshot {
		return "snapshot"
	}
	return "displayed"
}

// SeenSet is an immutable set of identifiers. The zero value is empty.
type SeenSet struct {
	m map[string]struct{}
}

// NewSeenSet builds a set from ids.
func NewSeenSet(ids ...string) SeenSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return SeenSet{m: m}
}

// Has reports whether id is in the set.
func (s SeenSet) Has(id string) bool {
	_, ok := s.m[id]
	return ok
}

// Len returns the set size.
func (s SeenSet) Len() int { return len(s.m) }

// with returns a new set holding s plus ids. s is left untouched.
func (s SeenSet) with(ids []string) SeenSet {
	m := maps.Clone(s.m)
	if m == nil {
		m = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return SeenSet{m: m}
}

// State is the reconciliation state threaded through Merge.
type State struct {
	List      []Item  // Display List, newest first
	Seen      SeenSet // every id admitted since the last reset
	FirstLoad bool
}

// Reset returns the empty state used at start and after a reconnect.
func Reset() State {
	return State{FirstLoad: true}
}

// IDs returns the Display List ids in order.
func (s State) IDs() []string {
	return Snapshot(s.List).IDs()
}

// MergeOptions configures Merge.
type MergeOptions struct {
	MaxSize            int
	Seen               SeenScope
	HighlightFirstLoad bool // report first-load items as Added
}

func (o MergeOptions) maxSize() int {
	if o.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return o.MaxSize
}

// Result is the outcome of one Merge.
type Result struct {
	State   State
	Added   []string // ids to highlight, snapshot order
	Changed bool     // false means State is prev, returned as-is
}

// Merge folds snap into prev. prev is never modified.
//
// On first load the deduplicated snapshot replaces the Display List. After
// that only ids absent from the Seen set are admitted, prepended in snapshot
// order, with the oldest entries evicted past MaxSize. A snapshot with no
// unseen ids returns prev unchanged with Changed == false.
func Merge(prev State, snap Snapshot, opts MergeOptions) Result {
	limit := opts.maxSize()
	snap = Dedupe(snap)

	if prev.FirstLoad {
		return firstLoad(prev, snap, opts, limit)
	}

	var additions []Item
	for _, it := range snap {
		if !prev.Seen.Has(it.ID) {
			additions = append(additions, it)
		}
	}
	if len(additions) == 0 {
		return Result{State: prev}
	}

	list := make([]Item, 0, min(len(additions)+len(prev.List), limit))
	list = append(list, additions[:min(len(additions), limit)]...)
	list = append(list, prev.List[:min(len(prev.List), limit-len(list))]...)

	added := Snapshot(additions).IDs()
	return Result{
		State: State{
			List: list,
			Seen: prev.Seen.with(added),
		},
		Added:   added,
		Changed: true,
	}
}

func firstLoad(prev State, snap Snapshot, opts MergeOptions, limit int) Result {
	if len(snap) == 0 {
		// still waiting for the first non-empty snapshot
		return Result{State: prev}
	}

	list := make([]Item, min(len(snap), limit))
	copy(list, snap)

	seenIDs := Snapshot(list).IDs()
	if opts.Seen == SeenSnapshot {
		seenIDs = snap.IDs()
	}

	res := Result{
		State: State{
			List: list,
			Seen: SeenSet{}.with(seenIDs),
		},
		Changed: true,
	}
	if opts.HighlightFirstLoad {
		res.Added = Snapshot(list).IDs()
	}
	return res
}
