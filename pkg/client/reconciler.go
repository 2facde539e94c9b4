package client

import (
	"errors"
	"sort"
	"sync"
	"time"

	"atelier/application/queries"
	"atelier/domain/core/valueobjects"
)

// EntryKind tells a placeholder from a painting the server knows about.
type EntryKind int

const (
	KindPlaceholder EntryKind = iota
	KindReal
)

func (k EntryKind) String() string {
	if k == KindReal {
		return "real"
	}
	return "placeholder"
}

// Placeholder stands in for a painting the client asked for but has not yet
// seen in a poll. Seq orders placeholders by creation.
type Placeholder struct {
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry is one slot of the displayed list. Exactly one of Placeholder or
// Painting is meaningful, selected by Kind.
type Entry struct {
	Kind        EntryKind
	Placeholder Placeholder
	Painting    queries.PaintingView
}

// View is the merged list after a submit or a poll.
type View struct {
	Entries  []Entry
	Expected int
	// Done is set once no placeholder is left and every painting is
	// terminal; polling can stop.
	Done bool
}

// BatchState is the part of a title's view that survives a restart.
type BatchState struct {
	NextSeq uint64 `json:"nextSeq"`
	// Expected is the length the list should have once the batch settles.
	Expected int `json:"expected"`
	// Baseline counts the server paintings already accounted for; only
	// paintings beyond it can replace placeholders.
	Baseline int `json:"baseline"`
	// Start is the server painting count when the batch began.
	Start        int           `json:"start"`
	Placeholders []Placeholder `json:"placeholders,omitempty"`
}

// Store persists BatchState per title.
type Store interface {
	LoadBatch(titleID string) (BatchState, error)
	SaveBatch(titleID string, state BatchState) error
}

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Reconciler merges optimistic placeholders with polled paintings for one
// title. There is no id linking a placeholder to the painting that replaces
// it, so the oldest placeholders are replaced first.
type Reconciler struct {
	mu      sync.Mutex
	titleID string
	store   Store
	state   BatchState
	real    []queries.PaintingView
	now     func() time.Time
}

// NewReconciler restores any in-flight placeholders for titleID from store.
func NewReconciler(titleID string, store Store) (*Reconciler, error) {
	state, err := store.LoadBatch(titleID)
	if err != nil {
		return nil, err
	}
	sortPlaceholders(state.Placeholders)
	return &Reconciler{
		titleID: titleID,
		store:   store,
		state:   state,
		now:     time.Now,
	}, nil
}

// Submit adds n placeholders for a batch being requested. Merge a fresh poll
// first so paintings that already exist are not taken for the new batch.
func (r *Reconciler) Submit(n int) (View, error) {
	if n < 1 {
		return View{}, ErrInvalidQuantity
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.state.Placeholders) == 0 {
		r.state.Baseline = len(r.real)
		r.state.Start = len(r.real)
	}
	now := r.now().UTC()
	for i := 0; i < n; i++ {
		r.state.Placeholders = append(r.state.Placeholders, Placeholder{Seq: r.state.NextSeq, CreatedAt: now})
		r.state.NextSeq++
	}
	r.state.Expected = r.state.Baseline + len(r.state.Placeholders)

	if err := r.store.SaveBatch(r.titleID, r.state); err != nil {
		return View{}, err
	}
	return r.viewLocked(false), nil
}

// Cancel drops the n newest placeholders, for a submit the server refused.
func (r *Reconciler) Cancel(n int) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.state.Placeholders) {
		n = len(r.state.Placeholders)
	}
	r.state.Placeholders = r.state.Placeholders[:len(r.state.Placeholders)-n]
	r.state.Expected -= n
	if len(r.state.Placeholders) == 0 {
		r.state.Placeholders = nil
		r.state.Expected = len(r.real)
		r.state.Baseline = len(r.real)
	}
	if err := r.store.SaveBatch(r.titleID, r.state); err != nil {
		return View{}, err
	}
	return r.viewLocked(false), nil
}

// Merge folds one poll result into the view. paintings is the full,
// authoritative list for the title. Placeholders clear once the list covers
// the expected count or the batch's paintings are all terminal.
func (r *Reconciler) Merge(paintings []queries.PaintingView) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.real = paintings
	if len(r.state.Placeholders) == 0 {
		r.state.Baseline = len(paintings)
		r.state.Expected = len(paintings)
		return r.viewLocked(allTerminal(paintings)), nil
	}

	if fresh := len(paintings) - r.state.Baseline; fresh > 0 {
		n := fresh
		if n > len(r.state.Placeholders) {
			n = len(r.state.Placeholders)
		}
		r.state.Placeholders = r.state.Placeholders[n:]
		r.state.Baseline += n
	}

	// Older paintings may all be terminal before the batch shows up at all.
	settled := len(paintings) > r.state.Start && allTerminal(paintings)
	if len(paintings) >= r.state.Expected || settled {
		r.state.Placeholders = nil
		r.state.Baseline = len(paintings)
		r.state.Expected = len(paintings)
	}
	done := len(r.state.Placeholders) == 0 && allTerminal(paintings)

	if err := r.store.SaveBatch(r.titleID, r.state); err != nil {
		return View{}, err
	}
	return r.viewLocked(done), nil
}

// View returns the current list without polling. Right after NewReconciler
// this is the restored placeholders alone.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked(false)
}

// Pending reports how many placeholders are waiting for a painting.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.Placeholders)
}

func (r *Reconciler) viewLocked(done bool) View {
	entries := make([]Entry, 0, len(r.real)+len(r.state.Placeholders))
	for _, p := range r.real {
		entries = append(entries, Entry{Kind: KindReal, Painting: p})
	}
	for _, ph := range r.state.Placeholders {
		entries = append(entries, Entry{Kind: KindPlaceholder, Placeholder: ph})
	}
	expected := r.state.Expected
	if expected < len(entries) {
		expected = len(entries)
	}
	return View{Entries: entries, Expected: expected, Done: done}
}

func allTerminal(paintings []queries.PaintingView) bool {
	for _, p := range paintings {
		if !valueobjects.PaintingStatus(p.Status).IsTerminal() {
			return false
		}
	}
	return true
}

func sortPlaceholders(ps []Placeholder) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Seq < ps[j].Seq })
}
