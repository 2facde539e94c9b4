// Package memory holds mutex-guarded in-process repositories. They back the
// memory storage backend and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"atelier/application/ports"
	"atelier/domain/core/entities"
	"atelier/domain/core/valueobjects"
	pkgerrors "atelier/pkg/errors"
)

// TitleRepository is an in-memory ports.TitleRepository.
type TitleRepository struct {
	mu     sync.RWMutex
	titles map[valueobjects.TitleID]*entities.Title
}

func NewTitleRepository() *TitleRepository {
	return &TitleRepository{titles: make(map[valueobjects.TitleID]*entities.Title)}
}

func (r *TitleRepository) Save(ctx context.Context, title *entities.Title) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles[title.ID()] = title
	return nil
}

func (r *TitleRepository) GetByID(ctx context.Context, id valueobjects.TitleID) (*entities.Title, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	title, ok := r.titles[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("title")
	}
	return title, nil
}

// ListByUser returns the user's titles newest first.
func (r *TitleRepository) ListByUser(ctx context.Context, userID string) ([]*entities.Title, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Title
	for _, t := range r.titles {
		if t.OwnedBy(userID) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	return out, nil
}

// IdeaRepository is an in-memory ports.IdeaRepository. Ideas are immutable,
// so they are stored by pointer.
type IdeaRepository struct {
	mu      sync.RWMutex
	ideas   map[valueobjects.IdeaID]*entities.Idea
	byTitle map[valueobjects.TitleID][]*entities.Idea
}

func NewIdeaRepository() *IdeaRepository {
	return &IdeaRepository{
		ideas:   make(map[valueobjects.IdeaID]*entities.Idea),
		byTitle: make(map[valueobjects.TitleID][]*entities.Idea),
	}
}

func (r *IdeaRepository) Save(ctx context.Context, idea *entities.Idea) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ideas[idea.ID()]; exists {
		return pkgerrors.NewConflictError("idea already exists")
	}
	r.ideas[idea.ID()] = idea
	r.byTitle[idea.TitleID()] = append(r.byTitle[idea.TitleID()], idea)
	return nil
}

func (r *IdeaRepository) GetByID(ctx context.Context, id valueobjects.IdeaID) (*entities.Idea, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idea, ok := r.ideas[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("idea")
	}
	return idea, nil
}

// ListByTitle returns ideas newest first. Insertion order breaks timestamp ties.
func (r *IdeaRepository) ListByTitle(ctx context.Context, titleID valueobjects.TitleID) ([]*entities.Idea, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byTitle[titleID]
	out := make([]*entities.Idea, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// PaintingRepository is an in-memory ports.PaintingRepository. It stores
// snapshots so callers never share a mutable entity with the store.
type PaintingRepository struct {
	mu        sync.Mutex
	paintings map[valueobjects.PaintingID]entities.PaintingSnapshot
	order     map[valueobjects.PaintingID]int
	seq       int
}

func NewPaintingRepository() *PaintingRepository {
	return &PaintingRepository{
		paintings: make(map[valueobjects.PaintingID]entities.PaintingSnapshot),
		order:     make(map[valueobjects.PaintingID]int),
	}
}

func (r *PaintingRepository) Save(ctx context.Context, painting *entities.Painting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.paintings[painting.ID()]; exists {
		return pkgerrors.NewConflictError("painting already exists")
	}
	r.seq++
	r.order[painting.ID()] = r.seq
	r.paintings[painting.ID()] = painting.Snapshot()
	return nil
}

func (r *PaintingRepository) GetByID(ctx context.Context, id valueobjects.PaintingID) (*entities.Painting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.paintings[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("painting")
	}
	return entities.ReconstructPainting(snap), nil
}

// ListByTitle returns paintings newest first by createdAt. A retried painting
// has a fresh createdAt and moves to the front.
func (r *PaintingRepository) ListByTitle(ctx context.Context, titleID valueobjects.TitleID) ([]*entities.Painting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snaps []entities.PaintingSnapshot
	for _, s := range r.paintings {
		if s.TitleID == titleID {
			snaps = append(snaps, s)
		}
	}
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return r.order[snaps[i].ID] > r.order[snaps[j].ID]
	})
	out := make([]*entities.Painting, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, entities.ReconstructPainting(s))
	}
	return out, nil
}

func (r *PaintingRepository) Update(ctx context.Context, painting *entities.Painting, expected valueobjects.PaintingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.paintings[painting.ID()]
	if !ok {
		return pkgerrors.NewNotFoundError("painting")
	}
	if current.Status != expected {
		return ports.ErrStatusMismatch
	}
	r.paintings[painting.ID()] = painting.Snapshot()
	return nil
}

// ReferenceRepository is an in-memory ports.ReferenceRepository.
type ReferenceRepository struct {
	mu   sync.RWMutex
	refs []*entities.Reference
}

func NewReferenceRepository() *ReferenceRepository {
	return &ReferenceRepository{}
}

func (r *ReferenceRepository) Save(ctx context.Context, ref *entities.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
	return nil
}

func (r *ReferenceRepository) ListForGeneration(ctx context.Context, titleID valueobjects.TitleID, userID string) ([]*entities.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Reference
	for _, ref := range r.refs {
		switch {
		case ref.IsGlobal() && ref.UserID() == userID:
			out = append(out, ref)
		case !ref.IsGlobal() && ref.TitleID() == titleID:
			out = append(out, ref)
		}
	}
	return out, nil
}

func (r *ReferenceRepository) GetMany(ctx context.Context, ids []valueobjects.ReferenceID) ([]*entities.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[valueobjects.ReferenceID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*entities.Reference
	for _, ref := range r.refs {
		if _, ok := want[ref.ID()]; ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

var (
	_ ports.TitleRepository     = (*TitleRepository)(nil)
	_ ports.IdeaRepository      = (*IdeaRepository)(nil)
	_ ports.PaintingRepository  = (*PaintingRepository)(nil)
	_ ports.ReferenceRepository = (*ReferenceRepository)(nil)
)
