package library

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/bookworm-app/bookworm/internal/database"
	"github.com/bookworm-app/bookworm/internal/events"
	"github.com/bookworm-app/bookworm/internal/logger"
)

// entity is the shape shared by every persisted model.
type entity[T any] interface {
	*T
	GetID() string
}

// store holds the machinery common to the entity services: masked updates,
// change detection, expansion and event emission.
type store[T any, P entity[T]] struct {
	kind    string
	db      *gorm.DB
	repo    *database.Repository[T]
	hub     *events.Hub[P]
	log     *logger.Logger
	mutable map[string]bool
	// expand maps public expansion names to gorm associations
	expand map[string]string
	fields func(P) map[string]interface{}
	check  func(patch map[string]interface{}) error
}

func (s *store[T, P]) preloads(expand []string) ([]database.QueryOption, error) {
	var assoc []string
	for _, e := range expand {
		a, ok := s.expand[strings.ToLower(strings.TrimSpace(e))]
		if !ok {
			return nil, validationError("%s cannot expand %q", s.kind, e)
		}
		assoc = append(assoc, a)
	}
	if len(assoc) == 0 {
		return nil, nil
	}
	return []database.QueryOption{database.Preload(assoc...)}, nil
}

// Get returns the entity with id, or nil when it does not exist.
func (s *store[T, P]) Get(ctx context.Context, id string, expand ...string) (P, error) {
	if id == "" {
		return nil, validationError("%s id is required", s.kind)
	}
	opts, err := s.preloads(expand)
	if err != nil {
		return nil, err
	}
	got, err := s.repo.Get(ctx, id, opts...)
	if err != nil {
		return nil, WithEntity(err, s.kind, id)
	}
	return P(got), nil
}

// MustGet is Get that reports a missing entity as ErrNotFound.
func (s *store[T, P]) MustGet(ctx context.Context, id string, expand ...string) (P, error) {
	got, err := s.Get(ctx, id, expand...)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, notFoundError(s.kind, id)
	}
	return got, nil
}

// Find returns every entity matching where.
func (s *store[T, P]) Find(ctx context.Context, where database.Where, opts ...database.QueryOption) ([]T, error) {
	return s.repo.Find(ctx, where, opts...)
}

// FindOne returns the first entity matching where, or nil.
func (s *store[T, P]) FindOne(ctx context.Context, where database.Where, opts ...database.QueryOption) (P, error) {
	got, err := s.repo.FindOne(ctx, where, opts...)
	return P(got), err
}

// Count returns the number of entities matching where.
func (s *store[T, P]) Count(ctx context.Context, where database.Where) (int64, error) {
	return s.repo.Count(ctx, where)
}

// Update applies the allowed subset of patch to the entity with id and emits
// an update event listing the applied keys. Keys outside the allow-list are
// dropped silently.
func (s *store[T, P]) Update(ctx context.Context, id string, patch map[string]interface{}) (P, error) {
	if id == "" {
		return nil, validationError("%s id is required", s.kind)
	}
	prev, err := s.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	masked := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		if s.mutable[k] {
			masked[k] = v
		}
	}
	if len(masked) == 0 {
		return prev, nil
	}
	if s.check != nil {
		if err := s.check(masked); err != nil {
			return nil, WithEntity(err, s.kind, id)
		}
	}

	if _, err := s.repo.UpdateWhere(ctx, database.Where{"id": id}, masked); err != nil {
		return nil, conflictError(err, s.kind, id)
	}
	cur, err := s.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Entity updated", map[string]interface{}{
		"entity": s.kind,
		"id":     id,
		"fields": sortedKeys(masked),
	})
	s.hub.Publish(ctx, events.Event[P]{Op: events.Updated, Entity: cur, Previous: prev, Changed: sortedKeys(masked)})
	return cur, nil
}

// Save writes every field of e without masking and emits an update event
// when any column changed.
func (s *store[T, P]) Save(ctx context.Context, e P) error {
	prev, err := s.MustGet(ctx, e.GetID())
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, (*T)(e)); err != nil {
		return conflictError(err, s.kind, e.GetID())
	}

	changed := diff(s.fields(prev), s.fields(e))
	if len(changed) > 0 {
		s.hub.Publish(ctx, events.Event[P]{Op: events.Updated, Entity: e, Previous: prev, Changed: changed})
	}
	return nil
}

func (s *store[T, P]) create(ctx context.Context, e P, guidTaken func() (bool, error)) error {
	taken, err := guidTaken()
	if err != nil {
		return WithEntity(err, s.kind, "")
	}
	if taken {
		return WithEntity(fmt.Errorf("%w: guid already exists", ErrConflict), s.kind, "")
	}
	if err := s.repo.Create(ctx, (*T)(e)); err != nil {
		return conflictError(err, s.kind, e.GetID())
	}
	s.hub.Publish(ctx, events.Event[P]{Op: events.Created, Entity: e})
	return nil
}

func diff(before, after map[string]interface{}) []string {
	var changed []string
	for k, v := range after {
		if !reflect.DeepEqual(before[k], v) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
