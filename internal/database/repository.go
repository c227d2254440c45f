package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicate is returned when a write violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// Where is an equality filter keyed by column name. Slice values match any
// element (SQL IN).
type Where map[string]interface{}

// QueryOption tunes a read.
type QueryOption func(*gorm.DB) *gorm.DB

// Preload eager-loads the named associations (e.g. "Books.Releases").
func Preload(associations ...string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		for _, a := range associations {
			tx = tx.Preload(a)
		}
		return tx
	}
}

// OrderBy sorts the result, e.g. OrderBy("updated_at desc").
func OrderBy(order string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB { return tx.Order(order) }
}

// Limit caps the number of rows returned.
func Limit(n int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB { return tx.Limit(n) }
}

// Not excludes rows matching the filter.
func Not(where Where) QueryOption {
	return func(tx *gorm.DB) *gorm.DB { return tx.Not(map[string]interface{}(where)) }
}

// Repository provides CRUD for one model type.
type Repository[T any] struct {
	db *gorm.DB
}

// NewRepository creates a repository backed by db.
func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	return &Repository[T]{db: tx}
}

// DB returns the handle the repository uses.
func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

func (r *Repository[T]) query(ctx context.Context, where Where, opts []QueryOption) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(new(T))
	if len(where) > 0 {
		tx = tx.Where(map[string]interface{}(where))
	}
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}

// Create inserts entity. Associations are not written.
func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(entity).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Save writes every column of entity. Associations are not written.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(entity).Error; err != nil {
		return translate(err)
	}
	return nil
}

// UpdateWhere sets columns on every row matching where and returns the
// number of rows changed.
func (r *Repository[T]) UpdateWhere(ctx context.Context, where Where, columns map[string]interface{}, opts ...QueryOption) (int64, error) {
	res := r.query(ctx, where, opts).Updates(columns)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Find returns every row matching where.
func (r *Repository[T]) Find(ctx context.Context, where Where, opts ...QueryOption) ([]T, error) {
	var out []T
	if err := r.query(ctx, where, opts).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return out, nil
}

// FindOne returns the first row matching where, or nil when there is none.
func (r *Repository[T]) FindOne(ctx context.Context, where Where, opts ...QueryOption) (*T, error) {
	var out T
	err := r.query(ctx, where, opts).Limit(1).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find one: %w", err)
	}
	return &out, nil
}

// Get returns the row with the given primary key, or nil.
func (r *Repository[T]) Get(ctx context.Context, id string, opts ...QueryOption) (*T, error) {
	return r.FindOne(ctx, Where{"id": id}, opts...)
}

// Count returns the number of rows matching where.
func (r *Repository[T]) Count(ctx context.Context, where Where, opts ...QueryOption) (int64, error) {
	var n int64
	if err := r.query(ctx, where, opts).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Destroy deletes every row matching where. An empty filter is refused.
func (r *Repository[T]) Destroy(ctx context.Context, where Where) (int64, error) {
	if len(where) == 0 {
		return 0, errors.New("destroy: refusing to delete without a filter")
	}
	res := r.db.WithContext(ctx).Where(map[string]interface{}(where)).Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("destroy: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// translate maps driver specific unique violations onto ErrDuplicate.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
