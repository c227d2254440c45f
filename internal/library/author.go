package library

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/bookworm-app/bookworm/internal/database"
	"github.com/bookworm-app/bookworm/internal/events"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// AuthorService manages authors.
type AuthorService struct {
	*store[models.Author, *models.Author]
}

// NewAuthorService creates an author service emitting on bus.Authors.
func NewAuthorService(db *gorm.DB, bus *events.Bus, log *logger.Logger) *AuthorService {
	return &AuthorService{store: &store[models.Author, *models.Author]{
		kind: "author",
		db:   db,
		repo: database.NewRepository[models.Author](db),
		hub:  bus.Authors,
		log:  log.Component("authors"),
		mutable: map[string]bool{
			"name":   true,
			"status": true,
		},
		expand: map[string]string{
			"books":          "Books",
			"books.releases": "Books.Releases",
		},
		fields: authorFields,
		check:  checkAuthorPatch,
	}}
}

// AuthorGUID derives the provider scoped guid used for auto-created authors.
func AuthorGUID(provider, name string) string {
	return provider + ":" + strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Create validates and persists a new author. A missing guid is derived
// from the name.
func (s *AuthorService) Create(ctx context.Context, a *models.Author) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return validationError("author name is required")
	}
	if a.Status != "" && a.Status != models.AuthorActive && a.Status != models.AuthorPaused {
		return validationError("invalid author status %q", a.Status)
	}
	if a.GUID == "" {
		provider := a.Provider
		if provider == "" {
			provider = "local"
		}
		a.GUID = AuthorGUID(provider, a.Name)
	}
	return s.create(ctx, a, func() (bool, error) {
		n, err := s.repo.Count(ctx, database.Where{"guid": a.GUID})
		if err != nil || n > 0 {
			return n > 0, err
		}
		n, err = s.repo.Count(ctx, database.Where{"name": a.Name})
		return n > 0, err
	})
}

// FindByName returns the author with exactly name, or nil.
func (s *AuthorService) FindByName(ctx context.Context, name string) (*models.Author, error) {
	return s.FindOne(ctx, database.Where{"name": strings.TrimSpace(name)})
}

// Active returns every author whose books are being tracked.
func (s *AuthorService) Active(ctx context.Context) ([]models.Author, error) {
	return s.repo.Find(ctx, database.Where{"status": models.AuthorActive}, database.OrderBy("name asc"))
}

// Destroy deletes an author together with its books and their releases.
func (s *AuthorService) Destroy(ctx context.Context, id string) error {
	author, err := s.MustGet(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := database.NewRepository[models.Book](tx)
		owned, err := books.Find(ctx, database.Where{"author_id": id})
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			ids := make([]string, len(owned))
			for i, b := range owned {
				ids[i] = b.ID
			}
			if _, err := database.NewRepository[models.Release](tx).Destroy(ctx, database.Where{"book_id": ids}); err != nil {
				return err
			}
			if _, err := books.Destroy(ctx, database.Where{"author_id": id}); err != nil {
				return err
			}
		}
		_, err = s.repo.WithTx(tx).Destroy(ctx, database.Where{"id": id})
		return err
	})
	if err != nil {
		return WithEntity(fmt.Errorf("delete: %w", err), s.kind, id)
	}

	s.log.Info("Author deleted", map[string]interface{}{"author_id": id, "name": author.Name})
	s.hub.Publish(ctx, events.Event[*models.Author]{Op: events.Removed, Entity: author})
	return nil
}

func checkAuthorPatch(patch map[string]interface{}) error {
	if v, ok := patch["status"]; ok {
		status := models.AuthorStatus(fmt.Sprint(v))
		if status != models.AuthorActive && status != models.AuthorPaused {
			return validationError("invalid author status %q", v)
		}
		patch["status"] = status
	}
	if v, ok := patch["name"]; ok && strings.TrimSpace(fmt.Sprint(v)) == "" {
		return validationError("author name cannot be empty")
	}
	return nil
}

func authorFields(a *models.Author) map[string]interface{} {
	return map[string]interface{}{
		"guid":     a.GUID,
		"name":     a.Name,
		"status":   a.Status,
		"provider": a.Provider,
	}
}
