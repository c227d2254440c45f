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

// bookMutable is the set of columns Update accepts. guid and author_id are
// identity and never change through an update.
var bookMutable = map[string]bool{
	"title":       true,
	"author_name": true,
	"publisher":   true,
	"isbn":        true,
	"language":    true,
	"page_count":  true,
	"rating":      true,
	"image_small": true,
	"image_large": true,
	"published":   true,
	"description": true,
	"link":        true,
	"api_link":    true,
	"provider":    true,
	"status":      true,
}

// BookService manages books.
type BookService struct {
	*store[models.Book, *models.Book]
}

// NewBookService creates a book service emitting on bus.Books.
func NewBookService(db *gorm.DB, bus *events.Bus, log *logger.Logger) *BookService {
	return &BookService{store: &store[models.Book, *models.Book]{
		kind:    "book",
		db:      db,
		repo:    database.NewRepository[models.Book](db),
		hub:     bus.Books,
		log:     log.Component("books"),
		mutable: bookMutable,
		expand: map[string]string{
			"author":   "Author",
			"releases": "Releases",
		},
		fields: bookFields,
		check:  checkBookPatch,
	}}
}

// Create validates and persists a new book.
func (s *BookService) Create(ctx context.Context, b *models.Book) error {
	switch {
	case strings.TrimSpace(b.Title) == "":
		return validationError("book title is required")
	case b.GUID == "":
		return validationError("book guid is required")
	case b.AuthorID == "":
		return validationError("book author is required")
	}
	if b.Status != "" && !b.Status.Valid() {
		return validationError("invalid book status %q", b.Status)
	}
	return s.create(ctx, b, func() (bool, error) {
		n, err := s.repo.Count(ctx, database.Where{"guid": b.GUID})
		return n > 0, err
	})
}

// FindByAuthor returns every book owned by authorID.
func (s *BookService) FindByAuthor(ctx context.Context, authorID string) ([]models.Book, error) {
	return s.repo.Find(ctx, database.Where{"author_id": authorID}, database.OrderBy("created_at asc"))
}

// Destroy deletes a book and its releases.
func (s *BookService) Destroy(ctx context.Context, id string) error {
	book, err := s.MustGet(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := database.NewRepository[models.Release](tx).Destroy(ctx, database.Where{"book_id": id}); err != nil {
			return err
		}
		_, err := s.repo.WithTx(tx).Destroy(ctx, database.Where{"id": id})
		return err
	})
	if err != nil {
		return WithEntity(fmt.Errorf("delete: %w", err), s.kind, id)
	}
	s.hub.Publish(ctx, events.Event[*models.Book]{Op: events.Removed, Entity: book})
	return nil
}

func checkBookPatch(patch map[string]interface{}) error {
	if v, ok := patch["status"]; ok {
		if !models.BookStatus(fmt.Sprint(v)).Valid() {
			return validationError("invalid book status %q", v)
		}
		patch["status"] = models.BookStatus(fmt.Sprint(v))
	}
	if v, ok := patch["title"]; ok && strings.TrimSpace(fmt.Sprint(v)) == "" {
		return validationError("book title cannot be empty")
	}
	return nil
}

func bookFields(b *models.Book) map[string]interface{} {
	return map[string]interface{}{
		"guid":        b.GUID,
		"title":       b.Title,
		"author_name": b.AuthorName,
		"publisher":   b.Publisher,
		"isbn":        b.ISBN,
		"language":    b.Language,
		"page_count":  b.PageCount,
		"rating":      b.Rating,
		"image_small": b.ImageSmall,
		"image_large": b.ImageLarge,
		"published":   b.Published,
		"description": b.Description,
		"link":        b.Link,
		"api_link":    b.APILink,
		"provider":    b.Provider,
		"status":      b.Status,
		"author_id":   b.AuthorID,
	}
}
