package library

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bookworm-app/bookworm/internal/database"
	"github.com/bookworm-app/bookworm/internal/events"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// ReleaseService manages releases.
type ReleaseService struct {
	*store[models.Release, *models.Release]
}

// NewReleaseService creates a release service emitting on bus.Releases.
func NewReleaseService(db *gorm.DB, bus *events.Bus, log *logger.Logger) *ReleaseService {
	return &ReleaseService{store: &store[models.Release, *models.Release]{
		kind: "release",
		db:   db,
		repo: database.NewRepository[models.Release](db),
		hub:  bus.Releases,
		log:  log.Component("releases"),
		mutable: map[string]bool{
			"status":    true,
			"directory": true,
			"title":     true,
		},
		expand: map[string]string{
			"book":        "Book",
			"book.author": "Book.Author",
		},
		fields: releaseFields,
		check:  checkReleasePatch,
	}}
}

// Create validates and persists a new release.
func (s *ReleaseService) Create(ctx context.Context, r *models.Release) error {
	switch {
	case r.GUID == "":
		return validationError("release guid is required")
	case r.BookID == "":
		return validationError("release book is required")
	}
	if r.Status != "" && !r.Status.Valid() {
		return validationError("invalid release status %q", r.Status)
	}
	return s.create(ctx, r, func() (bool, error) {
		n, err := s.repo.Count(ctx, database.Where{"guid": r.GUID})
		return n > 0, err
	})
}

// FindByBook returns the releases of bookID, most recently updated first.
func (s *ReleaseService) FindByBook(ctx context.Context, bookID string) ([]models.Release, error) {
	return s.repo.Find(ctx, database.Where{"book_id": bookID}, database.OrderBy("updated_at desc"))
}

// KnownGUIDs returns which of guids are already stored.
func (s *ReleaseService) KnownGUIDs(ctx context.Context, guids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(guids) == 0 {
		return known, nil
	}
	found, err := s.repo.Find(ctx, database.Where{"guid": guids})
	if err != nil {
		return nil, err
	}
	for _, r := range found {
		known[r.GUID] = true
	}
	return known, nil
}

// Destroy deletes a release.
func (s *ReleaseService) Destroy(ctx context.Context, id string) error {
	release, err := s.MustGet(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.repo.Destroy(ctx, database.Where{"id": id}); err != nil {
		return WithEntity(err, s.kind, id)
	}
	s.hub.Publish(ctx, events.Event[*models.Release]{Op: events.Removed, Entity: release})
	return nil
}

// Processed announces that a release finished post-processing.
func (s *ReleaseService) Processed(ctx context.Context, r *models.Release) {
	s.hub.Publish(ctx, events.Event[*models.Release]{Op: events.Processed, Entity: r, Changed: []string{"status", "directory"}})
}

func checkReleasePatch(patch map[string]interface{}) error {
	if v, ok := patch["status"]; ok {
		status := models.ReleaseStatus(fmt.Sprint(v))
		if !status.Valid() {
			return validationError("invalid release status %q", v)
		}
		patch["status"] = status
	}
	return nil
}

func releaseFields(r *models.Release) map[string]interface{} {
	return map[string]interface{}{
		"guid":          r.GUID,
		"title":         r.Title,
		"provider_name": r.ProviderName,
		"provider_type": r.ProviderType,
		"link":          r.Link,
		"size":          r.Size,
		"grabs":         r.Grabs,
		"review":        r.Review,
		"status":        r.Status,
		"directory":     r.Directory,
		"book_id":       r.BookID,
	}
}
