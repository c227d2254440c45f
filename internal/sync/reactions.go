package sync

import (
	"context"

	"github.com/bookworm-app/bookworm/internal/events"
	"github.com/bookworm-app/bookworm/internal/models"
)

// onBookEvent reacts to book status updates. wanted and wanted_new start a
// release search; skipped and excluded release every candidate of the book.
func (e *Engine) onBookEvent(ctx context.Context, ev events.Event[*models.Book]) {
	if ev.Op != events.Updated || !ev.Has("status") || ev.Entity == nil {
		return
	}
	book := ev.Entity
	log := e.log.With(map[string]interface{}{
		"book_id": book.ID,
		"title":   book.Title,
		"status":  string(book.Status),
	})

	switch book.Status {
	case models.BookWanted, models.BookWantedNew:
		release, err := e.searchBook(ctx, book.ID)
		if err != nil {
			log.Warn("Release search failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if release == nil {
			log.Debug("No release dispatched")
		}
	case models.BookSkipped, models.BookExcluded:
		if err := e.resetReleases(ctx, book.ID); err != nil {
			log.Warn("Failed to reset releases", map[string]interface{}{"error": err.Error()})
		}
	}
}

// resetReleases returns the wanted and snatched releases of bookID to
// available. downloaded and ignored are terminal and stay put.
func (e *Engine) resetReleases(ctx context.Context, bookID string) error {
	unlock := e.locks.Lock(bookID)
	defer unlock()

	releases, err := e.releases.FindByBook(ctx, bookID)
	if err != nil {
		return err
	}
	for _, r := range releases {
		if r.Status != models.ReleaseWanted && r.Status != models.ReleaseSnatched {
			continue
		}
		if _, err := e.releases.Update(ctx, r.ID, map[string]interface{}{"status": models.ReleaseAvailable}); err != nil {
			return err
		}
	}
	return nil
}

// onReleaseEvent reacts to a release being marked wanted: every other
// wanted release is demoted, then this one is downloaded.
func (e *Engine) onReleaseEvent(ctx context.Context, ev events.Event[*models.Release]) {
	if ev.Op != events.Updated || !ev.Has("status") || ev.Entity == nil {
		return
	}
	if ev.Entity.Status != models.ReleaseWanted {
		return
	}
	log := e.log.With(map[string]interface{}{
		"release_id": ev.Entity.ID,
		"book_id":    ev.Entity.BookID,
	})
	if err := e.wantRelease(ctx, ev.Entity); err != nil {
		log.Warn("Failed to download wanted release", map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) wantRelease(ctx context.Context, r *models.Release) error {
	unlock := e.locks.Lock(r.BookID)
	defer unlock()

	e.wantedMu.Lock()
	err := e.demoteWanted(ctx, r.ID)
	e.wantedMu.Unlock()
	if err != nil {
		return err
	}

	// the release may have moved on while this reaction waited
	release, err := e.releases.Get(ctx, r.ID)
	if err != nil || release == nil || release.Status != models.ReleaseWanted {
		return err
	}
	book, err := e.books.MustGet(ctx, release.BookID)
	if err != nil {
		return err
	}
	return e.DownloadRelease(ctx, book, release)
}
