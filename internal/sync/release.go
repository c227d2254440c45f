package sync

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bookworm-app/bookworm/internal/database"
	"github.com/bookworm-app/bookworm/internal/metrics"
	"github.com/bookworm-app/bookworm/internal/models"
	"github.com/bookworm-app/bookworm/internal/notify"
)

// JobTag wraps a release guid in the suffix that ties a download job, and
// the directory it completes into, back to the release.
func JobTag(guid string) string {
	return ".bw(" + guid + ")"
}

var unsafeJobChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// JobName is the download client job name for release of book.
func JobName(book *models.Book, release *models.Release) string {
	title := release.Title
	if book != nil && book.Title != "" {
		title = book.Title
	}
	safe := strings.Trim(unsafeJobChars.ReplaceAllString(title, "."), ".")
	if safe == "" {
		safe = "book"
	}
	return safe + JobTag(release.GUID)
}

// GetRelease chooses the release to download for book. When book is
// exactly wanted and its most recently updated release is already wanted,
// snatched or downloaded, that release is retried. Otherwise the indexers
// are searched with the title and author, results already known are
// dropped, and the first remaining one is stored as the single wanted
// release. It returns nil when nothing was found.
func (e *Engine) GetRelease(ctx context.Context, book *models.Book) (*models.Release, error) {
	if book == nil {
		return nil, nil
	}
	known, err := e.releases.FindByBook(ctx, book.ID)
	if err != nil {
		return nil, fmt.Errorf("load releases of %s: %w", book.ID, err)
	}

	if len(known) > 0 && book.Status == models.BookWanted {
		switch newest := known[0]; newest.Status {
		case models.ReleaseSnatched, models.ReleaseDownloaded, models.ReleaseWanted:
			e.log.Debug("Retrying previous release", map[string]interface{}{
				"book_id":    book.ID,
				"release_id": newest.ID,
				"status":     string(newest.Status),
			})
			return &newest, nil
		}
	}

	if e.indexer == nil {
		return nil, fmt.Errorf("no release indexer configured")
	}
	query := strings.TrimSpace(book.Title + " " + book.AuthorName)
	found, err := e.indexer.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search releases for %q: %w", query, err)
	}

	seen := make(map[string]bool, len(known))
	for _, r := range known {
		seen[r.GUID] = true
	}
	guids := make([]string, 0, len(found))
	for _, r := range found {
		guids = append(guids, r.GUID)
	}
	stored, err := e.releases.KnownGUIDs(ctx, guids)
	if err != nil {
		return nil, err
	}

	for _, candidate := range found {
		if seen[candidate.GUID] || stored[candidate.GUID] {
			continue
		}
		release := candidate
		release.ID = ""
		release.BookID = book.ID
		release.Book = nil
		release.Status = models.ReleaseWanted

		if err := e.createWanted(ctx, &release); err != nil {
			return nil, err
		}
		e.log.Info("Found release", map[string]interface{}{
			"book_id":  book.ID,
			"title":    book.Title,
			"release":  release.Title,
			"guid":     release.GUID,
			"provider": release.ProviderName,
		})
		return &release, nil
	}

	e.log.Info("No new release found", map[string]interface{}{
		"book_id": book.ID,
		"query":   query,
		"results": len(found),
	})
	return nil, nil
}

// createWanted demotes every wanted release and stores release as the only
// wanted one.
func (e *Engine) createWanted(ctx context.Context, release *models.Release) error {
	e.wantedMu.Lock()
	defer e.wantedMu.Unlock()

	if err := e.demoteWanted(ctx, ""); err != nil {
		return err
	}
	if err := e.releases.Create(ctx, release); err != nil {
		return fmt.Errorf("store release %s: %w", release.GUID, err)
	}
	return nil
}

// demoteWanted flips every wanted release except keepID to ignored.
// Callers hold wantedMu.
func (e *Engine) demoteWanted(ctx context.Context, keepID string) error {
	wanted, err := e.releases.Find(ctx, database.Where{"status": models.ReleaseWanted})
	if err != nil {
		return fmt.Errorf("load wanted releases: %w", err)
	}
	for _, r := range wanted {
		if r.ID == keepID {
			continue
		}
		if _, err := e.releases.Update(ctx, r.ID, map[string]interface{}{"status": models.ReleaseIgnored}); err != nil {
			return fmt.Errorf("demote release %s: %w", r.ID, err)
		}
	}
	return nil
}

// DownloadRelease submits release to the download client and marks both it
// and book snatched. A nil release is a no-op.
func (e *Engine) DownloadRelease(ctx context.Context, book *models.Book, release *models.Release) error {
	if release == nil {
		return nil
	}
	if book == nil {
		return fmt.Errorf("download release %s: book is required", release.ID)
	}
	if e.downloader == nil {
		return fmt.Errorf("no download client configured")
	}

	name := JobName(book, release)
	id, err := e.downloader.Add(ctx, release.Link, e.options().Category, name)
	if err != nil {
		return fmt.Errorf("submit release %s: %w", release.GUID, err)
	}

	r, err := e.releases.Update(ctx, release.ID, map[string]interface{}{"status": models.ReleaseSnatched})
	if err != nil {
		return err
	}
	*release = *r
	b, err := e.books.Update(ctx, book.ID, map[string]interface{}{"status": models.BookSnatched})
	if err != nil {
		return err
	}
	*book = *b

	metrics.ReleasesSnatched.Inc()
	e.log.Info("Release snatched", map[string]interface{}{
		"book_id":  book.ID,
		"title":    book.Title,
		"release":  release.Title,
		"job":      name,
		"queue_id": id,
	})
	e.notifier.Notify(ctx, notify.TriggerSnatched, notify.Payload{Book: book, Release: release})
	return nil
}

// searchBook runs release selection and dispatch for one book, serialized
// with every other reaction on the same book. It re-reads the book so a
// status that changed while waiting is honoured.
func (e *Engine) searchBook(ctx context.Context, bookID string) (*models.Release, error) {
	unlock := e.locks.Lock(bookID)
	defer unlock()

	book, err := e.books.Get(ctx, bookID)
	if err != nil || book == nil {
		return nil, err
	}
	if !book.Status.IsWanted() {
		return nil, nil
	}

	release, err := e.GetRelease(ctx, book)
	if err != nil || release == nil {
		return nil, err
	}
	if err := e.DownloadRelease(ctx, book, release); err != nil {
		return nil, err
	}
	return release, nil
}

// SearchWantedBooks looks for and dispatches a release for every wanted
// book. Books are handled concurrently; a failing book is logged and does
// not stop the others. It returns the releases that were snatched.
func (e *Engine) SearchWantedBooks(ctx context.Context) ([]models.Release, error) {
	books, err := e.books.Find(ctx, database.Where{
		"status": []models.BookStatus{models.BookWanted, models.BookWantedNew},
	}, database.OrderBy("updated_at asc"))
	if err != nil {
		return nil, fmt.Errorf("load wanted books: %w", err)
	}

	e.log.Info("Searching wanted books", map[string]interface{}{"books": len(books)})

	var (
		mu       sync.Mutex
		snatched []models.Release
	)
	g, gctx := errgroup.WithContext(ctx)
	if p := e.options().Parallel; p > 0 {
		g.SetLimit(p)
	}
	for _, b := range books {
		b := b
		g.Go(func() error {
			release, err := e.searchBook(gctx, b.ID)
			if err != nil {
				e.log.Warn("Failed to acquire book", map[string]interface{}{
					"book_id": b.ID,
					"title":   b.Title,
					"error":   err.Error(),
				})
				return nil
			}
			if release != nil {
				mu.Lock()
				snatched = append(snatched, *release)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return snatched, err
	}
	return snatched, ctx.Err()
}
