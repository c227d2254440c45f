package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bookworm-app/bookworm/internal/api/googlebooks"
	"github.com/bookworm-app/bookworm/internal/library"
	"github.com/bookworm-app/bookworm/internal/models"
)

func orEmpty(books []models.Book) []models.Book {
	if books == nil {
		return []models.Book{}
	}
	return books
}

// RefreshAuthor pages the catalog for author's books and merges them with
// mergeData set, so known books pick up catalog corrections. Paused authors
// are skipped.
func (e *Engine) RefreshAuthor(ctx context.Context, author *models.Author) ([]models.Book, error) {
	if author == nil {
		return nil, fmt.Errorf("refresh author: %w: author is required", library.ErrValidation)
	}
	if author.Status != models.AuthorActive {
		e.log.Debug("Skipping paused author", map[string]interface{}{"author": author.Name})
		return nil, nil
	}
	if e.catalog == nil {
		return nil, fmt.Errorf("no catalog configured")
	}

	res, err := e.catalog.PagingQuery(ctx, authorQuery(author.Name))
	if err != nil {
		return nil, library.WithEntity(fmt.Errorf("refresh: %w", err), "author", author.ID)
	}

	unlock := e.locks.Lock("author:" + author.ID)
	defer unlock()

	local, err := e.books.FindByAuthor(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	return e.MergeBooks(ctx, author, orEmpty(local), orEmpty(res.Books), true)
}

// RefreshAuthors refreshes every active author concurrently. A failing
// author is logged and skipped.
func (e *Engine) RefreshAuthors(ctx context.Context) error {
	authors, err := e.authors.Active(ctx)
	if err != nil {
		return fmt.Errorf("load active authors: %w", err)
	}
	e.log.Info("Refreshing authors", map[string]interface{}{"authors": len(authors)})

	g, gctx := errgroup.WithContext(ctx)
	if p := e.options().Parallel; p > 0 {
		g.SetLimit(p)
	}
	for i := range authors {
		a := &authors[i]
		g.Go(func() error {
			if _, err := e.RefreshAuthor(gctx, a); err != nil {
				e.log.Warn("Failed to refresh author", map[string]interface{}{
					"author": a.Name,
					"error":  err.Error(),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// AddAuthor creates an author by name, or returns the existing one.
func (e *Engine) AddAuthor(ctx context.Context, name string) (*models.Author, error) {
	if a, err := e.authors.FindByName(ctx, name); err != nil || a != nil {
		return a, err
	}
	a := &models.Author{Name: name, Provider: googlebooks.ProviderName, Status: models.AuthorActive}
	if err := e.authors.Create(ctx, a); err != nil {
		if errors.Is(err, library.ErrConflict) {
			// created concurrently
			if existing, ferr := e.authors.FindByName(ctx, name); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return a, nil
}

// DiscoverBooks pages the catalog for query, files each result under its
// author, creating authors that are not tracked yet, and merges every
// author's group without touching known books. It returns the merged books
// of every author that had results.
func (e *Engine) DiscoverBooks(ctx context.Context, query string) ([]models.Book, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	res, err := e.catalog.PagingQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", query, err)
	}

	var order []string
	groups := make(map[string][]models.Book)
	for _, b := range res.Books {
		if _, ok := groups[b.AuthorName]; !ok {
			order = append(order, b.AuthorName)
		}
		groups[b.AuthorName] = append(groups[b.AuthorName], b)
	}

	var (
		mu  sync.Mutex
		out []models.Book
	)
	g, gctx := errgroup.WithContext(ctx)
	if p := e.options().Parallel; p > 0 {
		g.SetLimit(p)
	}
	for _, name := range order {
		name, books := name, groups[name]
		g.Go(func() error {
			merged, err := e.discoverAuthor(gctx, name, books)
			if err != nil {
				e.log.Warn("Failed to merge discovered books", map[string]interface{}{
					"author": name,
					"error":  err.Error(),
				})
				return nil
			}
			mu.Lock()
			out = append(out, merged...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	e.log.Info("Discovery finished", map[string]interface{}{
		"query":    query,
		"authors":  len(order),
		"books":    len(out),
		"rejected": len(res.Rejected),
	})
	return out, ctx.Err()
}

func (e *Engine) discoverAuthor(ctx context.Context, name string, books []models.Book) ([]models.Book, error) {
	author, err := e.AddAuthor(ctx, name)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock("author:" + author.ID)
	defer unlock()

	local, err := e.books.FindByAuthor(ctx, author.ID)
	if err != nil {
		return nil, err
	}
	return e.MergeBooks(ctx, author, orEmpty(local), books, false)
}
