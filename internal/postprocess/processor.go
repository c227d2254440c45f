// Package postprocess moves completed downloads from the staging directory
// into the library and marks their books downloaded.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/database"
	"github.com/bookworm-app/bookworm/internal/library"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/metrics"
	"github.com/bookworm-app/bookworm/internal/models"
	"github.com/bookworm-app/bookworm/internal/notify"
	"github.com/bookworm-app/bookworm/internal/opf"
)

const defaultPerm os.FileMode = 0o755

// Options configure a Processor.
type Options struct {
	StagingDir   string
	LibraryDir   string
	Template     string
	KeepOriginal bool
	Perm         os.FileMode
	WriteOPF     bool
	OPFName      string
}

// OptionsFromConfig converts the post-processor config section.
func OptionsFromConfig(cfg config.PostProcessorConfig) (Options, error) {
	perm := defaultPerm
	if cfg.DirectoryPermissions != "" {
		p, err := config.ParsePermissions(cfg.DirectoryPermissions)
		if err != nil {
			return Options{}, err
		}
		perm = p
	}
	return Options{
		StagingDir:   cfg.StagingDir,
		LibraryDir:   cfg.LibraryDir,
		Template:     cfg.Template,
		KeepOriginal: cfg.KeepOriginal,
		Perm:         perm,
		WriteOPF:     cfg.WriteOPF,
		OPFName:      cfg.OPFName,
	}, nil
}

// Processor matches staged download directories to snatched releases.
type Processor struct {
	fs       afero.Fs
	books    *library.BookService
	releases *library.ReleaseService
	notifier notify.Notifier
	log      *logger.Logger

	mu   sync.RWMutex
	opts Options

	// run serializes passes
	run sync.Mutex
}

// New creates a processor working on fs.
func New(fs afero.Fs, books *library.BookService, releases *library.ReleaseService, n notify.Notifier, opts Options, log *logger.Logger) *Processor {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = logger.Get()
	}
	return &Processor{
		fs:       fs,
		books:    books,
		releases: releases,
		notifier: n,
		log:      log.Component("postprocess"),
		opts:     opts,
	}
}

// SetOptions replaces the options used by later passes.
func (p *Processor) SetOptions(opts Options) {
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
}

func (p *Processor) options() Options {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o := p.opts
	if o.Perm == 0 {
		o.Perm = defaultPerm
	}
	if o.OPFName == "" {
		o.OPFName = "metadata.opf"
	}
	return o
}

type candidate struct {
	dir     string
	release *models.Release
}

// Process runs one pass over the staging directory and returns the
// releases it moved into the library. Directories without a release tag,
// without a matching release, or whose book is not snatched are left
// alone. A snatched release whose book is already downloaded was cut short
// by an earlier failure and is finished. A failure on one release does not stop the others; all failures
// are returned joined.
func (p *Processor) Process(ctx context.Context) ([]models.Release, error) {
	p.run.Lock()
	defer p.run.Unlock()

	opts := p.options()
	if opts.StagingDir == "" || opts.LibraryDir == "" {
		return nil, fmt.Errorf("postprocess: staging and library directories must be configured")
	}

	found, err := p.scan(ctx, opts.StagingDir)
	if err != nil {
		p.log.Error("Failed to scan staging directory", map[string]interface{}{
			"staging_dir": opts.StagingDir,
			"error":       err.Error(),
		})
		return nil, err
	}

	var (
		done []models.Release
		errs []error
	)
	for _, c := range found {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		book := c.release.Book
		if !pending(c.release, book) {
			p.log.Debug("Book is not snatched, leaving download in place", map[string]interface{}{
				"release_id": c.release.ID,
				"dir":        c.dir,
			})
			continue
		}
		release, err := p.processOne(ctx, opts, c.dir, c.release, book)
		if err != nil {
			metrics.PostProcessFailures.Inc()
			p.log.Error("Failed to post-process download", map[string]interface{}{
				"release_id": c.release.ID,
				"dir":        c.dir,
				"error":      err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		done = append(done, *release)
	}

	if len(done) > 0 {
		p.log.Info("Post-processing finished", map[string]interface{}{
			"processed": len(done),
			"failed":    len(errs),
		})
	}
	return done, errors.Join(errs...)
}

func pending(r *models.Release, book *models.Book) bool {
	switch {
	case book == nil:
		return false
	case book.Status == models.BookSnatched:
		return true
	default:
		return book.Status == models.BookDownloaded && r.Status == models.ReleaseSnatched
	}
}

// scan lists staged directories that carry a release tag matching a stored
// release, in name order.
func (p *Processor) scan(ctx context.Context, staging string) ([]candidate, error) {
	entries, err := afero.ReadDir(p.fs, staging)
	if errors.Is(err, os.ErrNotExist) {
		p.log.Debug("Staging directory does not exist yet", map[string]interface{}{"staging_dir": staging})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read staging directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		guid := MatchGUID(entry.Name())
		if guid == "" {
			continue
		}
		release, err := p.releases.FindOne(ctx, database.Where{"guid": guid}, database.Preload("Book.Author"))
		if err != nil {
			return nil, fmt.Errorf("look up release %s: %w", guid, err)
		}
		if release == nil {
			p.log.Debug("No release for staged directory", map[string]interface{}{"dir": entry.Name(), "guid": guid})
			continue
		}
		release.Directory = filepath.Join(staging, entry.Name())
		out = append(out, candidate{dir: release.Directory, release: release})
	}
	return out, nil
}

// processOne moves one download. The book is marked downloaded before the
// release, and the source is removed only once both records are updated, so
// an interrupted move is picked up again by the next pass.
func (p *Processor) processOne(ctx context.Context, opts Options, src string, release *models.Release, book *models.Book) (*models.Release, error) {
	var authorName string
	if book.Author != nil {
		authorName = book.Author.Name
	}
	rel := Expand(opts.Template, TokensFor(book, authorName))
	if rel == "" || rel == "." {
		rel = release.GUID
	}
	dest := filepath.Join(opts.LibraryDir, filepath.FromSlash(rel))

	if err := p.fs.MkdirAll(dest, opts.Perm); err != nil {
		return nil, fmt.Errorf("create %s: %w", dest, err)
	}
	if err := copyTree(p.fs, src, dest, opts.Perm); err != nil {
		return nil, fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}
	if opts.WriteOPF {
		if err := p.writeOPF(filepath.Join(dest, opts.OPFName), book); err != nil {
			return nil, err
		}
	}
	updatedBook := book
	if book.Status != models.BookDownloaded {
		b, err := p.books.Update(ctx, book.ID, map[string]interface{}{"status": models.BookDownloaded})
		if err != nil {
			return nil, err
		}
		updatedBook = b
	}
	updated, err := p.releases.Update(ctx, release.ID, map[string]interface{}{
		"status":    models.ReleaseDownloaded,
		"directory": dest,
	})
	if err != nil {
		return nil, err
	}
	updated.Book = updatedBook

	if !opts.KeepOriginal {
		if err := p.fs.RemoveAll(src); err != nil {
			p.log.Warn("Failed to remove processed download", map[string]interface{}{
				"release_id": release.ID,
				"dir":        src,
				"error":      err.Error(),
			})
		}
	}

	p.releases.Processed(ctx, updated)
	metrics.ReleasesProcessed.Inc()
	p.log.Info("Moved download into library", map[string]interface{}{
		"release_id": updated.ID,
		"title":      book.Title,
		"dest":       dest,
	})
	p.notifier.Notify(ctx, notify.TriggerDownloaded, notify.Payload{Book: updatedBook, Release: updated})
	return updated, nil
}

func (p *Processor) writeOPF(path string, book *models.Book) error {
	data, err := opf.Marshal(book)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(p.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// copyTree copies the contents of src into dest, creating directories with
// perm and keeping file modes.
func copyTree(fs afero.Fs, src, dest string, perm os.FileMode) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, perm)
		}
		return copyFile(fs, path, target, info.Mode().Perm())
	})
}

func copyFile(fs afero.Fs, src, dest string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
