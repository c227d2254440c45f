package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthorStatus is the tracking state of an author.
type AuthorStatus string

const (
	AuthorActive AuthorStatus = "active"
	AuthorPaused AuthorStatus = "paused"
)

// BookStatus is the acquisition state of a book.
type BookStatus string

const (
	BookWanted     BookStatus = "wanted"
	BookWantedNew  BookStatus = "wanted_new"
	BookSkipped    BookStatus = "skipped"
	BookDownloaded BookStatus = "downloaded"
	BookSnatched   BookStatus = "snatched"
	BookExcluded   BookStatus = "excluded"
)

// IsWanted reports whether a book in this status should be searched for.
func (s BookStatus) IsWanted() bool {
	return s == BookWanted || s == BookWantedNew
}

// Valid reports whether s is a known book status.
func (s BookStatus) Valid() bool {
	switch s {
	case BookWanted, BookWantedNew, BookSkipped, BookDownloaded, BookSnatched, BookExcluded:
		return true
	}
	return false
}

// ReleaseStatus is the acquisition state of a release.
type ReleaseStatus string

const (
	ReleaseAvailable  ReleaseStatus = "available"
	ReleaseWanted     ReleaseStatus = "wanted"
	ReleaseSnatched   ReleaseStatus = "snatched"
	ReleaseDownloaded ReleaseStatus = "downloaded"
	ReleaseIgnored    ReleaseStatus = "ignored"
)

// Valid reports whether s is a known release status.
func (s ReleaseStatus) Valid() bool {
	switch s {
	case ReleaseAvailable, ReleaseWanted, ReleaseSnatched, ReleaseDownloaded, ReleaseIgnored:
		return true
	}
	return false
}

// Author is a tracked writer. Deleting an author removes its books and
// their releases.
type Author struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	GUID      string       `gorm:"uniqueIndex;size:255;not null" json:"guid"`
	Name      string       `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Status    AuthorStatus `gorm:"size:16;not null;default:active" json:"status"`
	Provider  string       `gorm:"size:64" json:"provider"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	// Score is the relevance of a search hit and is never persisted.
	Score float64 `gorm:"-" json:"score,omitempty"`

	Books []Book `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"books,omitempty"`
}

// BeforeCreate assigns a random id to new authors.
func (a *Author) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AuthorActive
	}
	return nil
}

// GetID returns the primary key.
func (a *Author) GetID() string { return a.ID }

// Book is a single title by an author. GUID is the immutable de-dup key.
type Book struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	GUID        string     `gorm:"uniqueIndex;size:255;not null" json:"guid"`
	Title       string     `gorm:"size:512;not null;index" json:"title"`
	AuthorName  string     `gorm:"size:255" json:"author_name"`
	Publisher   string     `gorm:"size:255" json:"publisher"`
	ISBN        string     `gorm:"size:32" json:"isbn"`
	Language    string     `gorm:"size:16" json:"language"`
	PageCount   int        `json:"page_count"`
	Rating      float64    `json:"rating"`
	ImageSmall  string     `gorm:"size:1024" json:"image_small"`
	ImageLarge  string     `gorm:"size:1024" json:"image_large"`
	Published   string     `gorm:"size:32" json:"published"`
	Description string     `gorm:"type:text" json:"description"`
	Link        string     `gorm:"size:1024" json:"link"`
	APILink     string     `gorm:"size:1024" json:"api_link"`
	Provider    string     `gorm:"size:64" json:"provider"`
	Status      BookStatus `gorm:"size:16;not null;default:skipped;index" json:"status"`
	AuthorID    string     `gorm:"size:36;index" json:"author_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Author   *Author   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Releases []Release `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"releases,omitempty"`
}

// BeforeCreate assigns a random id to new books.
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BookSkipped
	}
	return nil
}

// GetID returns the primary key.
func (b *Book) GetID() string { return b.ID }

// Year returns the four-digit year of the published date, or "".
func (b *Book) Year() string {
	if len(b.Published) >= 4 {
		return b.Published[:4]
	}
	return ""
}

// Release is a downloadable artifact found on an indexer for a book.
type Release struct {
	ID           string        `gorm:"primaryKey;size:36" json:"id"`
	GUID         string        `gorm:"uniqueIndex;size:255;not null" json:"guid"`
	Title        string        `gorm:"size:512" json:"title"`
	ProviderName string        `gorm:"size:128" json:"provider_name"`
	ProviderType string        `gorm:"size:32" json:"provider_type"`
	Link         string        `gorm:"size:2048" json:"link"`
	Size         int64         `json:"size"`
	Grabs        int           `json:"grabs"`
	Review       string        `gorm:"type:text" json:"review"`
	UsenetDate   *time.Time    `json:"usenet_date,omitempty"`
	Status       ReleaseStatus `gorm:"size:16;not null;default:available;index" json:"status"`
	Directory    string        `gorm:"size:1024" json:"directory"`
	BookID       string        `gorm:"size:36;index" json:"book_id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// BeforeCreate assigns a random id to new releases.
func (r *Release) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReleaseAvailable
	}
	return nil
}

// GetID returns the primary key.
func (r *Release) GetID() string { return r.ID }

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{&Author{}, &Book{}, &Release{}}
}
