// Package opf renders OPF 2.0 package documents used as metadata sidecars
// next to library books.
package opf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bookworm-app/bookworm/internal/models"
)

const (
	NamespaceOPF = "http://www.idpf.org/2007/opf"
	NamespaceDC  = "http://purl.org/dc/elements/1.1/"
	Version      = "2.0"
	identifierID = "BookId"
)

// Package is the root element. Prefixed names are written literally so the
// document carries the conventional dc: and opf: prefixes.
type Package struct {
	XMLName          xml.Name `xml:"package"`
	XMLNS            string   `xml:"xmlns,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Version          string   `xml:"version,attr"`
	Metadata         Metadata `xml:"metadata"`
	Guide            *Guide   `xml:"guide,omitempty"`
}

// Metadata holds the Dublin Core fields.
type Metadata struct {
	XMLNSDC     string       `xml:"xmlns:dc,attr"`
	XMLNSOPF    string       `xml:"xmlns:opf,attr"`
	Title       string       `xml:"dc:title"`
	Creators    []Creator    `xml:"dc:creator"`
	Identifiers []Identifier `xml:"dc:identifier"`
	Publisher   string       `xml:"dc:publisher,omitempty"`
	Date        string       `xml:"dc:date,omitempty"`
	Language    string       `xml:"dc:language,omitempty"`
	Description string       `xml:"dc:description,omitempty"`
	Meta        []Meta       `xml:"meta"`
}

// Creator is a dc:creator.
type Creator struct {
	Role   string `xml:"opf:role,attr,omitempty"`
	FileAs string `xml:"opf:file-as,attr,omitempty"`
	Name   string `xml:",chardata"`
}

// Identifier is a dc:identifier.
type Identifier struct {
	ID     string `xml:"id,attr,omitempty"`
	Scheme string `xml:"opf:scheme,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Meta is an OPF 2.0 name/content meta element.
type Meta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// Guide lists reference documents such as the cover.
type Guide struct {
	References []Reference `xml:"reference"`
}

// Reference is one guide entry.
type Reference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr,omitempty"`
	Href  string `xml:"href,attr"`
}

// FromBook builds the package document for book.
func FromBook(book *models.Book) (*Package, error) {
	if book == nil {
		return nil, fmt.Errorf("opf: book is required")
	}

	md := Metadata{
		XMLNSDC:     NamespaceDC,
		XMLNSOPF:    NamespaceOPF,
		Title:       book.Title,
		Publisher:   book.Publisher,
		Date:        book.Published,
		Language:    book.Language,
		Description: book.Description,
	}
	if book.AuthorName != "" {
		md.Creators = append(md.Creators, Creator{Role: "aut", FileAs: fileAs(book.AuthorName), Name: book.AuthorName})
	}

	primary := Identifier{ID: identifierID, Scheme: "UUID", Value: book.ID}
	if book.ISBN != "" {
		primary = Identifier{ID: identifierID, Scheme: "ISBN", Value: book.ISBN}
	}
	md.Identifiers = append(md.Identifiers, primary)
	if book.GUID != "" && book.Provider != "" {
		md.Identifiers = append(md.Identifiers, Identifier{Scheme: book.Provider, Value: book.GUID})
	}
	if book.Rating > 0 {
		md.Meta = append(md.Meta, Meta{Name: "calibre:rating", Content: strconv.FormatFloat(book.Rating*2, 'f', -1, 64)})
	}

	pkg := &Package{
		XMLNS:            NamespaceOPF,
		UniqueIdentifier: identifierID,
		Version:          Version,
		Metadata:         md,
	}
	if cover := book.ImageLarge; cover != "" {
		pkg.Guide = &Guide{References: []Reference{{Type: "cover", Title: "Cover", Href: cover}}}
	}
	return pkg, nil
}

// Write renders the package document for book to w.
func Write(w io.Writer, book *models.Book) error {
	pkg, err := FromBook(book)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(pkg); err != nil {
		return fmt.Errorf("opf: encode: %w", err)
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// Marshal returns the package document for book.
func Marshal(book *models.Book) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, book); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fileAs turns "First Middle Last" into "Last, First Middle".
func fileAs(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return name
	}
	last := fields[len(fields)-1]
	return last + ", " + strings.Join(fields[:len(fields)-1], " ")
}
