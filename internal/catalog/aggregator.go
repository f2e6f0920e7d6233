// Package catalog merges book records from the mutable document store
// with read-only records from the public search API into one
// provenance-tagged list, and owns the admin mutations against the
// store subset.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"mindfuel/internal/domain"
)

// Store is the document store surface the aggregator needs.
// Satisfied by *docstore.Client.
type Store interface {
	List(ctx context.Context, path string, out any) error
	Create(ctx context.Context, path string, payload any) (string, error)
	Patch(ctx context.Context, path string, payload any) error
	Delete(ctx context.Context, path string) error
}

// Searcher provides external-provenance records.
// Satisfied by *books.Client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.Book, error)
}

// ReadOnlyError rejects mutations against records the store does not
// own.
type ReadOnlyError struct{ ID string }

func (e *ReadOnlyError) Error() string {
	return "only store books can be edited or deleted"
}

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// storeRecord is the document-store shape of a book (no id, no
// provenance; both exist only client-side).
type storeRecord struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Price       string `json:"price"`
	Content     string `json:"content"`
	PDFURL      string `json:"pdfUrl"`
}

// Input carries the fields of a create/update request.
type Input struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Price       string `json:"price"`
	Content     string `json:"content"`
	PDFURL      string `json:"pdfUrl"`
}

// Validate checks required fields and the PDF URL suffix before any
// network call is issued.
func (in Input) Validate() error {
	required := []struct {
		field, value string
	}{
		{"title", in.Title},
		{"author", in.Author},
		{"description", in.Description},
		{"image", in.Image},
		{"price", in.Price},
		{"content", in.Content},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	if in.PDFURL != "" && !strings.HasSuffix(strings.ToLower(in.PDFURL), ".pdf") {
		return &ValidationError{Field: "pdfUrl", Reason: `must end with ".pdf"`}
	}
	return nil
}

// Aggregator produces the unified book list.
type Aggregator struct {
	store     Store
	external  Searcher
	seedQuery string
}

// New constructs an aggregator. seedQuery is the fixed query used to
// pull the external contribution of the browsing list.
func New(store Store, external Searcher, seedQuery string) *Aggregator {
	if seedQuery == "" {
		seedQuery = "self improvement"
	}
	return &Aggregator{store: store, external: external, seedQuery: seedQuery}
}

// Fetch runs the store read-all and the external search concurrently
// and concatenates the results, store records first. A failed source
// logs a warning and contributes nothing; the partial list still
// renders.
func (a *Aggregator) Fetch(ctx context.Context) []domain.Book {
	var storeBooks, externalBooks []domain.Book

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records := map[string]storeRecord{}
		if err := a.store.List(gctx, "books", &records); err != nil {
			slog.Warn("store book fetch failed", "err", err)
			return nil
		}
		keys := make([]string, 0, len(records))
		for key := range records {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			rec := records[key]
			storeBooks = append(storeBooks, domain.Book{
				ID:          key,
				Title:       rec.Title,
				Author:      rec.Author,
				Description: rec.Description,
				Image:       rec.Image,
				Price:       rec.Price,
				Content:     rec.Content,
				PDFURL:      rec.PDFURL,
				Provenance:  domain.ProvenanceStore,
			})
		}
		return nil
	})
	g.Go(func() error {
		found, err := a.external.Search(gctx, a.seedQuery)
		if err != nil {
			slog.Warn("external book fetch failed", "err", err)
			return nil
		}
		externalBooks = found
		return nil
	})
	_ = g.Wait()

	return append(storeBooks, externalBooks...)
}

// Filter returns the subsequence whose title contains q as a
// case-insensitive substring. An empty query returns the input
// unchanged.
func Filter(books []domain.Book, q string) []domain.Book {
	if q == "" {
		return books
	}
	needle := strings.ToLower(q)
	out := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if strings.Contains(strings.ToLower(b.Title), needle) {
			out = append(out, b)
		}
	}
	return out
}

// Related returns every other book (any provenance) whose author
// matches the selected book's author case-insensitively. A book never
// relates to itself, and blank authors relate to nothing.
func Related(books []domain.Book, selected domain.Book) []domain.Book {
	author := strings.ToLower(strings.TrimSpace(selected.Author))
	if author == "" {
		return nil
	}
	out := make([]domain.Book, 0)
	for _, b := range books {
		if b.ID == selected.ID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(b.Author)) == author {
			out = append(out, b)
		}
	}
	return out
}

// Create validates and appends a new store record, then re-fetches the
// full list.
func (a *Aggregator) Create(ctx context.Context, in Input) ([]domain.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := a.store.Create(ctx, "books", recordFromInput(in)); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return a.Fetch(ctx), nil
}

// Update validates and partial-updates a store record by id.
// External-provenance records are rejected before any network call.
func (a *Aggregator) Update(ctx context.Context, id string, provenance domain.Provenance, in Input) ([]domain.Book, error) {
	if provenance != domain.ProvenanceStore {
		return nil, &ReadOnlyError{ID: id}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := a.store.Patch(ctx, "books/"+id, recordFromInput(in)); err != nil {
		return nil, fmt.Errorf("update book %s: %w", id, err)
	}
	return a.Fetch(ctx), nil
}

// Delete removes a store record by id. External-provenance records are
// rejected before any network call.
func (a *Aggregator) Delete(ctx context.Context, id string, provenance domain.Provenance) ([]domain.Book, error) {
	if provenance != domain.ProvenanceStore {
		return nil, &ReadOnlyError{ID: id}
	}
	if err := a.store.Delete(ctx, "books/"+id); err != nil {
		return nil, fmt.Errorf("delete book %s: %w", id, err)
	}
	return a.Fetch(ctx), nil
}

func recordFromInput(in Input) storeRecord {
	return storeRecord{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price,
		Content:     in.Content,
		PDFURL:      in.PDFURL,
	}
}
