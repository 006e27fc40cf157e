// Package catalog maps catalog table rows to books.
package catalog

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
	"customcolors/internal/providers/airtable"
)

// MaxPages is the number of "Pic N" columns in the table.
const MaxPages = 10

// RecordSource lists raw catalog rows.
type RecordSource interface {
	ListRecords(ctx context.Context) ([]airtable.Record, error)
}

// Service reads books through to the catalog table on every call.
type Service struct {
	source RecordSource
	logger *infra.Logger
}

// NewService returns a catalog reader.
func NewService(source RecordSource, logger *infra.Logger) *Service {
	return &Service{
		source: source,
		logger: infra.LoggerOrDiscard(logger),
	}
}

// Books returns every catalog book in table order.
func (s *Service) Books(ctx context.Context) ([]domain.Book, error) {
	records, err := s.source.ListRecords(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("catalog: fetch failed")
		return nil, err
	}
	// Casers carry state and are not shared across requests.
	title := cases.Title(language.English)
	books := make([]domain.Book, 0, len(records))
	for _, r := range records {
		books = append(books, toBook(r, title))
	}
	return books, nil
}

func toBook(r airtable.Record, title cases.Caser) domain.Book {
	pages := make([]string, 0, MaxPages)
	for i := 1; i <= MaxPages; i++ {
		if u := r.FirstAttachmentURL("Pic " + strconv.Itoa(i)); u != "" {
			pages = append(pages, u)
		}
	}
	return domain.Book{
		ID:          r.ID,
		Name:        strings.TrimSpace(r.String("Name")),
		Type:        title.String(strings.TrimSpace(r.String("Type"))),
		Description: r.String("Notes"),
		Price:       r.Float("Price"),
		CoverImage:  optional(r.FirstAttachmentURL("Cover")),
		Pages:       pages,
		DownloadURL: optional(r.FirstAttachmentURL("Download")),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
