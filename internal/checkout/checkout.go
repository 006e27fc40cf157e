// Package checkout creates payment sessions for custom and catalog orders
// and resolves paid sessions back to their deliverable.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

const customProductName = "Custom Coloring Book"

// LineItem is the single priced item on a session.
type LineItem struct {
	Name        string
	Description string
	Images      []string
	UnitAmount  int64
	Quantity    int64
}

// SessionRequest is everything a processor needs to open a hosted checkout.
type SessionRequest struct {
	Currency       string
	Item           LineItem
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentProcessor creates and reads hosted checkout sessions.
type PaymentProcessor interface {
	CreateSession(ctx context.Context, req SessionRequest) (domain.CheckoutSession, error)
	GetSession(ctx context.Context, id string) (domain.CheckoutSession, error)
}

// BookAssembler renders the custom order's pages into one document.
type BookAssembler interface {
	Assemble(ctx context.Context, urls []string) (domain.Artifact, error)
}

// ArtifactLinker turns a stored artifact into its public URL.
type ArtifactLinker interface {
	URL(a domain.Artifact) string
}

// Options wires an Initiator.
type Options struct {
	Processor        PaymentProcessor
	Assembler        BookAssembler
	Linker           ArtifactLinker
	UnitPriceCents   int64
	Currency         string
	SuccessURL       string
	CancelURL        string
	CatalogCancelURL string
	Logger           *infra.Logger
}

// Initiator opens payment sessions. Session creation has a monetary side
// effect, so nothing here retries.
type Initiator struct {
	processor     PaymentProcessor
	assembler     BookAssembler
	linker        ArtifactLinker
	unitPrice     int64
	currency      string
	successURL    string
	cancelURL     string
	catalogCancel string
	logger        *infra.Logger
}

// NewInitiator validates wiring and pricing.
func NewInitiator(opts Options) (*Initiator, error) {
	if opts.Processor == nil || opts.Assembler == nil || opts.Linker == nil {
		return nil, errors.New("checkout: processor, assembler and linker are required")
	}
	if opts.UnitPriceCents <= 0 {
		return nil, errors.New("checkout: unit price must be positive")
	}
	cur := strings.ToLower(strings.TrimSpace(opts.Currency))
	if cur == "" {
		cur = "usd"
	}
	if _, err := currency.ParseISO(strings.ToUpper(cur)); err != nil {
		return nil, fmt.Errorf("checkout: currency %q: %w", opts.Currency, err)
	}
	if opts.SuccessURL == "" || opts.CancelURL == "" {
		return nil, errors.New("checkout: success and cancel URLs are required")
	}
	catalogCancel := opts.CatalogCancelURL
	if catalogCancel == "" {
		catalogCancel = opts.CancelURL
	}
	return &Initiator{
		processor:     opts.Processor,
		assembler:     opts.Assembler,
		linker:        opts.Linker,
		unitPrice:     opts.UnitPriceCents,
		currency:      cur,
		successURL:    opts.SuccessURL,
		cancelURL:     opts.CancelURL,
		catalogCancel: catalogCancel,
		logger:        infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// CustomOrder assembles the pages into a book and opens a session priced per
// page. The book's URL travels in the session metadata.
func (i *Initiator) CustomOrder(ctx context.Context, pageURLs []string) (domain.CheckoutSession, error) {
	urls := make([]string, 0, len(pageURLs))
	for _, u := range pageURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return domain.CheckoutSession{}, domain.Invalid("No images provided.")
	}

	book, err := i.assembler.Assemble(ctx, urls)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	downloadURL := i.linker.URL(book)

	session, err := i.processor.CreateSession(ctx, SessionRequest{
		Currency: i.currency,
		Item: LineItem{
			Name:        customProductName,
			Description: i.pagesLabel(len(urls)),
			UnitAmount:  int64(len(urls)) * i.unitPrice,
			Quantity:    1,
		},
		SuccessURL: i.successURL,
		CancelURL:  i.cancelURL,
		Metadata: map[string]string{
			domain.MetaDownloadURL: downloadURL,
			domain.MetaPageCount:   strconv.Itoa(len(urls)),
		},
		IdempotencyKey: "custom-order-" + book.ID,
	})
	if err != nil {
		i.logger.Error().Err(err).Str("book", book.ID).Msg("checkout: custom order session failed")
		return domain.CheckoutSession{}, err
	}
	i.logger.Info().Str("session", session.ID).Str("book", book.ID).Int("pages", len(urls)).Msg("checkout: custom order session created")
	return session, nil
}

// CatalogOrder opens a session for a pre-made book.
func (i *Initiator) CatalogOrder(ctx context.Context, b domain.Book) (domain.CheckoutSession, error) {
	name := strings.TrimSpace(b.Name)
	if name == "" || !(b.Price > 0) || math.IsInf(b.Price, 0) {
		return domain.CheckoutSession{}, domain.Invalid("Book name and price are required.")
	}
	amount := int64(math.Round(b.Price * 100))
	if amount <= 0 {
		return domain.CheckoutSession{}, domain.Invalid("Book name and price are required.")
	}

	cover := deref(b.CoverImage)
	var images []string
	if cover != "" {
		images = []string{cover}
	}
	session, err := i.processor.CreateSession(ctx, SessionRequest{
		Currency: i.currency,
		Item: LineItem{
			Name:        name,
			Description: b.Description,
			Images:      images,
			UnitAmount:  amount,
			Quantity:    1,
		},
		SuccessURL: i.successURL,
		CancelURL:  i.catalogCancel,
		Metadata: map[string]string{
			domain.MetaBookName:    name,
			domain.MetaDownloadURL: deref(b.DownloadURL),
			domain.MetaCoverImage:  cover,
		},
	})
	if err != nil {
		i.logger.Error().Err(err).Str("book", name).Msg("checkout: catalog session failed")
		return domain.CheckoutSession{}, err
	}
	i.logger.Info().Str("session", session.ID).Str("book", name).Msg("checkout: catalog session created")
	return session, nil
}

// Deliverable reads what a session paid for from its metadata.
func (i *Initiator) Deliverable(ctx context.Context, sessionID string) (domain.Deliverable, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Deliverable{}, domain.Invalid("Session id is required.")
	}
	session, err := i.processor.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Deliverable{}, err
	}
	d := domain.Deliverable{
		DownloadURL: session.Metadata[domain.MetaDownloadURL],
		CoverImage:  session.Metadata[domain.MetaCoverImage],
	}
	if d.DownloadURL == "" {
		return domain.Deliverable{}, domain.Invalid("Missing download URL in session metadata")
	}
	return d, nil
}

func (i *Initiator) pagesLabel(n int) string {
	unit := currency.MustParseISO(strings.ToUpper(i.currency))
	p := message.NewPrinter(language.English)
	price := p.Sprint(currency.Symbol(unit.Amount(float64(i.unitPrice) / 100)))
	if n == 1 {
		return "1 page at " + price
	}
	return p.Sprintf("%d pages at %s each", n, price)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
