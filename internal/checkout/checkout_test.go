package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customcolors/internal/domain"
)

type fakeProcessor struct {
	requests []SessionRequest
	sessions map[string]domain.CheckoutSession
	err      error
}

func (f *fakeProcessor) CreateSession(_ context.Context, req SessionRequest) (domain.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.CheckoutSession{}, f.err
	}
	return domain.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1", Metadata: req.Metadata}, nil
}

func (f *fakeProcessor) GetSession(_ context.Context, id string) (domain.CheckoutSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return domain.CheckoutSession{}, &domain.UpstreamError{Service: "stripe", Status: "404", Kind: domain.ErrNotFound}
	}
	return s, nil
}

type fakeAssembler struct {
	calls [][]string
	err   error
}

func (f *fakeAssembler) Assemble(_ context.Context, urls []string) (domain.Artifact, error) {
	f.calls = append(f.calls, urls)
	if f.err != nil {
		return domain.Artifact{}, f.err
	}
	return domain.Artifact{ID: "abc_book.pdf", Kind: domain.ArtifactAssembled}, nil
}

type linker struct{}

func (linker) URL(a domain.Artifact) string { return "https://colors.example.com/images/" + a.ID }

func newInitiator(t *testing.T, p *fakeProcessor, a *fakeAssembler) *Initiator {
	t.Helper()
	i, err := NewInitiator(Options{
		Processor:        p,
		Assembler:        a,
		Linker:           linker{},
		UnitPriceCents:   199,
		Currency:         "usd",
		SuccessURL:       "https://shop.example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:        "https://shop.example.com",
		CatalogCancelURL: "https://shop.example.com/cancel",
	})
	require.NoError(t, err)
	return i
}

func TestCustomOrderPricesPerPage(t *testing.T) {
	p, a := &fakeProcessor{}, &fakeAssembler{}
	i := newInitiator(t, p, a)

	session, err := i.CustomOrder(context.Background(), []string{"u1", " ", "u2", "u3", "u4"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/cs_1", session.URL)

	require.Len(t, a.calls, 1)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, a.calls[0])

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "Custom Coloring Book", req.Item.Name)
	assert.Equal(t, int64(796), req.Item.UnitAmount)
	assert.Equal(t, int64(1), req.Item.Quantity)
	assert.Contains(t, req.Item.Description, "4 pages")
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "https://shop.example.com", req.CancelURL)
	assert.Equal(t, "https://colors.example.com/images/abc_book.pdf", req.Metadata[domain.MetaDownloadURL])
	assert.Equal(t, "4", req.Metadata[domain.MetaPageCount])
	assert.Equal(t, "custom-order-abc_book.pdf", req.IdempotencyKey)
}

func TestCustomOrderEmptyCreatesNothing(t *testing.T) {
	p, a := &fakeProcessor{}, &fakeAssembler{}
	i := newInitiator(t, p, a)

	_, err := i.CustomOrder(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualError(t, err, "No images provided.")
	assert.Empty(t, a.calls)
	assert.Empty(t, p.requests)
}

func TestCustomOrderAssemblyFailureCreatesNoSession(t *testing.T) {
	p, a := &fakeProcessor{}, &fakeAssembler{err: &domain.UpstreamError{Service: "image-source", Status: "404"}}
	i := newInitiator(t, p, a)

	_, err := i.CustomOrder(context.Background(), []string{"u1"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Empty(t, p.requests)
}

func TestCatalogOrder(t *testing.T) {
	p := &fakeProcessor{}
	i := newInitiator(t, p, &fakeAssembler{})
	cover := "https://cdn.example.com/cover.jpg"

	_, err := i.CatalogOrder(context.Background(), domain.Book{
		Name:        "Ocean Friends",
		Description: "Sea creatures",
		Price:       12.5,
		CoverImage:  &cover,
	})
	require.NoError(t, err)

	req := p.requests[0]
	assert.Equal(t, "Ocean Friends", req.Item.Name)
	assert.Equal(t, "Sea creatures", req.Item.Description)
	assert.Equal(t, []string{cover}, req.Item.Images)
	assert.Equal(t, int64(1250), req.Item.UnitAmount)
	assert.Equal(t, "https://shop.example.com/cancel", req.CancelURL)
	assert.Equal(t, map[string]string{
		domain.MetaBookName:    "Ocean Friends",
		domain.MetaDownloadURL: "",
		domain.MetaCoverImage:  cover,
	}, req.Metadata)
	assert.Empty(t, req.IdempotencyKey)
}

func TestCatalogOrderValidation(t *testing.T) {
	cases := []struct {
		name string
		book domain.Book
	}{
		{"missing name", domain.Book{Price: 5}},
		{"blank name", domain.Book{Name: "  ", Price: 5}},
		{"zero price", domain.Book{Name: "A"}},
		{"negative price", domain.Book{Name: "A", Price: -1}},
		{"rounds to zero", domain.Book{Name: "A", Price: 0.001}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{}
			i := newInitiator(t, p, &fakeAssembler{})
			_, err := i.CatalogOrder(context.Background(), tc.book)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.EqualError(t, err, "Book name and price are required.")
			assert.Empty(t, p.requests)
		})
	}
}

func TestDeliverable(t *testing.T) {
	p := &fakeProcessor{sessions: map[string]domain.CheckoutSession{
		"paid": {ID: "paid", Metadata: map[string]string{
			domain.MetaDownloadURL: "https://colors.example.com/images/abc_book.pdf",
			domain.MetaCoverImage:  "https://cdn.example.com/cover.jpg",
		}},
		"empty": {ID: "empty", Metadata: map[string]string{domain.MetaDownloadURL: ""}},
	}}
	i := newInitiator(t, p, &fakeAssembler{})
	ctx := context.Background()

	d, err := i.Deliverable(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, "https://colors.example.com/images/abc_book.pdf", d.DownloadURL)
	assert.Equal(t, "https://cdn.example.com/cover.jpg", d.CoverImage)

	_, err = i.Deliverable(ctx, "empty")
	assert.EqualError(t, err, "Missing download URL in session metadata")

	_, err = i.Deliverable(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = i.Deliverable(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewInitiatorRejectsBadConfig(t *testing.T) {
	base := Options{Processor: &fakeProcessor{}, Assembler: &fakeAssembler{}, Linker: linker{}, UnitPriceCents: 199, SuccessURL: "s", CancelURL: "c"}

	bad := base
	bad.UnitPriceCents = 0
	_, err := NewInitiator(bad)
	assert.Error(t, err)

	bad = base
	bad.Currency = "zzzz"
	_, err = NewInitiator(bad)
	assert.Error(t, err)

	_, err = NewInitiator(base)
	assert.NoError(t, err)
	assert.False(t, errors.Is(err, domain.ErrValidation))
}
