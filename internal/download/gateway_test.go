package download

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customcolors/internal/domain"
	"customcolors/internal/infra/clocktest"
)

func newGateway(t *testing.T) (*Gateway, *CacheStore, *clocktest.Clock) {
	t.Helper()
	clock := clocktest.New(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	store := NewCacheStore(time.Hour)
	g, err := NewGateway(Options{
		Store:         store,
		Window:        10 * time.Minute,
		PublicBaseURL: "https://colors.example.com/",
		Clock:         clock,
	})
	require.NoError(t, err)
	return g, store, clock
}

func TestRedeemReusableWithinWindow(t *testing.T) {
	g, _, clock := newGateway(t)
	ctx := context.Background()

	tok, err := g.Issue(ctx, "https://colors.example.com/images/a_book.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://colors.example.com/download/"+tok.Token, g.Link(tok))

	for i := 0; i < 3; i++ {
		target, err := g.Redeem(ctx, tok.Token)
		require.NoError(t, err)
		assert.Equal(t, "https://colors.example.com/images/a_book.pdf", target)
		clock.Advance(3 * time.Minute)
	}
}

func TestRedeemAfterExpiryStaysExpired(t *testing.T) {
	g, store, clock := newGateway(t)
	ctx := context.Background()

	tok, err := g.Issue(ctx, "https://cdn.example.com/book.pdf")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = g.Redeem(ctx, tok.Token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	_, err = g.Redeem(ctx, tok.Token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, tok.Token))
	_, err = g.Redeem(ctx, tok.Token)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedeemJustBeforeExpiry(t *testing.T) {
	g, _, clock := newGateway(t)
	ctx := context.Background()

	tok, err := g.Issue(ctx, "https://cdn.example.com/book.pdf")
	require.NoError(t, err)
	clock.Advance(10*time.Minute - time.Nanosecond)

	_, err = g.Redeem(ctx, tok.Token)
	assert.NoError(t, err)
}

func TestRedeemUnknownToken(t *testing.T) {
	g, _, _ := newGateway(t)

	_, err := g.Redeem(context.Background(), "never-issued")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrTokenExpired)
}

func TestIssueValidatesTarget(t *testing.T) {
	g, store, _ := newGateway(t)

	_, err := g.Issue(context.Background(), "")
	assert.EqualError(t, err, "Missing download URL")

	_, err = g.Issue(context.Background(), "javascript:alert(1)")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, store.Len())
}

func TestTokensAreUnique(t *testing.T) {
	g, _, _ := newGateway(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := g.Issue(context.Background(), "https://cdn.example.com/book.pdf")
		require.NoError(t, err)
		require.False(t, seen[tok.Token])
		seen[tok.Token] = true
	}
}
