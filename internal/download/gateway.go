// Package download mints short-lived, reusable links to deliverables.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

// Options wires a Gateway.
type Options struct {
	Store         TokenStore
	Window        time.Duration
	PublicBaseURL string
	Clock         infra.Clock
	Logger        *infra.Logger
}

// Gateway issues and redeems download tokens. A token redeems any number of
// times before its window elapses and never afterwards.
type Gateway struct {
	store      TokenStore
	window     time.Duration
	publicBase string
	clock      infra.Clock
	logger     *infra.Logger
}

// NewGateway validates options.
func NewGateway(opts Options) (*Gateway, error) {
	if opts.Store == nil {
		return nil, errors.New("download: token store is required")
	}
	if opts.Window <= 0 {
		return nil, errors.New("download: window must be positive")
	}
	clock := opts.Clock
	if clock == nil {
		clock = infra.SystemClock{}
	}
	return &Gateway{
		store:      opts.Store,
		window:     opts.Window,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		clock:      clock,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Window returns the redemption window.
func (g *Gateway) Window() time.Duration { return g.window }

// Issue mints a token for target.
func (g *Gateway) Issue(ctx context.Context, target string) (domain.DownloadToken, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return domain.DownloadToken{}, domain.Invalid("Missing download URL")
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.DownloadToken{}, domain.Invalid("Download URL must be an absolute http(s) URL.")
	}
	t := domain.DownloadToken{
		Token:     uuid.NewString(),
		TargetURL: target,
		CreatedAt: g.clock.Now(),
	}
	if err := g.store.Put(ctx, t); err != nil {
		return domain.DownloadToken{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	g.logger.Debug().Str("token", t.Token).Time("expires_at", t.ExpiresAt(g.window)).Msg("download: token issued")
	return t, nil
}

// Redeem returns the target of a live token. After the window, the token is
// tombstoned and keeps failing with ErrTokenExpired until the store forgets it.
func (g *Gateway) Redeem(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("download token: %w", domain.ErrNotFound)
	}
	t, ok, err := g.store.Get(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if !ok {
		return "", fmt.Errorf("download token: %w", domain.ErrNotFound)
	}
	if t.Expired {
		return "", domain.ErrTokenExpired
	}
	if !g.clock.Now().Before(t.ExpiresAt(g.window)) {
		t.Expired = true
		t.TargetURL = ""
		if err := g.store.Put(ctx, t); err != nil {
			g.logger.Warn().Err(err).Str("token", token).Msg("download: tombstone write failed")
		}
		return "", domain.ErrTokenExpired
	}
	return t.TargetURL, nil
}

// Link is the public redemption URL for a token.
func (g *Gateway) Link(t domain.DownloadToken) string {
	return g.publicBase + "/download/" + url.PathEscape(t.Token)
}
