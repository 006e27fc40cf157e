package httpapi

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"customcolors/internal/http/handlers"
	"customcolors/internal/middleware"
)

// Options tunes the middleware chain.
type Options struct {
	Logger                zerolog.Logger
	CORSAllowedOrigins    []string
	TrustedProxies        []netip.Prefix
	GenerateRatePerMinute int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP(opts.TrustedProxies),
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	// Generation
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.GenerateRatePerMinute))
		r.Post("/generate", app.Generate)
		r.Post("/image-to-image", app.ImageToImage)
	})

	// Purchase
	r.Post("/checkout", app.CustomCheckout)
	r.Post("/create-checkout-session", app.CatalogCheckout)
	r.Get("/session/{id}", app.Session)
	r.Get("/books", app.Books)

	// Delivery
	r.Post("/generate-download-link", app.GenerateDownloadLink)
	r.Get("/download/{token}", app.Download)
	r.Get("/images/{id}", app.Artifact)
	r.Head("/images/{id}", app.Artifact)

	return r
}
