// Package app wires configuration into the running components.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"customcolors/internal/book"
	"customcolors/internal/catalog"
	"customcolors/internal/checkout"
	"customcolors/internal/domain"
	"customcolors/internal/download"
	"customcolors/internal/generation"
	"customcolors/internal/http/handlers"
	"customcolors/internal/http/httpapi"
	"customcolors/internal/infra"
	"customcolors/internal/providers/airtable"
	"customcolors/internal/providers/replicate"
	"customcolors/internal/providers/stripe"
	"customcolors/internal/storage"
	"customcolors/internal/watermark"
)

// Container holds the process-wide components.
type Container struct {
	Config     *infra.Config
	Logger     *infra.Logger
	Artifacts  *storage.ArtifactStore
	Reaper     *storage.Reaper
	Generation *generation.Service
	Assembler  *book.Assembler
	Checkout   *checkout.Initiator
	Tokens     *download.CacheStore
	Downloads  *download.Gateway
	Catalog    *catalog.Service
}

// NewArtifactStore builds the configured storage backend and the artifact
// store on top of it.
func NewArtifactStore(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*storage.ArtifactStore, error) {
	var backend storage.Backend
	switch cfg.StorageBackend {
	case "s3":
		s3, err := storage.NewS3Store(storage.S3Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		backend = s3
	default:
		fs, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		backend = fs
	}
	return storage.NewArtifactStore(storage.Options{
		Backend:       backend,
		Retention:     cfg.ArtifactRetention,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})
}

// NewAssembler builds the book assembler reading through store.
func NewAssembler(cfg *infra.Config, store *storage.ArtifactStore, logger *infra.Logger) (*book.Assembler, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	return book.NewAssembler(book.Options{
		Source: book.NewFetcher(store, client, cfg.ImageSourceAllowlist),
		Sink:   store,
		Logger: logger,
	})
}

// Build constructs every component. Missing third-party credentials do not
// prevent startup; the affected routes answer with an upstream error.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Container, error) {
	logger = infra.LoggerOrDiscard(logger)
	store, err := NewArtifactStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	reaper, err := storage.NewReaper(store, cfg.ReaperSchedule, logger)
	if err != nil {
		return nil, err
	}

	predictions, err := replicate.NewClient(replicate.Options{
		APIToken:     cfg.ReplicateAPIToken,
		BaseURL:      cfg.ReplicateBaseURL,
		ModelVersion: cfg.ReplicateModelVersion,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if !predictions.HasCredentials() {
		logger.Warn().Msg("REPLICATE_API_TOKEN not set, generation will fail")
	}
	marker, err := watermark.New(watermark.DefaultMarker())
	if err != nil {
		return nil, err
	}
	clock := infra.SystemClock{}
	gen, err := generation.NewService(generation.Options{
		Client:    predictions,
		Poller:    generation.NewPoller(predictions, clock, cfg.GenerationPollInterval, cfg.GenerationMaxAttempts, logger),
		Store:     store,
		Watermark: marker,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	assembler, err := NewAssembler(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	var processor checkout.PaymentProcessor
	if cfg.StripeSecretKey == "" {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, checkout will fail")
		processor = unavailable{service: "stripe"}
	} else {
		processor, err = stripe.NewProcessor(stripe.Options{SecretKey: cfg.StripeSecretKey, APIURL: cfg.StripeAPIURL, Logger: logger})
		if err != nil {
			return nil, err
		}
	}
	initiator, err := checkout.NewInitiator(checkout.Options{
		Processor:        processor,
		Assembler:        assembler,
		Linker:           store,
		UnitPriceCents:   cfg.PageUnitPriceCents,
		Currency:         cfg.CheckoutCurrency,
		SuccessURL:       cfg.CheckoutSuccessURL,
		CancelURL:        cfg.CheckoutCancelURL,
		CatalogCancelURL: cfg.CatalogCancelURL,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	// Tombstones outlive the window so expired links keep answering 403.
	tokens := download.NewCacheStore(cfg.DownloadTokenTTL + cfg.ArtifactRetention)
	gateway, err := download.NewGateway(download.Options{
		Store:         tokens,
		Window:        cfg.DownloadTokenTTL,
		PublicBaseURL: cfg.PublicBaseURL,
		Clock:         clock,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	var records catalog.RecordSource
	source, err := airtable.NewClient(airtable.Options{
		APIKey:  cfg.AirtableAPIKey,
		BaseID:  cfg.AirtableBaseID,
		Table:   cfg.AirtableTable,
		BaseURL: cfg.AirtableBaseURL,
		Logger:  logger,
	})
	switch {
	case err == nil:
		records = source
	case errors.Is(err, airtable.ErrMissingCredentials):
		logger.Warn().Msg("AIRTABLE_API_KEY or AIRTABLE_BASE_ID not set, catalog will fail")
		records = unavailable{service: "airtable"}
	default:
		return nil, err
	}

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Artifacts:  store,
		Reaper:     reaper,
		Generation: gen,
		Assembler:  assembler,
		Checkout:   initiator,
		Tokens:     tokens,
		Downloads:  gateway,
		Catalog:    catalog.NewService(records, logger),
	}, nil
}

// Handler returns the HTTP surface.
func (c *Container) Handler() http.Handler {
	app := &handlers.App{
		Generator: c.Generation,
		Checkout:  c.Checkout,
		Downloads: c.Downloads,
		Catalog:   c.Catalog,
		Artifacts: c.Artifacts,
		Logger:    c.Logger,

		StorageBackend: c.Config.StorageBackend,
	}
	return httpapi.NewRouter(app, httpapi.Options{
		Logger:                *c.Logger,
		CORSAllowedOrigins:    c.Config.CORSAllowedOrigins,
		TrustedProxies:        c.Config.TrustedProxies,
		GenerateRatePerMinute: c.Config.GenerateRatePerMinute,
	})
}

// unavailable stands in for a collaborator whose credentials are missing.
type unavailable struct {
	service string
}

func (u unavailable) err() error {
	return &domain.UpstreamError{Service: u.service, Message: fmt.Sprintf("%s is not configured", u.service)}
}

func (u unavailable) CreateSession(context.Context, checkout.SessionRequest) (domain.CheckoutSession, error) {
	return domain.CheckoutSession{}, u.err()
}

func (u unavailable) GetSession(context.Context, string) (domain.CheckoutSession, error) {
	return domain.CheckoutSession{}, u.err()
}

func (u unavailable) ListRecords(context.Context) ([]airtable.Record, error) {
	return nil, u.err()
}
