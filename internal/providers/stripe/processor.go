// Package stripe implements checkout.PaymentProcessor on the Stripe API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"customcolors/internal/checkout"
	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

// ErrMissingSecretKey indicates the processor was configured without credentials.
var ErrMissingSecretKey = errors.New("stripe: secret key is required")

// Options configures the processor.
type Options struct {
	SecretKey string
	// APIURL overrides the API host, used by tests.
	APIURL         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Processor creates and retrieves Checkout Sessions.
type Processor struct {
	api    *client.API
	logger *infra.Logger
}

// NewProcessor builds a client with network retries disabled: session
// creation is not retried without an idempotency key chosen by the caller.
func NewProcessor(opts Options) (*Processor, error) {
	if strings.TrimSpace(opts.SecretKey) == "" {
		return nil, ErrMissingSecretKey
	}
	logger := infra.LoggerOrDiscard(opts.Logger)
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg := &stripego.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     leveledLogger{logger: logger},
		MaxNetworkRetries: stripego.Int64(0),
	}
	if opts.APIURL != "" {
		cfg.URL = stripego.String(strings.TrimRight(opts.APIURL, "/"))
	}
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, cfg)

	api := &client.API{}
	api.Init(opts.SecretKey, &stripego.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Processor{api: api, logger: logger}, nil
}

// CreateSession opens a one-item payment-mode session.
func (p *Processor) CreateSession(ctx context.Context, req checkout.SessionRequest) (domain.CheckoutSession, error) {
	product := &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripego.String(req.Item.Name),
	}
	if req.Item.Description != "" {
		product.Description = stripego.String(req.Item.Description)
	}
	if len(req.Item.Images) > 0 {
		product.Images = stripego.StringSlice(req.Item.Images)
	}
	quantity := req.Item.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		SuccessURL:         stripego.String(req.SuccessURL),
		CancelURL:          stripego.String(req.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripego.String(req.Currency),
				UnitAmount:  stripego.Int64(req.Item.UnitAmount),
				ProductData: product,
			},
			Quantity: stripego.Int64(quantity),
		}},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, translate(err)
	}
	return toSession(s), nil
}

// GetSession retrieves a session by id.
func (p *Processor) GetSession(ctx context.Context, id string) (domain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return domain.CheckoutSession{}, translate(err)
	}
	return toSession(s), nil
}

func toSession(s *stripego.CheckoutSession) domain.CheckoutSession {
	meta := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return domain.CheckoutSession{ID: s.ID, URL: s.URL, Metadata: meta}
}

func translate(err error) error {
	var se *stripego.Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &domain.UpstreamError{Service: "stripe", Message: err.Error()}
	}
	ue := &domain.UpstreamError{
		Service: "stripe",
		Status:  strconv.Itoa(se.HTTPStatusCode),
		Message: se.Msg,
	}
	if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripego.ErrorCodeResourceMissing {
		ue.Kind = domain.ErrNotFound
	}
	return ue
}

// leveledLogger routes stripe-go's client logs into zerolog.
type leveledLogger struct {
	logger *infra.Logger
}

func (l leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}
