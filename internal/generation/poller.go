package generation

import (
	"context"
	"fmt"
	"time"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
	"customcolors/internal/providers/replicate"
)

// PredictionService is the subset of the prediction API the pipeline uses.
type PredictionService interface {
	Create(ctx context.Context, input replicate.Input) (*replicate.Prediction, error)
	Get(ctx context.Context, statusURL string) (*replicate.Prediction, error)
	Download(ctx context.Context, outputURL string) ([]byte, string, error)
}

// Poller drives a submitted prediction to a terminal state. Every wait goes
// through the injected clock and honours ctx, so cancellation has a natural
// hook even though request handlers currently detach from client disconnects.
type Poller struct {
	client      PredictionService
	clock       infra.Clock
	interval    time.Duration
	maxAttempts int
	logger      *infra.Logger
}

// NewPoller returns a Poller that polls at most maxAttempts times.
func NewPoller(client PredictionService, clock infra.Clock, interval time.Duration, maxAttempts int, logger *infra.Logger) *Poller {
	if clock == nil {
		clock = infra.SystemClock{}
	}
	return &Poller{
		client:      client,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      infra.LoggerOrDiscard(logger),
	}
}

// Await polls until the prediction succeeds or fails, or until maxAttempts
// polls have been made. Statuses other than succeeded and failed count as
// pending. job is updated in place with attempts and the final status.
func (p *Poller) Await(ctx context.Context, job *domain.GenerationJob, pred *replicate.Prediction) (*replicate.Prediction, error) {
	for {
		job.UpstreamState = pred.Status
		job.Status = jobStatus(pred.Status)
		if !job.Status.Terminal() && job.Attempts >= p.maxAttempts {
			job.Status = domain.JobStatusTimedOut
		}
		if job.Status.Terminal() {
			job.FinishedAt = p.clock.Now()
			return p.finish(job, pred)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(p.interval):
		}

		next, err := p.client.Get(ctx, job.StatusURL)
		job.Attempts++
		if err != nil {
			job.Status = domain.JobStatusFailed
			return nil, err
		}
		p.logger.Debug().
			Str("prediction_id", job.ExternalJobID).
			Str("status", next.Status).
			Int("attempt", job.Attempts).
			Msg("generation: polled prediction")
		pred = next
	}
}

func jobStatus(upstream string) domain.JobStatus {
	switch upstream {
	case replicate.StatusSucceeded:
		return domain.JobStatusSucceeded
	case replicate.StatusFailed:
		return domain.JobStatusFailed
	default:
		return domain.JobStatusPending
	}
}

func (p *Poller) finish(job *domain.GenerationJob, pred *replicate.Prediction) (*replicate.Prediction, error) {
	switch job.Status {
	case domain.JobStatusSucceeded:
		return pred, nil
	case domain.JobStatusFailed:
		return nil, &domain.UpstreamError{
			Service: "prediction",
			Status:  pred.Status,
			Message: pred.ErrorMessage(),
			Kind:    domain.ErrGenerationFailed,
		}
	default:
		return nil, &domain.UpstreamError{
			Service: "prediction",
			Status:  pred.Status,
			Message: fmt.Sprintf("did not complete after %d polls", job.Attempts),
			Kind:    domain.ErrGenerationTimedOut,
		}
	}
}
