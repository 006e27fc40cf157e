package generation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customcolors/internal/domain"
	"customcolors/internal/infra/clocktest"
	"customcolors/internal/providers/replicate"
)

type fakePredictions struct {
	mu        sync.Mutex
	created   []replicate.Input
	createErr error
	statuses  []string
	getErr    error
	gets      int
	output    string
	image     []byte
	imageType string
}

func (f *fakePredictions) Create(_ context.Context, in replicate.Input) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	p := &replicate.Prediction{ID: "pred-1", Status: replicate.StatusStarting}
	p.URLs.Get = "https://api.example.com/v1/predictions/pred-1"
	return p, nil
}

func (f *fakePredictions) Get(_ context.Context, statusURL string) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	status := replicate.StatusProcessing
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
	}
	p := &replicate.Prediction{ID: "pred-1", Status: status}
	p.URLs.Get = statusURL
	switch status {
	case replicate.StatusSucceeded:
		p.Output, _ = json.Marshal([]string{f.output})
	case replicate.StatusFailed:
		p.Error, _ = json.Marshal("NSFW content detected")
	}
	return p, nil
}

func (f *fakePredictions) Download(context.Context, string) ([]byte, string, error) {
	return f.image, f.imageType, nil
}

func startedJob() (*domain.GenerationJob, *replicate.Prediction) {
	p := &replicate.Prediction{ID: "pred-1", Status: replicate.StatusStarting}
	p.URLs.Get = "https://api.example.com/v1/predictions/pred-1"
	return &domain.GenerationJob{Prompt: "a cat", ExternalJobID: p.ID, StatusURL: p.URLs.Get}, p
}

func TestPollerSucceedsAfterPendingPolls(t *testing.T) {
	fake := &fakePredictions{
		statuses: []string{replicate.StatusProcessing, replicate.StatusProcessing, replicate.StatusSucceeded},
		output:   "https://cdn.example.com/out.jpg",
	}
	clock := clocktest.New(time.Unix(0, 0))
	poller := NewPoller(fake, clock, 2*time.Second, 10, nil)
	job, pred := startedJob()

	got, err := poller.Await(context.Background(), job, pred)
	require.NoError(t, err)
	assert.Equal(t, replicate.StatusSucceeded, got.Status)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestPollerReportsUpstreamFailure(t *testing.T) {
	fake := &fakePredictions{statuses: []string{replicate.StatusFailed}}
	poller := NewPoller(fake, clocktest.New(time.Unix(0, 0)), time.Second, 5, nil)
	job, pred := startedJob()

	_, err := poller.Await(context.Background(), job, pred)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, replicate.StatusFailed, upstream.Status)
	assert.Contains(t, upstream.Message, "NSFW")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestPollerTimesOutAfterExactlyMaxAttempts(t *testing.T) {
	fake := &fakePredictions{}
	clock := clocktest.New(time.Unix(0, 0))
	poller := NewPoller(fake, clock, time.Second, 4, nil)
	job, pred := startedJob()

	_, err := poller.Await(context.Background(), job, pred)
	assert.ErrorIs(t, err, domain.ErrGenerationTimedOut)
	assert.Equal(t, 4, fake.gets)
	assert.Equal(t, 4, job.Attempts)
	assert.Equal(t, domain.JobStatusTimedOut, job.Status)
	assert.Len(t, clock.Sleeps(), 4)
}

func TestPollerTreatsUnknownStatusAsPending(t *testing.T) {
	fake := &fakePredictions{statuses: []string{"canceled", "canceled"}}
	poller := NewPoller(fake, clocktest.New(time.Unix(0, 0)), time.Second, 2, nil)
	job, pred := startedJob()

	_, err := poller.Await(context.Background(), job, pred)
	assert.ErrorIs(t, err, domain.ErrGenerationTimedOut)
	assert.Equal(t, "canceled", job.UpstreamState)
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	fake := &fakePredictions{}
	poller := NewPoller(fake, clocktest.New(time.Unix(0, 0)), time.Second, 100, nil)
	job, pred := startedJob()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := poller.Await(ctx, job, pred)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.gets)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.False(t, job.Status.Terminal())
	assert.True(t, job.FinishedAt.IsZero())
}

func TestPollerPropagatesTransportError(t *testing.T) {
	fake := &fakePredictions{getErr: &domain.UpstreamError{Service: "replicate", Status: "502"}}
	poller := NewPoller(fake, clocktest.New(time.Unix(0, 0)), time.Second, 5, nil)
	job, pred := startedJob()

	_, err := poller.Await(context.Background(), job, pred)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 1, job.Attempts)
}
