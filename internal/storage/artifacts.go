package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

// PublicPrefix is the URL path artifacts are served under.
const PublicPrefix = "/images/"

var errBackendClosed = errors.New("storage: backend stopped reading")

// Options configures an ArtifactStore.
type Options struct {
	Backend       Backend
	Retention     time.Duration
	PublicBaseURL string
	Clock         infra.Clock
	Logger        *infra.Logger
}

// ArtifactStore gives generated blobs an identity and a bounded lifetime on
// top of a Backend. Artifacts are never modified after Put.
//
// The reaper deletes artifacts irreversibly. A reference handed out earlier,
// including one embedded in an unpaid checkout session or an unredeemed
// download token, is dead once its artifact has aged out.
type ArtifactStore struct {
	backend    Backend
	retention  time.Duration
	publicBase string
	clock      infra.Clock
	logger     *infra.Logger
}

// SweepResult summarizes one reaper pass.
type SweepResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// NewArtifactStore validates options and returns a store.
func NewArtifactStore(opts Options) (*ArtifactStore, error) {
	if opts.Backend == nil {
		return nil, errors.New("storage: backend is required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("storage: retention must be positive")
	}
	clock := opts.Clock
	if clock == nil {
		clock = infra.SystemClock{}
	}
	return &ArtifactStore{
		backend:    opts.Backend,
		retention:  opts.Retention,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		clock:      clock,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Retention returns the configured artifact lifetime.
func (s *ArtifactStore) Retention() time.Duration { return s.retention }

// Put stores data as a new artifact of kind.
func (s *ArtifactStore) Put(ctx context.Context, kind domain.ArtifactKind, data []byte, ext string) (domain.Artifact, error) {
	id := newID(kind, ext)
	info, err := s.backend.Put(ctx, id, bytes.NewReader(data), int64(len(data)), contentTypeFor(id))
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return s.toArtifact(info), nil
}

// PutStream stores whatever write produces. If write fails the backend write
// is aborted and nothing is persisted.
func (s *ArtifactStore) PutStream(ctx context.Context, kind domain.ArtifactKind, ext string, write func(io.Writer) error) (domain.Artifact, error) {
	id := newID(kind, ext)
	pr, pw := io.Pipe()
	writeErr := make(chan error, 1)
	go func() {
		err := write(pw)
		pw.CloseWithError(err)
		writeErr <- err
	}()
	info, err := s.backend.Put(ctx, id, pr, -1, contentTypeFor(id))
	// Unblocks the writer if the backend stopped reading early.
	pr.CloseWithError(errBackendClosed)
	werr := <-writeErr
	if err != nil {
		if werr != nil && errors.Is(err, werr) {
			return domain.Artifact{}, werr
		}
		return domain.Artifact{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if werr != nil {
		_ = s.backend.Delete(context.WithoutCancel(ctx), id)
		return domain.Artifact{}, werr
	}
	return s.toArtifact(info), nil
}

// Resolve returns the artifact for id. Artifacts past retention are reported
// as not found even if the reaper has not removed them yet.
func (s *ArtifactStore) Resolve(ctx context.Context, id string) (domain.Artifact, error) {
	info, err := s.backend.Stat(ctx, id)
	if err != nil {
		return domain.Artifact{}, s.translate(err, id)
	}
	artifact := s.toArtifact(info)
	if s.expired(artifact) {
		return domain.Artifact{}, fmt.Errorf("artifact %s: %w", id, domain.ErrNotFound)
	}
	return artifact, nil
}

// Open resolves id and returns its content. Callers must close the reader.
func (s *ArtifactStore) Open(ctx context.Context, id string) (io.ReadCloser, domain.Artifact, error) {
	rc, info, err := s.backend.Open(ctx, id)
	if err != nil {
		return nil, domain.Artifact{}, s.translate(err, id)
	}
	artifact := s.toArtifact(info)
	if s.expired(artifact) {
		rc.Close()
		return nil, domain.Artifact{}, fmt.Errorf("artifact %s: %w", id, domain.ErrNotFound)
	}
	return rc, artifact, nil
}

// ReadAll loads the artifact fully into memory.
func (s *ArtifactStore) ReadAll(ctx context.Context, id string) ([]byte, domain.Artifact, error) {
	rc, artifact, err := s.Open(ctx, id)
	if err != nil {
		return nil, domain.Artifact{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.Artifact{}, fmt.Errorf("%w: read %s: %v", domain.ErrStorage, id, err)
	}
	return data, artifact, nil
}

// URL returns the public location of an artifact.
func (s *ArtifactStore) URL(a domain.Artifact) string {
	return s.publicBase + PublicPrefix + url.PathEscape(a.ID)
}

// IDFromURL extracts the artifact id when raw points into this store.
func (s *ArtifactStore) IDFromURL(raw string) (string, bool) {
	prefix := s.publicBase + PublicPrefix
	if s.publicBase == "" || !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(raw, prefix)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	id, err := url.PathUnescape(rest)
	if err != nil || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Sweep deletes every artifact older than the retention window.
func (s *ArtifactStore) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	objects, err := s.backend.List(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		if !s.expired(s.toArtifact(obj)) {
			continue
		}
		if err := s.backend.Delete(ctx, obj.Key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			res.Failed++
			s.logger.Warn().Err(err).Str("artifact", obj.Key).Msg("storage: reap failed")
			continue
		}
		res.Deleted++
	}
	return res, nil
}

func (s *ArtifactStore) expired(a domain.Artifact) bool {
	return a.Age(s.clock.Now()) > s.retention
}

func (s *ArtifactStore) toArtifact(info ObjectInfo) domain.Artifact {
	ct := info.ContentType
	if ct == "" {
		ct = contentTypeFor(info.Key)
	}
	return domain.Artifact{
		ID:          info.Key,
		Kind:        domain.KindFromID(path.Base(info.Key)),
		Path:        info.Key,
		ContentType: ct,
		Size:        info.Size,
		CreatedAt:   info.ModTime,
	}
}

func (s *ArtifactStore) translate(err error, id string) error {
	if errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("artifact %s: %w", id, domain.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

func newID(kind domain.ArtifactKind, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s_%s.%s", uuid.NewString(), kind.Suffix(), ext)
}
