package book

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"customcolors/internal/domain"
)

const maxPageBytes = 32 << 20

// LocalReader resolves URLs that point back into the artifact store.
type LocalReader interface {
	IDFromURL(raw string) (string, bool)
	ReadAll(ctx context.Context, id string) ([]byte, domain.Artifact, error)
}

// Fetcher loads page images. Remote hosts must be on the allowlist; URLs under
// the public artifact prefix are read from the store without a round trip.
type Fetcher struct {
	local   LocalReader
	client  *http.Client
	allowed map[string]struct{}
}

// NewFetcher builds a Fetcher. Hosts are compared case-insensitively without port.
func NewFetcher(local LocalReader, client *http.Client, allowedHosts []string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &Fetcher{local: local, client: client, allowed: allowed}
}

// Fetch returns the bytes behind raw.
func (f *Fetcher) Fetch(ctx context.Context, raw string) ([]byte, error) {
	if f.local != nil {
		if id, ok := f.local.IDFromURL(raw); ok {
			data, _, err := f.local.ReadAll(ctx, id)
			return data, err
		}
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.Invalid(fmt.Sprintf("Invalid image URL: %q", raw))
	}
	if _, ok := f.allowed[strings.ToLower(u.Hostname())]; !ok {
		return nil, domain.Invalid(fmt.Sprintf("Image host %q is not allowed.", u.Hostname()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "image-source", Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{
			Service: "image-source",
			Status:  strconv.Itoa(resp.StatusCode),
			Message: "fetch " + u.Host + u.Path,
		}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		return nil, &domain.UpstreamError{Service: "image-source", Message: err.Error()}
	}
	if len(data) > maxPageBytes {
		return nil, domain.Invalid("Image exceeds the maximum page size.")
	}
	return data, nil
}
