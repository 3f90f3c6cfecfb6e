// Package patcher talks to the upstream patch-distribution service.
package patcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/version"
)

// Client is the narrow view of the upstream service the orchestrator needs.
type Client interface {
	// Current probes the branch's current release without persisting it.
	Current(ctx context.Context, branch version.Branch) (*patch.Patch, error)
	FetchManifest(ctx context.Context, element patch.Element) ([]byte, error)
	FetchBundle(ctx context.Context, bundleID uint64) ([]byte, error)
}

// ErrNotFound is returned for resources the service does not know.
var ErrNotFound = errors.New(messages.PatcherNotFound)

const (
	// DefaultMaxBytes caps a single download.
	DefaultMaxBytes   = int64(512 * 1024 * 1024)
	defaultRetryCount = 1
	retryBackoff      = 250 * time.Millisecond
)

// Snapshot is the JSON document describing a branch's current release.
type Snapshot struct {
	Version  string          `json:"version"`
	Release  string          `json:"release"`
	Elements []patch.Element `json:"elements"`
}

// Patch converts the snapshot into an unstored patch for branch.
func (s Snapshot) Patch(branch version.Branch) (*patch.Patch, error) {
	var v version.Version
	if branch == version.BranchPBE {
		v = version.PBE
	} else {
		parsed, err := version.Parse(s.Version)
		if err != nil {
			return nil, fmt.Errorf(messages.PatcherSnapshotVersionFmt, branch, err)
		}
		if parsed.IsPBE() {
			return nil, fmt.Errorf(messages.PatcherSnapshotVersionFmt, branch, s.Version)
		}
		v = parsed
	}
	p := &patch.Patch{Version: v, Release: s.Release, Elements: s.Elements}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// HTTPClient implements Client over plain HTTP GETs:
//
//	{base}/{branch}/current.json
//	{base}/manifests/{id}.manifest   (unless the element carries a URL)
//	{base}/bundles/{%016X}.bundle
type HTTPClient struct {
	BaseURL  string
	HTTP     *http.Client
	MaxBytes int64
	Retries  int
	sleep    func(time.Duration)
}

// NewHTTPClient returns a client rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, maxBytes int64) *HTTPClient {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		MaxBytes: maxBytes,
		Retries:  defaultRetryCount,
		sleep:    time.Sleep,
	}
}

// Current fetches and decodes the branch snapshot.
func (c *HTTPClient) Current(ctx context.Context, branch version.Branch) (*patch.Patch, error) {
	url := fmt.Sprintf("%s/%s/current.json", c.BaseURL, branch)
	data, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf(messages.PatcherDecodeSnapshotFmt, url, err)
	}
	return snap.Patch(branch)
}

// FetchManifest downloads the element's manifest.
func (c *HTTPClient) FetchManifest(ctx context.Context, element patch.Element) ([]byte, error) {
	url := element.ManifestURL
	if url == "" {
		url = fmt.Sprintf("%s/manifests/%s.manifest", c.BaseURL, element.Manifest)
	}
	return c.get(ctx, url)
}

// FetchBundle downloads one content bundle.
func (c *HTTPClient) FetchBundle(ctx context.Context, bundleID uint64) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/bundles/%016X.bundle", c.BaseURL, bundleID))
}

func (c *HTTPClient) get(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; attempt <= c.Retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf(messages.PatcherCreateRequestFmt, url, err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			if c.shouldRetry(attempt, err, 0) {
				c.sleep(retryBackoff)
				continue
			}
			return nil, fmt.Errorf(messages.PatcherDownloadFailedFmt, url, err)
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		if resp.StatusCode != http.StatusOK {
			status := resp.StatusCode
			statusText := resp.Status
			_ = resp.Body.Close()
			if c.shouldRetry(attempt, nil, status) {
				c.sleep(retryBackoff)
				continue
			}
			return nil, fmt.Errorf(messages.PatcherUnexpectedStatusFmt, url, statusText)
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, c.MaxBytes+1))
		_ = resp.Body.Close()
		if readErr != nil {
			if c.shouldRetry(attempt, readErr, 0) {
				c.sleep(retryBackoff)
				continue
			}
			return nil, fmt.Errorf(messages.PatcherDownloadFailedFmt, url, readErr)
		}
		if int64(len(data)) > c.MaxBytes {
			return nil, fmt.Errorf(messages.PatcherTooLargeFmt, url, len(data), c.MaxBytes)
		}
		return data, nil
	}
	return nil, fmt.Errorf(messages.PatcherDownloadFailedFmt, url, errors.New(messages.PatcherRetryExhausted))
}

func (c *HTTPClient) shouldRetry(attempt int, err error, statusCode int) bool {
	if attempt >= c.Retries {
		return false
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		return errors.As(err, &netErr)
	}
	return statusCode >= 500 && statusCode <= 599
}
