// Package vision fetches remote images and turns them into inline data URIs
// suitable for multimodal model requests.
package vision

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxSize     = 1024
	DefaultQuality     = 85
	DefaultTimeout     = 15 * time.Second
	DefaultAttempts    = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultConcurrency = 4
	DefaultMaxBytes    = 20 << 20
)

var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
}

var ErrImageTooLarge = errors.New("image exceeds size limit")

// Resolver downloads and normalizes images. It is safe for concurrent use;
// concurrent requests for the same URL share one download.
type Resolver struct {
	client      *http.Client
	maxSize     int
	quality     int
	timeout     time.Duration
	attempts    int
	retryDelay  time.Duration
	concurrency int
	maxBytes    int64

	group singleflight.Group
}

// NewResolverParams configures a Resolver. Zero values select the defaults;
// a negative RetryDelay retries without waiting.
// HTTPClient overrides the client built from InsecureTLS.
type NewResolverParams struct {
	MaxSize     int
	Quality     int
	Timeout     time.Duration
	Attempts    int
	RetryDelay  time.Duration
	Concurrency int
	MaxBytes    int64
	InsecureTLS bool
	HTTPClient  *http.Client
}

func NewResolver(params NewResolverParams) *Resolver {
	r := &Resolver{
		client:      params.HTTPClient,
		maxSize:     params.MaxSize,
		quality:     params.Quality,
		timeout:     params.Timeout,
		attempts:    params.Attempts,
		retryDelay:  params.RetryDelay,
		concurrency: params.Concurrency,
		maxBytes:    params.MaxBytes,
	}
	if r.maxSize <= 0 {
		r.maxSize = DefaultMaxSize
	}
	if r.quality <= 0 {
		r.quality = DefaultQuality
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.attempts <= 0 {
		r.attempts = DefaultAttempts
	}
	if r.retryDelay < 0 {
		r.retryDelay = 0
	} else if r.retryDelay == 0 {
		r.retryDelay = DefaultRetryDelay
	}
	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}
	if r.maxBytes <= 0 {
		r.maxBytes = DefaultMaxBytes
	}
	if r.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if params.InsecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for intranet image hosts
		}
		r.client = &http.Client{Transport: transport}
	}
	return r
}

// Resolve returns the image at url as a JPEG data URI. Inline data URIs are
// passed through untouched. Fetching is retried with a fixed delay.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, error) {
	if strings.HasPrefix(url, "data:image/") {
		return url, nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported image url %q", url)
	}

	v, err, _ := r.group.Do(url, func() (any, error) {
		return util.RetryFixed(ctx, r.attempts, r.retryDelay, func(ctx context.Context) (string, error) {
			data, err := r.fetch(ctx, url)
			if err != nil {
				return "", err
			}
			return Normalize(data, r.maxSize, r.quality)
		})
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ResolveAll resolves urls with bounded concurrency. The result is aligned with
// urls; an entry is empty when that image could not be resolved.
func (r *Resolver) ResolveAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	if len(urls) == 0 {
		return out
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			uri, err := r.Resolve(ctx, u)
			if err != nil {
				logger.Warn("[Vision] Skipping image", "url", u, "err", err)
				return nil
			}
			out[i] = uri
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Compact drops unresolved entries while keeping order.
func Compact(resolved []string) []string {
	out := make([]string, 0, len(resolved))
	for _, s := range resolved {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}
