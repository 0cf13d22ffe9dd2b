// internal/adapters/backend/client.go
package backend

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"loo_review/internal/adapters/observability"
	"loo_review/internal/domain"
)

const (
	userAgent = "loo-review/1.0"
	maxBody   = 1 << 20
)

// Client talks to the review backend: reviews, reports and auth.
type Client struct {
	base       string
	origin     string // scheme://host of base, for relative image URLs
	hc         *http.Client
	tokens     domain.TokenSource
	rl         *rate.Limiter
	categories []domain.Category
}

func New(base string, tokens domain.TokenSource, categories []domain.Category, rps int) (*Client, error) {
	base = strings.TrimRight(base, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", base)
	}
	if len(categories) != domain.CategoryCount {
		return nil, fmt.Errorf("need %d rating categories, got %d", domain.CategoryCount, len(categories))
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:       base,
		origin:     u.Scheme + "://" + u.Host,
		hc:         newHTTPClient(),
		tokens:     tokens,
		rl:         rate.NewLimiter(rate.Limit(rps), rps),
		categories: categories,
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          25,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 2 {
				return fmt.Errorf("attempted redirect to %s", req.URL)
			}
			return nil
		},
	}
}

// ---- Internals ----

type request struct {
	method   string
	path     string
	body     []byte
	ctype    string
	endpoint string // metrics label
	fallback string // message when neither the body nor the transport explains the failure
	retry    bool   // only for idempotent calls
	// authCall marks credential exchanges: a 401 there is a failed sign-in,
	// not an expired session, and no bearer token is sent.
	authCall bool
}

// do sends r and returns the body of a 2xx response. GETs flagged retry are
// retried on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, &domain.TransportError{Message: err.Error(), Err: err}
	}

	var tok string
	if !r.authCall && c.tokens != nil {
		t, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		tok = t
	}

	attempts := 1
	if r.retry {
		attempts = 4
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		// build a fresh request each attempt
		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, c.base+r.path, body)
		if err != nil {
			return nil, err
		}
		if r.ctype != "" {
			req.Header.Set("Content-Type", r.ctype)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("backend", r.endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, &domain.TransportError{Message: ctx.Err().Error(), Err: ctx.Err()}
			}
			lastErr = &domain.TransportError{Message: errorMessage(nil, err, r.fallback), Err: err}
			if i < attempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return nil, lastErr
		}

		b, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		resp.Body.Close()
		observability.ObserveExternal("backend", r.endpoint, resp.StatusCode, time.Since(start))
		if rerr != nil {
			return nil, &domain.TransportError{Status: resp.StatusCode, Message: errorMessage(nil, rerr, r.fallback), Err: rerr}
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return b, nil

		case resp.StatusCode == http.StatusUnauthorized && !r.authCall:
			return nil, &domain.AuthError{Reason: errorMessage(b, nil, "unauthorized")}

		case retryable(resp.StatusCode) && i < attempts-1:
			lastErr = statusError(resp.StatusCode, b, r.fallback)
			wait := retryAfter(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			if sleepCtx(ctx, wait) {
				continue
			}
			return nil, lastErr

		default:
			return nil, statusError(resp.StatusCode, b, r.fallback)
		}
	}
	return nil, lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func statusError(status int, body []byte, fallback string) error {
	var cause error
	switch status {
	case http.StatusNotFound:
		cause = domain.ErrNotFound
	case http.StatusForbidden:
		cause = domain.ErrForbidden
	default:
		cause = fmt.Errorf("remote %d", status)
	}
	return &domain.TransportError{Status: status, Message: errorMessage(body, nil, fallback), Err: cause}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
