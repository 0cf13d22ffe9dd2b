// Package geocoding resolves coordinates to addresses and place searches to
// coordinates using a Nominatim-compatible service.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"loo_review/internal/adapters/observability"
	"loo_review/internal/domain"
)

const (
	searchLimit = 5
	cacheTTL    = 24 * 60 * 60 // seconds
)

var ErrNoResult = errors.New("geocoder returned no result")

var _ domain.Geocoder = (*Nominatim)(nil)

type Nominatim struct {
	base  string
	ua    string
	hc    *http.Client
	rl    *rate.Limiter
	cache domain.Cache // optional
}

// New builds a client. Public Nominatim requires an identifying User-Agent
// and at most one request per second.
func New(base, userAgent string, rps int, cache domain.Cache) (*Nominatim, error) {
	base = strings.TrimRight(base, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid geocoder URL %q: %w", base, err)
	}
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("geocoder user agent is required")
	}
	if rps <= 0 {
		rps = 1
	}
	return &Nominatim{
		base:  base,
		ua:    userAgent,
		hc:    &http.Client{Timeout: 10 * time.Second},
		rl:    rate.NewLimiter(rate.Limit(rps), 1),
		cache: cache,
	}, nil
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Error       string `json:"error"`
}

type searchHit struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Reverse returns a human-readable address for c.
func (n *Nominatim) Reverse(ctx context.Context, c domain.Coordinates) (string, error) {
	key := fmt.Sprintf("geo:rev:%.4f,%.4f", c.Lat, c.Lng)
	var cached string
	if n.cacheGet(ctx, key, &cached) && cached != "" {
		return cached, nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(c.Lng, 'f', 6, 64))
	q.Set("zoom", "18")

	var out reverseResponse
	if err := n.get(ctx, "reverse", "/reverse?"+q.Encode(), &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrNoResult, out.Error)
	}
	text := strings.TrimSpace(out.DisplayName)
	if text == "" {
		return "", ErrNoResult
	}
	n.cacheSet(ctx, key, text)
	return text, nil
}

// Search returns up to five places matching query. Hits with unparsable coordinates keep no geometry.
func (n *Nominatim) Search(ctx context.Context, query string) ([]domain.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	key := "geo:search:" + strings.ToLower(query)
	var cached []domain.Place
	if n.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(searchLimit))

	var hits []searchHit
	if err := n.get(ctx, "search", "/search?"+q.Encode(), &hits); err != nil {
		return nil, err
	}
	out := make([]domain.Place, 0, len(hits))
	for _, h := range hits {
		p := domain.Place{Name: strings.TrimSpace(h.Name), Address: strings.TrimSpace(h.DisplayName)}
		lat, errLat := strconv.ParseFloat(h.Lat, 64)
		lng, errLng := strconv.ParseFloat(h.Lon, 64)
		if errLat == nil && errLng == nil {
			p.Coordinates = &domain.Coordinates{Lat: lat, Lng: lng}
		}
		out = append(out, p)
	}
	n.cacheSet(ctx, key, out)
	return out, nil
}

func (n *Nominatim) get(ctx context.Context, endpoint, path string, out any) error {
	if err := n.rl.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", n.ua)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := n.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("geocoder", endpoint, 0, time.Since(start))
		return fmt.Errorf("geocoder %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("geocoder", endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoder %s: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geocoder %s: decode: %w", endpoint, err)
	}
	return nil
}

func (n *Nominatim) cacheGet(ctx context.Context, key string, dst any) bool {
	if n.cache == nil {
		return false
	}
	hit, err := n.cache.Get(ctx, key, dst)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("geocoder cache get failed")
		return false
	}
	return hit
}

func (n *Nominatim) cacheSet(ctx context.Context, key string, v any) {
	if n.cache == nil {
		return
	}
	if err := n.cache.Set(ctx, key, v, cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("geocoder cache set failed")
	}
}
