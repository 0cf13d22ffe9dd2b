package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"loo_review/internal/domain"
)

const galleryCacheKey = "reviews:all"

// Gallery is the client's in-memory list of persisted reviews, newest first.
type Gallery struct {
	backend  domain.ReviewBackend
	cache    domain.Cache
	cacheTTL time.Duration
	session  *Session
	mapView  domain.LocationProvider

	mu      sync.RWMutex
	records []domain.ReviewRecord
	loaded  bool
}

func NewGallery(b domain.ReviewBackend, c domain.Cache, ttl time.Duration, s *Session, m domain.LocationProvider) *Gallery {
	return &Gallery{backend: b, cache: c, cacheTTL: ttl, session: s, mapView: m}
}

// Refresh reloads the list, from cache when fresh.
func (g *Gallery) Refresh(ctx context.Context) error {
	var recs []domain.ReviewRecord
	hit := false
	if g.cache != nil {
		hit, _ = g.cache.Get(ctx, galleryCacheKey, &recs)
	}
	if !hit {
		var err error
		recs, err = g.backend.ListReviews(ctx)
		if err != nil {
			return g.session.HandleError(ctx, err)
		}
		if g.cache != nil {
			if err := g.cache.Set(ctx, galleryCacheKey, recs, int(g.cacheTTL.Seconds())); err != nil {
				log.Warn().Err(err).Msg("gallery cache set failed")
			}
		}
	}

	g.mu.Lock()
	g.records = recs
	g.loaded = true
	g.mu.Unlock()
	g.publishPins()
	return nil
}

// Reload drops the cached list and fetches it from the backend.
func (g *Gallery) Reload(ctx context.Context) error {
	g.invalidate(ctx)
	return g.Refresh(ctx)
}

// List returns the visible records, hiding anything by a blocked user.
func (g *Gallery) List(ctx context.Context) ([]domain.ReviewRecord, error) {
	g.mu.RLock()
	loaded := g.loaded
	g.mu.RUnlock()
	if !loaded {
		if err := g.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ReviewRecord, 0, len(g.records))
	for _, r := range g.records {
		if r.UserID != "" && g.session.IsBlocked(r.UserID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (g *Gallery) Get(ctx context.Context, id string) (domain.ReviewRecord, error) {
	recs, err := g.List(ctx)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ReviewRecord{}, domain.ErrNotFound
}

// Prepend adds a freshly submitted record to the front of the list.
func (g *Gallery) Prepend(ctx context.Context, r domain.ReviewRecord) {
	g.mu.Lock()
	g.records = append([]domain.ReviewRecord{r}, g.records...)
	g.mu.Unlock()
	g.invalidate(ctx)
	g.publishPins()
}

// Delete removes an owned record after the backend confirms the delete.
func (g *Gallery) Delete(ctx context.Context, id string) error {
	rec, err := g.Get(ctx, id)
	if err != nil {
		return err
	}
	u, ok := g.session.User()
	if !ok {
		return domain.ErrNotSignedIn
	}
	if rec.UserID == "" || rec.UserID != u.ID {
		return fmt.Errorf("%w: review %s belongs to another user", domain.ErrForbidden, id)
	}
	if err := g.backend.DeleteReview(ctx, id); err != nil {
		return g.session.HandleError(ctx, err)
	}

	g.mu.Lock()
	out := g.records[:0:0]
	for _, r := range g.records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	g.records = out
	g.mu.Unlock()
	g.invalidate(ctx)
	g.publishPins()
	log.Info().Str("record", id).Msg("review deleted")
	return nil
}

// Select centres the map on a record that has coordinates.
func (g *Gallery) Select(ctx context.Context, id string) (domain.ReviewRecord, error) {
	rec, err := g.Get(ctx, id)
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	if rec.Coordinates != nil && g.mapView != nil {
		g.mapView.Center(*rec.Coordinates)
	}
	return rec, nil
}

// Pins lists the visible records that carry coordinates.
func (g *Gallery) Pins(ctx context.Context) ([]domain.Pin, error) {
	recs, err := g.List(ctx)
	if err != nil {
		return nil, err
	}
	return pinsOf(recs), nil
}

// Reapply re-publishes pins after the blocked-user list changes.
func (g *Gallery) Reapply() { g.publishPins() }

func (g *Gallery) publishPins() {
	if g.mapView == nil {
		return
	}
	g.mu.RLock()
	visible := make([]domain.ReviewRecord, 0, len(g.records))
	for _, r := range g.records {
		if r.UserID == "" || !g.session.IsBlocked(r.UserID) {
			visible = append(visible, r)
		}
	}
	g.mu.RUnlock()
	g.mapView.SetPins(pinsOf(visible))
}

func pinsOf(recs []domain.ReviewRecord) []domain.Pin {
	out := make([]domain.Pin, 0, len(recs))
	for _, r := range recs {
		if r.Coordinates == nil {
			continue
		}
		out = append(out, domain.Pin{
			RecordID:    r.ID,
			Title:       r.Location,
			Coordinates: *r.Coordinates,
			Stars:       domain.Overall(r.OverallRating).Stars(),
		})
	}
	return out
}

func (g *Gallery) invalidate(ctx context.Context) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Del(ctx, galleryCacheKey); err != nil {
		log.Warn().Err(err).Msg("gallery cache invalidation failed")
	}
}
