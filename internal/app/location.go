package app

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"loo_review/internal/domain"
)

// LocationResolver reconciles place search, map/geolocation points and typed
// text into the draft's (text, coordinates) pair.
type LocationResolver struct {
	holder *DraftHolder
	geo    domain.Geocoder
}

func NewLocationResolver(h *DraftHolder, geo domain.Geocoder) *LocationResolver {
	return &LocationResolver{holder: h, geo: geo}
}

// PlaceText composes "name, address", or whichever of the two is present.
func PlaceText(p domain.Place) string {
	name, addr := strings.TrimSpace(p.Name), strings.TrimSpace(p.Address)
	switch {
	case name != "" && addr != "":
		return name + ", " + addr
	case addr != "":
		return addr
	default:
		return name
	}
}

// SelectPlace writes text and coordinates together.
func (r *LocationResolver) SelectPlace(p domain.Place) error {
	if p.Coordinates == nil || !p.Coordinates.Valid() {
		return domain.ErrPlaceWithoutGeometry
	}
	text := PlaceText(p)
	if text == "" {
		text = r.holder.Snapshot().LocationText
	}
	r.holder.SetLocation(text, p.Coordinates)
	return nil
}

// SelectPoint handles a map click or "use current location". The address from a
// reverse lookup replaces the text; on lookup failure the formatted coordinates do.
func (r *LocationResolver) SelectPoint(ctx context.Context, c domain.Coordinates) (string, error) {
	if !c.Valid() {
		return "", domain.ErrInvalidInput
	}
	text := c.String()
	if r.geo != nil {
		addr, err := r.geo.Reverse(ctx, c)
		switch {
		case err != nil:
			log.Warn().Err(err).Float64("lat", c.Lat).Float64("lng", c.Lng).Msg("reverse geocode failed, using coordinates")
		case strings.TrimSpace(addr) != "":
			text = addr
		}
	}
	r.holder.SetLocation(text, &c)
	return text, nil
}

// EditText applies a manual edit.
func (r *LocationResolver) EditText(text string) (clearedCoords bool) {
	return r.holder.EditLocationText(text)
}

// Search proxies place suggestions from the geocoder.
func (r *LocationResolver) Search(ctx context.Context, q string) ([]domain.Place, error) {
	if r.geo == nil || strings.TrimSpace(q) == "" {
		return nil, nil
	}
	return r.geo.Search(ctx, q)
}

// MapView is the headless map state: a center, the pins, and click subscribers.
type MapView struct {
	mu        sync.RWMutex
	center    domain.Coordinates
	pins      []domain.Pin
	listeners []func(ctx context.Context, c domain.Coordinates)
}

// DefaultCenter is where the map opens when nothing is selected.
var DefaultCenter = domain.Coordinates{Lat: 37.7749, Lng: -122.4194}

func NewMapView() *MapView { return &MapView{center: DefaultCenter} }

func (m *MapView) OnSelect(cb func(ctx context.Context, c domain.Coordinates)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, cb)
}

func (m *MapView) Center(c domain.Coordinates) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = c
}

func (m *MapView) SetPins(pins []domain.Pin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins = append([]domain.Pin(nil), pins...)
}

// Click emits a selection to every subscriber, in registration order.
func (m *MapView) Click(ctx context.Context, c domain.Coordinates) {
	m.mu.RLock()
	ls := append([]func(context.Context, domain.Coordinates){}, m.listeners...)
	m.mu.RUnlock()
	for _, cb := range ls {
		cb(ctx, c)
	}
}

func (m *MapView) State() (domain.Coordinates, []domain.Pin) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.center, append([]domain.Pin(nil), m.pins...)
}

var _ domain.LocationProvider = (*MapView)(nil)
