package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"loo_review/internal/app"
	"loo_review/internal/domain"
)

// ---- fakes ----

type fakeBackend struct {
	mu        sync.Mutex
	submitted []domain.ReviewDraft
	records   []domain.ReviewRecord
	deleted   []string
	reports   []domain.Report
	lists     int

	submitErr error
	listErr   error
	deleteErr error
	// gate, when set, blocks SubmitReview until closed; entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
	owner   string
}

func (f *fakeBackend) SubmitReview(ctx context.Context, d domain.ReviewDraft) (domain.ReviewRecord, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, d)
	n := len(f.submitted)
	gate, entered, err := f.gate, f.entered, f.submitErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.ReviewRecord{}, err
	}
	return domain.ReviewRecord{
		ID:            "r" + strconv.Itoa(n),
		UserID:        f.owner,
		Ratings:       d.Ratings,
		OverallRating: float64(domain.OverallOf(d.Ratings)),
		Location:      d.TrimmedLocation(),
		Coordinates:   d.Coordinates,
		Comments:      d.Comments,
	}, nil
}

func (f *fakeBackend) ListReviews(ctx context.Context) ([]domain.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.ReviewRecord(nil), f.records...), nil
}

func (f *fakeBackend) DeleteReview(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Report(ctx context.Context, r domain.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeBackend) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeAuth struct {
	result domain.AuthResult
	err    error
	me     domain.User
	meErr  error
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	return f.result, f.err
}
func (f *fakeAuth) Register(ctx context.Context, fullName, email, password string) (domain.AuthResult, error) {
	return f.result, f.err
}
func (f *fakeAuth) Google(ctx context.Context, credential string) (domain.AuthResult, error) {
	return f.result, f.err
}
func (f *fakeAuth) Apple(ctx context.Context, identityToken, fullName string) (domain.AuthResult, error) {
	return f.result, f.err
}
func (f *fakeAuth) Me(ctx context.Context) (domain.User, error) { return f.me, f.meErr }

type memStore struct {
	mu    sync.Mutex
	state domain.SessionState
	saves int
}

func (m *memStore) Load(ctx context.Context) (domain.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memStore) Save(ctx context.Context, s domain.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.saves++
	return nil
}

type fakeGeo struct {
	address string
	err     error
	places  []domain.Place
}

func (f *fakeGeo) Reverse(ctx context.Context, c domain.Coordinates) (string, error) {
	return f.address, f.err
}
func (f *fakeGeo) Search(ctx context.Context, q string) ([]domain.Place, error) {
	return f.places, nil
}

// jsonCache mimics the real adapters: values round-trip through JSON.
type jsonCache struct {
	mu    sync.Mutex
	store map[string][]byte
	gets  int
}

func (c *jsonCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *jsonCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}

func (c *jsonCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

type fakePhotos struct {
	gps *domain.Coordinates
}

func (f *fakePhotos) Prepare(name string, data []byte) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, errors.New("empty")
	}
	return domain.Image{Name: name, MIMEType: "image/jpeg", Data: data}, nil
}

func (f *fakePhotos) Coordinates(data []byte) (*domain.Coordinates, bool) {
	return f.gps, f.gps != nil
}

// ---- fixture ----

type fixture struct {
	backend *fakeBackend
	store   *memStore
	geo     *fakeGeo
	cache   *jsonCache
	session *app.Session
	gallery *app.Gallery
	mapView *app.MapView
	wf      *app.Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: &fakeBackend{},
		store:   &memStore{},
		geo:     &fakeGeo{address: "1 Market St, San Francisco"},
		cache:   &jsonCache{},
		mapView: app.NewMapView(),
	}
	f.session = app.NewSession(f.store)
	f.gallery = app.NewGallery(f.backend, f.cache, 0, f.session, f.mapView)
	f.wf = app.NewWorkflow(domain.DefaultCategories, app.NewValidator(domain.DefaultCategories, app.DefaultPolicyTerms), f.backend, f.geo, f.session, f.gallery)
	return f
}

func jpegImage() domain.Image {
	return domain.Image{Name: "loo.jpg", MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0}}
}

// fill makes the composer's draft submittable.
func fill(t *testing.T, c *app.Composer) {
	t.Helper()
	h := c.Draft()
	h.SetImage(jpegImage())
	for _, cat := range domain.DefaultCategories {
		if err := h.SetRating(cat, 4); err != nil {
			t.Fatalf("set rating: %v", err)
		}
	}
	h.EditLocationText("Central Station")
}
