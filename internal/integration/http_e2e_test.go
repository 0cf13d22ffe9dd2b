//go:build integration || !unit

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"loo_review/internal/adapters/backend"
	"loo_review/internal/adapters/geocoding"
	server "loo_review/internal/adapters/http_server"
	"loo_review/internal/adapters/photo"
	redisad "loo_review/internal/adapters/redis"
	"loo_review/internal/app"
	"loo_review/internal/domain"
	"loo_review/internal/storage/sqlstore"
)

// ---------- fake remote API ----------

type upload struct {
	auth   string
	fields map[string]string
	ctype  string
	size   int
}

type remoteAPI struct {
	mu      sync.Mutex
	uploads []upload
	records []map[string]any
	mes     int
}

func (a *remoteAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","user":{"id":7,"full_name":"Ada","email":"ada@example.com"}}`))
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.mes++
		a.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"full_name":"Ada","email":"ada@example.com"}`))
	})
	mux.HandleFunc("/api/bathrooms", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(a.records)
			return
		}
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u := upload{auth: r.Header.Get("Authorization"), fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			u.fields[k] = v[0]
		}
		if fh := r.MultipartForm.File["image"]; len(fh) == 1 {
			u.ctype = fh[0].Header.Get("Content-Type")
			u.size = int(fh[0].Size)
		}
		a.uploads = append(a.uploads, u)

		rec := map[string]any{
			"id":                 "101",
			"user_id":            7,
			"image_url":          "/uploads/101.jpg",
			"location":           u.fields["location"],
			"latitude":           u.fields["latitude"],
			"longitude":          u.fields["longitude"],
			"comments":           u.fields["comments"],
			"cleanliness_rating": 5,
			"privacy_rating":     4,
			"smell_rating":       4,
			"vibe_rating":        3,
			"accessories_rating": 4,
		}
		a.records = append([]map[string]any{rec}, a.records...)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "bathroom": rec})
	})
	return mux
}

func nominatim(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/reverse", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("reverse lookup without User-Agent")
		}
		_, _ = w.Write([]byte(`{"display_name":"Ferry Building, San Francisco"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ---------- wiring ----------

type stack struct {
	api    *httptest.Server
	closer func()
}

func buildStack(t *testing.T, remoteURL, geoURL, dbPath string, mr *miniredis.Miniredis) *stack {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, "sqlite3", "file:"+dbPath+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open session db: %v", err)
	}
	if err := sqlstore.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	session := app.NewSession(sqlstore.New(db))
	client, err := backend.New(remoteURL+"/api", session, domain.DefaultCategories, 50)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	session.UseAuth(client)
	if err := session.Load(ctx); err != nil {
		t.Fatalf("session load: %v", err)
	}

	cache := redisad.New(mr.Addr(), "", 0)
	geo, err := geocoding.New(geoURL, "loo-review-test/1.0", 50, cache)
	if err != nil {
		t.Fatalf("geocoder: %v", err)
	}
	mapView := app.NewMapView()
	gallery := app.NewGallery(client, cache, time.Minute, session, mapView)
	wf := app.NewWorkflow(domain.DefaultCategories, app.NewValidator(domain.DefaultCategories, app.DefaultPolicyTerms), client, geo, session, gallery)

	h := server.NewHandlers(wf, session, gallery, app.NewModeration(client, session, gallery), photo.New(1600), mapView, time.Hour)
	s := server.New(10 * time.Second)
	s.MountHandlers(h)
	api := httptest.NewServer(s.Mux())
	return &stack{api: api, closer: func() {
		api.Close()
		h.Close()
		_ = cache.Close()
		_ = db.Close()
	}}
}

func (s *stack) call(t *testing.T, method, path string, body any, want int) []byte {
	t.Helper()
	var rdr io.Reader
	ctype := "application/json"
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr, ctype = bytes.NewReader(b), "image/jpeg"
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.api.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", ctype)
	}
	resp, err := s.api.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want %d body=%s", method, path, resp.StatusCode, want, out)
	}
	return out
}

func photoBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// ---------- test ----------

func TestReviewFlow_EndToEnd(t *testing.T) {
	remote := &remoteAPI{}
	remoteSrv := httptest.NewServer(remote.handler(t))
	defer remoteSrv.Close()
	geoSrv := nominatim(t)
	mr := miniredis.RunT(t)
	dbPath := filepath.Join(t.TempDir(), "session.db")

	st := buildStack(t, remoteSrv.URL, geoSrv.URL, dbPath, mr)

	// bad password surfaces the server's message
	st.call(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"}, http.StatusUnauthorized)
	st.call(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "ada@example.com", "password": "hunter2"}, http.StatusOK)
	st.call(t, http.MethodPost, "/v1/terms/accept", nil, http.StatusOK)

	var draft struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(st.call(t, http.MethodPost, "/v1/drafts", nil, http.StatusCreated), &draft); err != nil {
		t.Fatal(err)
	}
	base := "/v1/drafts/" + draft.ID
	st.call(t, http.MethodPut, base+"/image?name=stall.jpg", photoBytes(t), http.StatusOK)
	for i, c := range domain.DefaultCategories {
		st.call(t, http.MethodPut, base+"/ratings/"+string(c), map[string]int{"value": 5 - i%2}, http.StatusOK)
	}
	st.call(t, http.MethodPost, base+"/location/point", domain.Coordinates{Lat: 37.7955, Lng: -122.3937}, http.StatusOK)
	st.call(t, http.MethodPut, base+"/comments", map[string]string{"comments": "spotless"}, http.StatusOK)

	var rec domain.ReviewRecord
	if err := json.Unmarshal(st.call(t, http.MethodPost, base+"/submit", nil, http.StatusCreated), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID != "101" || rec.UserID != "7" {
		t.Fatalf("record ids: %+v", rec)
	}
	if rec.ImageURL != remoteSrv.URL+"/uploads/101.jpg" {
		t.Fatalf("image url=%q", rec.ImageURL)
	}
	if rec.Coordinates == nil || rec.Location != "Ferry Building, San Francisco" {
		t.Fatalf("location not carried: %+v", rec)
	}

	remote.mu.Lock()
	if len(remote.uploads) != 1 {
		remote.mu.Unlock()
		t.Fatalf("uploads=%d want 1", len(remote.uploads))
	}
	up := remote.uploads[0]
	remote.mu.Unlock()
	if up.auth != "Bearer tok-1" {
		t.Fatalf("authorization=%q", up.auth)
	}
	if up.ctype != "image/jpeg" || up.size == 0 {
		t.Fatalf("image part: ctype=%q size=%d", up.ctype, up.size)
	}
	for _, f := range []string{"cleanliness_rating", "privacy_rating", "smell_rating", "vibe_rating", "accessories_rating"} {
		if up.fields[f] == "" {
			t.Fatalf("missing form field %s: %v", f, up.fields)
		}
	}
	if up.fields["latitude"] != "37.7955" || up.fields["longitude"] != "-122.3937" {
		t.Fatalf("coordinates sent: lat=%q lon=%q", up.fields["latitude"], up.fields["longitude"])
	}
	if !mr.Exists("looreview:geo:rev:37.7955,-122.3937") {
		t.Fatalf("reverse lookup not cached in redis; keys=%v", mr.Keys())
	}

	list := st.call(t, http.MethodGet, "/v1/reviews?refresh=true", nil, http.StatusOK)
	if !strings.Contains(string(list), `"id":"101"`) || !strings.Contains(string(list), `"owned":true`) {
		t.Fatalf("gallery missing the new review: %s", list)
	}
	st.closer()

	// a restart restores the session from disk and re-checks the token
	st2 := buildStack(t, remoteSrv.URL, geoSrv.URL, dbPath, mr)
	defer st2.closer()
	me := st2.call(t, http.MethodGet, "/v1/auth/me", nil, http.StatusOK)
	if !strings.Contains(string(me), `"signed_in":true`) || !strings.Contains(string(me), `"terms_accepted":true`) {
		t.Fatalf("session not restored: %s", me)
	}
	remote.mu.Lock()
	mes := remote.mes
	remote.mu.Unlock()
	if mes != 1 {
		t.Fatalf("/auth/me calls=%d want 1", mes)
	}
}
