package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"loo_review/internal/app"
	"loo_review/internal/domain"
)

const maxImageUpload = 32 << 20

// draftRegistry holds open composers; idle ones expire after the TTL.
type draftRegistry struct {
	wf    *app.Workflow
	cache *ttlcache.Cache[string, *app.Composer]
}

func newDraftRegistry(wf *app.Workflow, ttl time.Duration) *draftRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := ttlcache.New(ttlcache.WithTTL[string, *app.Composer](ttl))
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *app.Composer]) {
		if reason == ttlcache.EvictionReasonExpired {
			log.Info().Str("draft", item.Key()).Msg("draft expired")
		}
	})
	go c.Start()
	return &draftRegistry{wf: wf, cache: c}
}

func (d *draftRegistry) create() (string, *app.Composer) {
	id := uuid.NewString()
	c := d.wf.NewComposer()
	d.cache.Set(id, c, ttlcache.DefaultTTL)
	return id, c
}

// get touches the entry, extending its TTL.
func (d *draftRegistry) get(id string) (*app.Composer, error) {
	item := d.cache.Get(id)
	if item == nil {
		return nil, fmt.Errorf("%w: draft %s", domain.ErrNotFound, id)
	}
	return item.Value(), nil
}

func (d *draftRegistry) remove(id string) { d.cache.Delete(id) }

func (d *draftRegistry) close() { d.cache.Stop() }

// ---- views ----

type imageView struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type draftView struct {
	ID             string              `json:"id"`
	Image          *imageView          `json:"image,omitempty"`
	Ratings        domain.Ratings      `json:"ratings"`
	LocationText   string              `json:"location_text"`
	Coordinates    *domain.Coordinates `json:"coordinates,omitempty"`
	Comments       string              `json:"comments"`
	Overall        float64             `json:"overall"`
	OverallDisplay string              `json:"overall_display"`
	Stars          int                 `json:"stars"`
	Busy           bool                `json:"busy"`
}

func viewOf(id string, c *app.Composer) draftView {
	d := c.Draft().Snapshot()
	o := domain.OverallOf(d.Ratings)
	v := draftView{
		ID:             id,
		Ratings:        d.Ratings,
		LocationText:   d.LocationText,
		Coordinates:    d.Coordinates,
		Comments:       d.Comments,
		Overall:        float64(o),
		OverallDisplay: o.Display(),
		Stars:          o.Stars(),
		Busy:           c.Busy(),
	}
	if d.Image != nil {
		v.Image = &imageView{Name: d.Image.Name, MIMEType: d.Image.MIMEType, Size: len(d.Image.Data)}
	}
	return v
}

type draftHandler func(w http.ResponseWriter, r *http.Request, id string, c *app.Composer)

// withDraft resolves {id} or answers 404.
func (h *Handlers) withDraft(fn draftHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := h.drafts.get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, id, c)
	}
}

// ---- handlers ----

func (h *Handlers) createDraft(w http.ResponseWriter, r *http.Request) {
	id, c := h.drafts.create()
	w.Header().Set("Location", "/v1/drafts/"+id)
	writeJSON(w, http.StatusCreated, viewOf(id, c))
}

func (h *Handlers) getDraft(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	writeJSON(w, http.StatusOK, viewOf(id, c))
}

func (h *Handlers) deleteDraft(w http.ResponseWriter, r *http.Request) {
	h.drafts.remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// putImage accepts a multipart "image" field or a raw image body.
func (h *Handlers) putImage(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload)
	name := "photo"
	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, hdr, ferr := r.FormFile("image")
		if ferr != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid input", "multipart field \"image\" is required")
			return
		}
		defer f.Close()
		name = hdr.Filename
		data, err = io.ReadAll(f)
	} else {
		if n := r.URL.Query().Get("name"); n != "" {
			name = n
		}
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "Upload failed", err.Error())
		return
	}

	img, err := h.Photos.Prepare(name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	c.Draft().SetImage(img)
	writeJSON(w, http.StatusOK, viewOf(id, c))
}

func (h *Handlers) putRating(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	var in struct {
		Value int `json:"value"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := c.Draft().SetRating(domain.Category(chi.URLParam(r, "category")), in.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(id, c))
}

func (h *Handlers) putComments(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	var in struct {
		Comments string `json:"comments"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	c.Draft().SetComments(in.Comments)
	writeJSON(w, http.StatusOK, viewOf(id, c))
}

func (h *Handlers) putLocationText(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	cleared := c.Location().EditText(in.Text)
	writeJSON(w, http.StatusOK, struct {
		draftView
		CoordinatesCleared bool `json:"coordinates_cleared"`
	}{viewOf(id, c), cleared})
}

func (h *Handlers) selectPlace(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	var p domain.Place
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	if err := c.Location().SelectPlace(p); err != nil {
		writeError(w, err)
		return
	}
	if p.Coordinates != nil {
		c.Picker().Center(*p.Coordinates)
	}
	writeJSON(w, http.StatusOK, viewOf(id, c))
}

// selectPoint is a map click or a device-location fix; it goes through the
// draft's picker so the same path serves both.
func (h *Handlers) selectPoint(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	var pt domain.Coordinates
	if err := decodeJSON(w, r, &pt); err != nil {
		writeError(w, err)
		return
	}
	if !pt.Valid() {
		writeProblem(w, http.StatusBadRequest, "Invalid input", "coordinates out of range")
		return
	}
	c.Picker().Click(r.Context(), pt)
	writeJSON(w, http.StatusOK, viewOf(id, c))
}

func (h *Handlers) searchPlaces(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	places, err := c.Location().Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Warn().Err(err).Str("draft", id).Msg("place search failed")
		writeProblem(w, http.StatusBadGateway, "Search failed", "place search is unavailable")
		return
	}
	if places == nil {
		places = []domain.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}

func (h *Handlers) getDraftMap(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	center, pins := c.Picker().State()
	writeJSON(w, http.StatusOK, mapView{Center: center, Pins: pins})
}

func (h *Handlers) validateDraft(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	writeJSON(w, http.StatusOK, c.Validate())
}

// submitDraft sends the draft; ?confirm=true overrides policy warnings.
// A client disconnect or request timeout does not abort the upload.
func (h *Handlers) submitDraft(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	if !h.Session.TermsAccepted() {
		writeError(w, domain.ErrTermsNotAccepted)
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	// once started, a submission runs to completion even if the caller goes away
	rec, err := c.Submit(context.WithoutCancel(r.Context()), confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handlers) resetDraft(w http.ResponseWriter, r *http.Request, id string, c *app.Composer) {
	c.Draft().Reset()
	writeJSON(w, http.StatusOK, viewOf(id, c))
}
