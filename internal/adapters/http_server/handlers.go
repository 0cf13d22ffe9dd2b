// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"loo_review/internal/app"
	"loo_review/internal/domain"
)

const maxJSONBody = 1 << 20

// Handlers is the companion API a thin UI drives: draft sessions, the gallery,
// moderation and auth.
type Handlers struct {
	WF      *app.Workflow
	Session *app.Session
	Gallery *app.Gallery
	Mod     *app.Moderation
	Photos  domain.PhotoPreparer
	Map     *app.MapView

	drafts *draftRegistry
}

func NewHandlers(wf *app.Workflow, s *app.Session, g *app.Gallery, m *app.Moderation, photos domain.PhotoPreparer, mapView *app.MapView, draftTTL time.Duration) *Handlers {
	return &Handlers{
		WF: wf, Session: s, Gallery: g, Mod: m, Photos: photos, Map: mapView,
		drafts: newDraftRegistry(wf, draftTTL),
	}
}

// Close stops the draft expiry loop.
func (h *Handlers) Close() { h.drafts.close() }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	// extension members
	Missing  []domain.FieldName     `json:"missing,omitempty"`
	Warnings []domain.PolicyWarning `json:"warnings,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/config", h.getConfig)
	s.mux.Get("/v1/map", h.getMap)

	s.mux.Post("/v1/drafts", h.createDraft)
	s.mux.Get("/v1/drafts/{id}", h.withDraft(h.getDraft))
	s.mux.Delete("/v1/drafts/{id}", h.deleteDraft)
	s.mux.Put("/v1/drafts/{id}/image", h.withDraft(h.putImage))
	s.mux.Put("/v1/drafts/{id}/ratings/{category}", h.withDraft(h.putRating))
	s.mux.Put("/v1/drafts/{id}/comments", h.withDraft(h.putComments))
	s.mux.Put("/v1/drafts/{id}/location/text", h.withDraft(h.putLocationText))
	s.mux.Post("/v1/drafts/{id}/location/place", h.withDraft(h.selectPlace))
	s.mux.Post("/v1/drafts/{id}/location/point", h.withDraft(h.selectPoint))
	s.mux.Get("/v1/drafts/{id}/location/search", h.withDraft(h.searchPlaces))
	s.mux.Get("/v1/drafts/{id}/map", h.withDraft(h.getDraftMap))
	s.mux.Post("/v1/drafts/{id}/validate", h.withDraft(h.validateDraft))
	s.mux.Post("/v1/drafts/{id}/submit", h.withDraft(h.submitDraft))
	s.mux.Post("/v1/drafts/{id}/reset", h.withDraft(h.resetDraft))

	s.mux.Get("/v1/reviews", h.listReviews)
	s.mux.Get("/v1/reviews/pins", h.listPins)
	s.mux.Post("/v1/reviews/{id}/select", h.selectReview)
	s.mux.Delete("/v1/reviews/{id}", h.deleteReview)

	s.mux.Post("/v1/reports", h.postReport)
	s.mux.Get("/v1/blocks", h.listBlocks)
	s.mux.Post("/v1/blocks", h.postBlock)
	s.mux.Delete("/v1/blocks/{userID}", h.deleteBlock)

	s.mux.Post("/v1/auth/login", h.login)
	s.mux.Post("/v1/auth/register", h.register)
	s.mux.Post("/v1/auth/google", h.google)
	s.mux.Post("/v1/auth/apple", h.apple)
	s.mux.Post("/v1/auth/logout", h.logout)
	s.mux.Get("/v1/auth/me", h.me)
	s.mux.Get("/v1/terms", h.getTerms)
	s.mux.Post("/v1/terms/accept", h.acceptTerms)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	p.Type = "about:blank"
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		pe *domain.PolicyError
		ae *domain.AuthError
		te *domain.TransportError
	)
	switch {
	case errors.As(err, &ve):
		writeProblemBody(w, problem{Title: "Missing required fields", Status: http.StatusUnprocessableEntity, Detail: ve.Error(), Missing: ve.Missing})
	case errors.As(err, &pe):
		writeProblemBody(w, problem{Title: "Confirmation required", Status: http.StatusConflict, Detail: pe.Error(), Warnings: pe.Warnings})
	case errors.As(err, &ae):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "please sign in again")
	case errors.Is(err, domain.ErrSubmissionInFlight):
		writeProblem(w, http.StatusConflict, "Submission in progress", err.Error())
	case errors.Is(err, domain.ErrTermsNotAccepted):
		writeProblem(w, http.StatusForbidden, "Terms not accepted", err.Error())
	case errors.Is(err, domain.ErrNotSignedIn):
		writeProblem(w, http.StatusUnauthorized, "Not signed in", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrPlaceWithoutGeometry):
		writeProblem(w, http.StatusBadRequest, "Invalid input", err.Error())
	case errors.As(err, &te):
		writeProblem(w, http.StatusBadGateway, "Backend error", te.Message)
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeCacheable sends v with a weak ETag and honours If-None-Match.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: body must contain a single JSON object", domain.ErrInvalidInput)
	}
	return nil
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":  h.WF.Categories(),
		"min_rating":  domain.MinRating + 1,
		"max_rating":  domain.MaxRating,
		"map_center":  app.DefaultCenter,
		"signed_in":   h.Session.SignedIn(),
		"terms_ready": h.Session.TermsAccepted(),
	})
}

type mapView struct {
	Center domain.Coordinates `json:"center"`
	Pins   []domain.Pin       `json:"pins"`
}

func (h *Handlers) getMap(w http.ResponseWriter, r *http.Request) {
	center, pins := h.Map.State()
	writeJSON(w, http.StatusOK, mapView{Center: center, Pins: pins})
}
