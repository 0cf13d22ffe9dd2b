package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"loo_review/internal/domain"
)

type reviewView struct {
	domain.ReviewRecord
	OverallDisplay string `json:"overall_display"`
	Stars          int    `json:"stars"`
	Owned          bool   `json:"owned"`
}

// listReviews serves the gallery; ?refresh=true reloads from the backend.
func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := h.Gallery.Reload(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	recs, err := h.Gallery.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	me, signedIn := h.Session.User()
	out := make([]reviewView, 0, len(recs))
	for _, rec := range recs {
		o := domain.Overall(rec.OverallRating)
		out = append(out, reviewView{
			ReviewRecord:   rec,
			OverallDisplay: o.Display(),
			Stars:          o.Stars(),
			Owned:          signedIn && rec.UserID != "" && rec.UserID == me.ID,
		})
	}
	writeCacheable(w, r, out)
}

func (h *Handlers) listPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.Gallery.Pins(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeCacheable(w, r, pins)
}

func (h *Handlers) selectReview(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Gallery.Select(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.Gallery.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) postReport(w http.ResponseWriter, r *http.Request) {
	var in domain.Report
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Mod.Report(r.Context(), in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reported"})
}

func (h *Handlers) listBlocks(w http.ResponseWriter, r *http.Request) {
	blocked := h.Session.BlockedUsers()
	if blocked == nil {
		blocked = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"blocked_user_ids": blocked})
}

func (h *Handlers) postBlock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Mod.Block(r.Context(), in.UserID); err != nil {
		writeError(w, err)
		return
	}
	h.listBlocks(w, r)
}

func (h *Handlers) deleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.Mod.Unblock(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, err)
		return
	}
	h.listBlocks(w, r)
}
