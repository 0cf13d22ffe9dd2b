package app

import (
	"strings"
	"sync"

	"loo_review/internal/domain"
)

// DraftHolder owns exactly one review draft. Every setter replaces only its own field.
type DraftHolder struct {
	mu         sync.Mutex
	categories []domain.Category
	draft      domain.ReviewDraft
	// autoFilled is true while LocationText was last written by a place or map event.
	autoFilled bool
}

func NewDraftHolder(categories []domain.Category) *DraftHolder {
	return &DraftHolder{categories: categories, draft: domain.NewDraft(categories)}
}

func (h *DraftHolder) Snapshot() domain.ReviewDraft {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draft.Clone()
}

func (h *DraftHolder) SetImage(img domain.Image) {
	h.mu.Lock()
	defer h.mu.Unlock()
	img.Data = append([]byte(nil), img.Data...)
	h.draft.Image = &img
}

func (h *DraftHolder) SetRating(c domain.Category, v int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.draft.Ratings.Set(c, v)
}

func (h *DraftHolder) SetComments(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draft.Comments = s
}

// EditLocationText writes user-typed text verbatim. When the previous text was
// auto-filled by a place or map event and the edit changes it, the now
// mismatched coordinates are dropped. Returns whether coordinates were cleared.
func (h *DraftHolder) EditLocationText(text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if text == h.draft.LocationText {
		return false
	}
	material := strings.TrimSpace(text) != strings.TrimSpace(h.draft.LocationText)
	h.draft.LocationText = text
	if !material {
		return false
	}
	cleared := h.autoFilled && h.draft.Coordinates != nil
	if cleared {
		h.draft.Coordinates = nil
	}
	h.autoFilled = false
	return cleared
}

func (h *DraftHolder) SetCoordinates(c *domain.Coordinates) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draft.Coordinates = copyCoords(c)
}

// SetLocation commits text and coordinates as one update.
func (h *DraftHolder) SetLocation(text string, c *domain.Coordinates) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draft.LocationText = text
	h.draft.Coordinates = copyCoords(c)
	h.autoFilled = true
}

// Reset swaps in an empty draft in one step.
func (h *DraftHolder) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draft = domain.NewDraft(h.categories)
	h.autoFilled = false
}

func copyCoords(c *domain.Coordinates) *domain.Coordinates {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
