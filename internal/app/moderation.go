package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"loo_review/internal/adapters/observability"
	"loo_review/internal/domain"
)

// Moderation covers reporting content and blocking users.
type Moderation struct {
	backend domain.ReviewBackend
	session *Session
	gallery *Gallery
}

func NewModeration(b domain.ReviewBackend, s *Session, g *Gallery) *Moderation {
	return &Moderation{backend: b, session: s, gallery: g}
}

func (m *Moderation) Report(ctx context.Context, r domain.Report) error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Description = strings.TrimSpace(r.Description)
	switch {
	case r.ContentType != domain.ContentReview && r.ContentType != domain.ContentUser:
		return fmt.Errorf("%w: unknown content type %q", domain.ErrInvalidInput, r.ContentType)
	case strings.TrimSpace(r.ContentID) == "":
		return fmt.Errorf("%w: content id is required", domain.ErrInvalidInput)
	case r.Reason == "":
		return fmt.Errorf("%w: a reason is required", domain.ErrInvalidInput)
	}
	if !m.session.SignedIn() {
		return domain.ErrNotSignedIn
	}
	if err := m.backend.Report(ctx, r); err != nil {
		observability.ObserveModeration("report", "error")
		return m.session.HandleError(ctx, err)
	}
	observability.ObserveModeration("report", "ok")
	log.Info().Str("type", string(r.ContentType)).Str("id", r.ContentID).Msg("content reported")
	return nil
}

// Block hides a user's reviews locally. Blocking yourself is refused.
func (m *Moderation) Block(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if u, ok := m.session.User(); ok && u.ID == userID {
		return fmt.Errorf("%w: cannot block yourself", domain.ErrInvalidInput)
	}
	if err := m.session.Block(ctx, userID); err != nil {
		return err
	}
	observability.ObserveModeration("block", "ok")
	m.gallery.Reapply()
	return nil
}

func (m *Moderation) Unblock(ctx context.Context, userID string) error {
	if err := m.session.Unblock(ctx, strings.TrimSpace(userID)); err != nil {
		return err
	}
	observability.ObserveModeration("unblock", "ok")
	m.gallery.Reapply()
	return nil
}
