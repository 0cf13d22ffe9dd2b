package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"loo_review/internal/adapters/observability"
	"loo_review/internal/domain"
)

// Workflow holds the collaborators shared by every composer.
type Workflow struct {
	categories []domain.Category
	validator  *Validator
	backend    domain.ReviewBackend
	geo        domain.Geocoder
	session    *Session
	gallery    *Gallery
}

func NewWorkflow(categories []domain.Category, v *Validator, b domain.ReviewBackend, geo domain.Geocoder, s *Session, g *Gallery) *Workflow {
	return &Workflow{categories: categories, validator: v, backend: b, geo: geo, session: s, gallery: g}
}

func (w *Workflow) Categories() []domain.Category { return append([]domain.Category(nil), w.categories...) }

// NewComposer starts a submission session with an empty draft.
func (w *Workflow) NewComposer() *Composer {
	h := NewDraftHolder(w.categories)
	c := &Composer{
		wf:       w,
		holder:   h,
		resolver: NewLocationResolver(h, w.geo),
		picker:   NewMapView(),
	}
	c.Attach(c.picker)
	return c
}

// Composer is one submission session: a draft, its location resolver, the
// location picker map and the in-flight guard.
type Composer struct {
	wf       *Workflow
	holder   *DraftHolder
	resolver *LocationResolver
	picker   *MapView
	busy     atomic.Bool
}

func (c *Composer) Draft() *DraftHolder {
	return c.holder
}

func (c *Composer) Location() *LocationResolver {
	return c.resolver
}

func (c *Composer) Picker() *MapView {
	return c.picker
}

func (c *Composer) Busy() bool {
	return c.busy.Load()
}

func (c *Composer) Validate() ValidationResult {
	return c.wf.validator.Validate(c.holder.Snapshot())
}

// Preview is the overall score the draft would be stored with.
func (c *Composer) Preview() domain.Overall {
	return domain.OverallOf(c.holder.Snapshot().Ratings)
}

// Attach subscribes the composer to map clicks so they resolve into this draft.
func (c *Composer) Attach(m domain.LocationProvider) {
	m.OnSelect(func(ctx context.Context, pt domain.Coordinates) {
		if _, err := c.resolver.SelectPoint(ctx, pt); err != nil {
			log.Warn().Err(err).Msg("map selection ignored")
			return
		}
		m.Center(pt)
	})
}

// Submit validates and sends the draft. Only one submission may be in flight;
// a concurrent call gets ErrSubmissionInFlight and sends nothing. Unless
// confirm is set, policy warnings stop the submission with a PolicyError.
// On success the draft is reset and the record joins the gallery; on failure
// the draft is left as it was.
func (c *Composer) Submit(ctx context.Context, confirm bool) (domain.ReviewRecord, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return domain.ReviewRecord{}, domain.ErrSubmissionInFlight
	}
	defer c.busy.Store(false)

	draft := c.holder.Snapshot()
	res := c.wf.validator.Validate(draft)
	if !res.OK {
		for _, f := range res.Missing {
			observability.ObserveValidation(string(f))
		}
		observability.ObserveSubmission("invalid", 0)
		return domain.ReviewRecord{}, &domain.ValidationError{Missing: res.Missing}
	}
	if len(res.Warnings) > 0 && !confirm {
		observability.ObserveSubmission("policy_hold", 0)
		return domain.ReviewRecord{}, &domain.PolicyError{Warnings: res.Warnings}
	}

	start := time.Now()
	rec, err := c.wf.backend.SubmitReview(ctx, draft)
	if err != nil {
		outcome := "transport_error"
		var ae *domain.AuthError
		if errors.As(err, &ae) {
			outcome = "auth_error"
		}
		observability.ObserveSubmission(outcome, time.Since(start))
		log.Warn().Err(err).Str("err_type", observability.LabelErr(err)).Msg("review submission failed, draft kept")
		return domain.ReviewRecord{}, c.wf.session.HandleError(ctx, err)
	}
	observability.ObserveSubmission("ok", time.Since(start))

	c.holder.Reset()
	if c.wf.gallery != nil {
		c.wf.gallery.Prepend(ctx, rec)
	}
	log.Info().Str("record", rec.ID).Str("location", rec.Location).Msg("review submitted")
	return rec, nil
}
