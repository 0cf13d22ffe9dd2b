package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"loo_review/internal/domain"
)

const (
	msgUploadFailed = "Failed to upload review. Please try again."
	msgListFailed   = "Could not load reviews."
	msgDeleteFailed = "Could not delete review."
	msgReportFailed = "Could not submit report."
)

var _ domain.ReviewBackend = (*Client)(nil)

// SubmitReview posts the draft as multipart form data to /bathrooms.
// Latitude and longitude are sent only when the draft has coordinates.
func (c *Client) SubmitReview(ctx context.Context, d domain.ReviewDraft) (domain.ReviewRecord, error) {
	if d.Image == nil {
		return domain.ReviewRecord{}, fmt.Errorf("%w: draft has no image", domain.ErrInvalidInput)
	}
	body, ctype, err := c.encodeDraft(d)
	if err != nil {
		return domain.ReviewRecord{}, err
	}

	b, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/bathrooms",
		body:     body,
		ctype:    ctype,
		endpoint: "submit",
		fallback: msgUploadFailed,
	})
	if err != nil {
		return domain.ReviewRecord{}, err
	}

	m := decodeObject(b)
	if m == nil {
		return domain.ReviewRecord{}, &domain.TransportError{Status: http.StatusOK, Message: msgUploadFailed, Err: fmt.Errorf("unexpected response body")}
	}
	success, present := m["success"].(bool)
	if present && !success {
		return domain.ReviewRecord{}, &domain.TransportError{Status: http.StatusOK, Message: errorMessage(b, nil, msgUploadFailed), Err: fmt.Errorf("backend reported failure")}
	}
	// {success, bathroom:{...}} or the record itself
	if inner, ok := m["bathroom"].(map[string]any); ok {
		m = inner
	}
	rec := c.mapRecord(m)
	if rec.ID != "" {
		return rec, nil
	}
	if !success {
		return domain.ReviewRecord{}, &domain.TransportError{Status: http.StatusOK, Message: msgUploadFailed, Err: fmt.Errorf("response has no record id")}
	}
	// stored, but the body does not echo the record
	log.Warn().Msg("submit succeeded without a record id, filling from the draft")
	return fillFromDraft(rec, d), nil
}

// fillFromDraft completes a record the backend acknowledged without echoing it.
func fillFromDraft(rec domain.ReviewRecord, d domain.ReviewDraft) domain.ReviewRecord {
	if !rec.Ratings.Complete() {
		rec.Ratings = d.Ratings.Clone()
		rec.OverallRating = float64(domain.OverallOf(rec.Ratings))
	}
	if rec.Location == "" {
		rec.Location = d.TrimmedLocation()
	}
	if rec.Comments == "" {
		rec.Comments = d.Comments
	}
	if rec.Coordinates == nil && d.Coordinates != nil {
		pt := *d.Coordinates
		rec.Coordinates = &pt
	}
	return rec
}

func (c *Client) encodeDraft(d domain.ReviewDraft) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mimeType := d.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	name := d.Image.Name
	if name == "" {
		name = "photo.jpg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(d.Image.Data); err != nil {
		return nil, "", err
	}

	fields := make([][2]string, 0, 9)
	for _, cat := range c.categories {
		v, _ := d.Ratings.Get(cat)
		fields = append(fields, [2]string{cat.FormField(), strconv.Itoa(v)})
	}
	fields = append(fields,
		[2]string{"location", d.TrimmedLocation()},
		[2]string{"comments", d.Comments},
	)
	if d.Coordinates != nil {
		fields = append(fields,
			[2]string{"latitude", strconv.FormatFloat(d.Coordinates.Lat, 'f', -1, 64)},
			[2]string{"longitude", strconv.FormatFloat(d.Coordinates.Lng, 'f', -1, 64)},
		)
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// ListReviews fetches every review, newest first as the server orders them.
func (c *Client) ListReviews(ctx context.Context) ([]domain.ReviewRecord, error) {
	b, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/bathrooms",
		endpoint: "list",
		fallback: msgListFailed,
		retry:    true,
	})
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &domain.TransportError{Status: http.StatusOK, Message: msgListFailed, Err: err}
	}
	var items []any
	switch t := raw.(type) {
	case []any:
		items = t
	case map[string]any:
		items, _ = t["bathrooms"].([]any)
	}

	out := make([]domain.ReviewRecord, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if rec := c.mapRecord(m); rec.ID != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Client) DeleteReview(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/bathrooms/" + url.PathEscape(id),
		endpoint: "delete",
		fallback: msgDeleteFailed,
	})
	return err
}

func (c *Client) Report(ctx context.Context, r domain.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/reports",
		body:     body,
		ctype:    "application/json",
		endpoint: "report",
		fallback: msgReportFailed,
	})
	return err
}

// decodeObject returns the body as a JSON object, or nil.
func decodeObject(b []byte) map[string]any {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
