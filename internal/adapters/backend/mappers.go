package backend

import (
	"strconv"
	"strings"
	"time"

	"loo_review/internal/domain"
)

/********** alias registries **********/

var recordAliases = map[string][]string{
	"id":         {"id", "_id", "bathroom_id"},
	"user_id":    {"user_id", "userId", "author_id", "user.id"},
	"user_name":  {"user_name", "userName", "author", "user.full_name"},
	"image_url":  {"image_url", "imageUrl", "photo_url", "image"},
	"location":   {"location", "location_text", "address"},
	"comments":   {"comments", "comment", "text"},
	"lat":        {"latitude", "lat", "coordinates.lat"},
	"lng":        {"longitude", "lng", "lon", "coordinates.lng"},
	"created_at": {"timestamp", "created_at", "createdAt"},
	"overall":    {"overall_rating", "overallRating", "overall"},
}

var userAliases = map[string][]string{
	"id":        {"id", "_id", "user_id"},
	"full_name": {"full_name", "fullName", "name"},
	"email":     {"email"},
}

// timestamps come either zoned or as naive UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "8,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstIDFlexible: identifier from several paths; numbers are rendered without a fraction.
func firstIDFlexible(m map[string]any, paths ...string) string {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			return strconv.FormatInt(int64(v), 10)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstTime(m map[string]any, paths ...string) time.Time {
	for _, k := range paths {
		s := strings.TrimSpace(lookupStr(m, k))
		if s == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

/********** record mapper **********/

func (c *Client) mapRecord(p map[string]any) domain.ReviewRecord {
	rec := domain.ReviewRecord{
		ID:        firstIDFlexible(p, recordAliases["id"]...),
		UserID:    firstIDFlexible(p, recordAliases["user_id"]...),
		UserName:  firstNonEmptyAlias(p, recordAliases, "user_name"),
		ImageURL:  c.absoluteURL(firstNonEmptyAlias(p, recordAliases, "image_url")),
		Location:  firstNonEmptyAlias(p, recordAliases, "location"),
		Comments:  firstNonEmptyAlias(p, recordAliases, "comments"),
		CreatedAt: firstTime(p, recordAliases["created_at"]...),
		Ratings:   domain.NewRatings(c.categories),
	}

	for _, cat := range c.categories {
		f := getFloatFlexible(p, cat.FormField(), string(cat), "ratings."+string(cat))
		if f == nil {
			continue
		}
		// out-of-range values from the server are dropped rather than failing the whole list
		_ = rec.Ratings.Set(cat, int(*f+0.5))
	}

	if f := getFloatFlexible(p, recordAliases["overall"]...); f != nil {
		rec.OverallRating = *f
	} else {
		rec.OverallRating = float64(domain.OverallOf(rec.Ratings))
	}

	lat := getFloatFlexible(p, recordAliases["lat"]...)
	lng := getFloatFlexible(p, recordAliases["lng"]...)
	if lat != nil && lng != nil {
		pt := domain.Coordinates{Lat: *lat, Lng: *lng}
		if pt.Valid() {
			rec.Coordinates = &pt
		}
	}
	return rec
}

func mapUser(p map[string]any) domain.User {
	return domain.User{
		ID:       firstIDFlexible(p, userAliases["id"]...),
		FullName: firstNonEmptyAlias(p, userAliases, "full_name"),
		Email:    firstNonEmptyAlias(p, userAliases, "email"),
	}
}

// absoluteURL resolves server-relative image paths against the API origin.
func (c *Client) absoluteURL(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return c.origin + u
}

/********** error bodies **********/

// errorMessage picks the user-facing text for a failed call: the body's
// "detail" (a string, or the joined "msg" entries of a validation list),
// then its "message", then the transport error, then fallback.
func errorMessage(body []byte, transportErr error, fallback string) string {
	if m := decodeObject(body); m != nil {
		switch d := m["detail"].(type) {
		case string:
			if s := strings.TrimSpace(d); s != "" {
				return s
			}
		case []any:
			var parts []string
			for _, it := range d {
				if obj, ok := it.(map[string]any); ok {
					if s, ok := obj["msg"].(string); ok && strings.TrimSpace(s) != "" {
						parts = append(parts, strings.TrimSpace(s))
					}
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
		if s, ok := m["message"].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if transportErr != nil {
		return transportErr.Error()
	}
	return fallback
}
