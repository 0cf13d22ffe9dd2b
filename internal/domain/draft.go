package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCategories is the category set used when none is configured.
var DefaultCategories = []Category{"cleanliness", "privacy", "smell", "vibe", "accessories"}

// CategoryCount is fixed; every draft and record carries exactly this many ratings.
const CategoryCount = 5

const (
	MinRating = 0 // unset
	MaxRating = 5
)

type Category string

// FormField is the multipart / JSON field name for the category, e.g. "smell_rating".
func (c Category) FormField() string { return string(c) + "_rating" }

type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// String is the fallback location text used when no address is known.
func (c Coordinates) String() string { return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lng) }

// Ratings keeps the configured categories in order alongside their values.
type Ratings struct {
	order  []Category
	values map[Category]int
}

func NewRatings(categories []Category) Ratings {
	r := Ratings{order: append([]Category(nil), categories...), values: make(map[Category]int, len(categories))}
	for _, c := range categories {
		r.values[c] = 0
	}
	return r
}

func (r Ratings) Categories() []Category { return append([]Category(nil), r.order...) }

func (r Ratings) Get(c Category) (int, bool) {
	v, ok := r.values[c]
	return v, ok
}

func (r Ratings) Set(c Category, v int) error {
	if _, ok := r.values[c]; !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, c)
	}
	if v < MinRating || v > MaxRating {
		return fmt.Errorf("%w: rating %d for %s out of range [%d,%d]", ErrInvalidInput, v, c, MinRating, MaxRating)
	}
	r.values[c] = v
	return nil
}

// Complete reports whether every category has a non-zero score.
func (r Ratings) Complete() bool {
	for _, c := range r.order {
		if r.values[c] == 0 {
			return false
		}
	}
	return len(r.order) == CategoryCount
}

// Values returns scores in category order.
func (r Ratings) Values() []int {
	out := make([]int, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.values[c])
	}
	return out
}

func (r Ratings) Map() map[string]int {
	out := make(map[string]int, len(r.order))
	for _, c := range r.order {
		out[string(c)] = r.values[c]
	}
	return out
}

func (r Ratings) Clone() Ratings {
	out := NewRatings(r.order)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// ReviewDraft is the in-progress review. Coordinates is all-or-nothing.
type ReviewDraft struct {
	Image        *Image
	Ratings      Ratings
	LocationText string
	Coordinates  *Coordinates
	Comments     string
}

func NewDraft(categories []Category) ReviewDraft {
	return ReviewDraft{Ratings: NewRatings(categories)}
}

func (d ReviewDraft) TrimmedLocation() string { return strings.TrimSpace(d.LocationText) }

// Clone deep-copies the draft so callers never share the image buffer or rating map.
func (d ReviewDraft) Clone() ReviewDraft {
	out := d
	out.Ratings = d.Ratings.Clone()
	if d.Image != nil {
		img := *d.Image
		img.Data = append([]byte(nil), d.Image.Data...)
		out.Image = &img
	}
	if d.Coordinates != nil {
		c := *d.Coordinates
		out.Coordinates = &c
	}
	return out
}

// ParseCategories turns a configured list into categories, requiring exactly five unique names.
func ParseCategories(names []string) ([]Category, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]Category, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate rating category %q", n)
		}
		seen[n] = struct{}{}
		out = append(out, Category(n))
	}
	if len(out) != CategoryCount {
		return nil, fmt.Errorf("need exactly %d rating categories, got %d", CategoryCount, len(out))
	}
	return out, nil
}

type ratingJSON struct {
	Category Category `json:"category"`
	Value    int      `json:"value"`
}

// MarshalJSON emits ratings as a list in category order.
func (r Ratings) MarshalJSON() ([]byte, error) {
	out := make([]ratingJSON, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, ratingJSON{Category: c, Value: r.values[c]})
	}
	return json.Marshal(out)
}

func (r *Ratings) UnmarshalJSON(b []byte) error {
	var in []ratingJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	cats := make([]Category, 0, len(in))
	for _, e := range in {
		cats = append(cats, e.Category)
	}
	*r = NewRatings(cats)
	for _, e := range in {
		r.values[e.Category] = e.Value
	}
	return nil
}
