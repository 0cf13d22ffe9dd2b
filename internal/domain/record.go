package domain

import (
	"fmt"
	"math"
	"time"
)

// ReviewRecord is a persisted review as returned by the backend.
type ReviewRecord struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id,omitempty"`
	UserName      string       `json:"user_name,omitempty"`
	ImageURL      string       `json:"image_url"`
	Ratings       Ratings      `json:"ratings"`
	OverallRating float64      `json:"overall_rating"`
	Location      string       `json:"location"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
	Comments      string       `json:"comments,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Overall is the mean of the category ratings.
type Overall float64

func OverallOf(r Ratings) Overall {
	vals := r.Values()
	if len(vals) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return Overall(float64(sum) / float64(len(vals)))
}

// Stars is the rounded value used for star icons.
func (o Overall) Stars() int { return int(math.Floor(float64(o) + 0.5)) }

// Display is the unrounded value shown next to the stars.
func (o Overall) Display() string { return fmt.Sprintf("%.1f", float64(o)) }
