package domain

type ContentType string

const (
	ContentReview ContentType = "bathroom"
	ContentUser   ContentType = "user"
)

type Report struct {
	ContentType ContentType `json:"content_type"`
	ContentID   string      `json:"content_id"`
	Reason      string      `json:"reason"`
	Description string      `json:"description"`
}

// Place is a place-search suggestion chosen by the user.
type Place struct {
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates"`
}

// Pin is one map marker.
type Pin struct {
	RecordID    string      `json:"record_id"`
	Title       string      `json:"title"`
	Coordinates Coordinates `json:"coordinates"`
	Stars       int         `json:"stars"`
}
