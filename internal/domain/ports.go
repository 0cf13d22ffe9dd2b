package domain

import "context"

// ReviewBackend is the remote API consumed by the client.
type ReviewBackend interface {
	SubmitReview(ctx context.Context, d ReviewDraft) (ReviewRecord, error)
	ListReviews(ctx context.Context) ([]ReviewRecord, error)
	DeleteReview(ctx context.Context, id string) error
	Report(ctx context.Context, r Report) error
}

type AuthBackend interface {
	Login(ctx context.Context, email, password string) (AuthResult, error)
	Register(ctx context.Context, fullName, email, password string) (AuthResult, error)
	Google(ctx context.Context, credential string) (AuthResult, error)
	Apple(ctx context.Context, identityToken, fullName string) (AuthResult, error)
	Me(ctx context.Context) (User, error)
}

type Geocoder interface {
	Reverse(ctx context.Context, c Coordinates) (string, error)
	Search(ctx context.Context, query string) ([]Place, error)
}

type SessionStore interface {
	Load(ctx context.Context) (SessionState, error)
	Save(ctx context.Context, s SessionState) error
}

// TokenSource supplies the bearer token attached to backend requests.
type TokenSource interface {
	Token() (string, error)
}

// LocationProvider is the map widget capability: center + pins in, selections out.
type LocationProvider interface {
	OnSelect(cb func(ctx context.Context, c Coordinates))
	Center(c Coordinates)
	SetPins(pins []Pin)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// PhotoPreparer normalises a picked or captured file into an uploadable image.
type PhotoPreparer interface {
	Prepare(name string, data []byte) (Image, error)
	Coordinates(data []byte) (*Coordinates, bool)
}
