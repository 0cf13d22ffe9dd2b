package domain

import "time"

type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// AuthResult is what every successful auth endpoint yields.
type AuthResult struct {
	Token string
	User  User
}

// SessionState is the process-wide identity, loaded at start and saved on every change.
type SessionState struct {
	Token           string
	User            *User
	BlockedUserIDs  []string
	TermsAcceptedAt *time.Time
}

func (s SessionState) SignedIn() bool { return s.Token != "" }

func (s SessionState) IsBlocked(userID string) bool {
	for _, id := range s.BlockedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
