package profile

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no profile matches.
var ErrNotFound = errors.New("profile not found")

// Profile is the marketplace user record created at registration. Listings
// reference it through their owner id.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}
