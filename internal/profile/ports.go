package profile

import "context"

// Repository defines the contract for profile storage.
type Repository interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	GetByEmail(ctx context.Context, email string) (Profile, error)
	Upsert(ctx context.Context, p *Profile) error
}
