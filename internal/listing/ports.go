package listing

//go:generate mockgen -destination=mock_ports.go -package=listing bookmarket/internal/listing Repository,AssetStore

import (
	"context"
)

// Repository defines the contract for listing storage.
type Repository interface {
	Insert(ctx context.Context, l *Listing) (string, error)
	QueryAll(ctx context.Context, f Filter) ([]Listing, error)
	QueryByOwner(ctx context.Context, ownerID string) ([]Listing, error)
	GetByID(ctx context.Context, id string) (Listing, error)
	DeleteByID(ctx context.Context, id, requestingOwnerID string) error
}

// AssetStore persists image bytes under a fresh collision-resistant name and
// returns a publicly resolvable locator. Failures are *UploadError.
type AssetStore interface {
	Store(ctx context.Context, category Category, filename string, data []byte) (string, error)
}

// Cache holds listings read through Get. A miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, id string) (*Listing, error)
	Set(ctx context.Context, l *Listing) error
	Delete(ctx context.Context, id string) error
}

// EventPublisher announces listing lifecycle changes.
type EventPublisher interface {
	ListingPublished(ctx context.Context, l *Listing) error
	ListingDeleted(ctx context.Context, id, ownerID string) error
}

// OwnerResolver maps a profile email to the owner identity used by listings.
// An unknown email yields ("", nil).
type OwnerResolver interface {
	ResolveOwnerID(ctx context.Context, email string) (string, error)
}
