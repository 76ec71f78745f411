package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service provides listing business logic: publishing with assets, browsing,
// owner views and owner-scoped deletion.
type Service struct {
	repo   Repository
	assets AssetStore
	cache  Cache
	events EventPublisher
	owners OwnerResolver
	log    *zap.Logger
	now    func() time.Time
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithOwnerResolver(r OwnerResolver) Option { return func(s *Service) { s.owners = r } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// NewService creates a new listing service.
func NewService(repo Repository, assets AssetStore, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		assets: assets,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("listing")
	return s
}

// Publish validates the draft and images, uploads the cover and then any
// optional images, and stores the assembled listing owned by ownerID.
// Assets uploaded before a later failure are left in place.
func (s *Service) Publish(ctx context.Context, ownerID string, d Draft, images Images) (string, error) {
	const op = "listing.Service.Publish"

	ownerID = canonicalOwnerID(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrPermission)
	}

	d = d.Normalize()
	verr := &ValidationError{}
	if err := d.Validate(); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		verr.Fields = append(verr.Fields, ve.Fields...)
	}
	validateImages(images, verr)
	if err := verr.orNil(); err != nil {
		return "", err
	}
	price, _ := ParsePrice(d.Price)

	var uploaded []string
	coverURL, err := s.upload(ctx, CategoryCover, images.Cover)
	if err != nil {
		return "", err
	}
	uploaded = append(uploaded, coverURL)

	var sellerURL, qrURL string
	if images.SellerPhoto != nil {
		if sellerURL, err = s.upload(ctx, CategorySellerPhoto, images.SellerPhoto); err != nil {
			s.warnOrphans(ownerID, uploaded, err)
			return "", err
		}
		uploaded = append(uploaded, sellerURL)
	}
	if images.QRCode != nil {
		if qrURL, err = s.upload(ctx, CategoryQRCode, images.QRCode); err != nil {
			s.warnOrphans(ownerID, uploaded, err)
			return "", err
		}
		uploaded = append(uploaded, qrURL)
	}

	l := &Listing{
		Title:          d.Title,
		Description:    d.Description,
		Price:          price,
		Subject:        d.Subject,
		Edition:        d.Edition,
		Condition:      d.Condition,
		SellerName:     d.SellerName,
		ContactNumber:  d.ContactNumber,
		PaymentMethod:  d.PaymentMethod,
		ImageURL:       coverURL,
		SellerImageURL: sellerURL,
		QRCodeURL:      qrURL,
		OwnerID:        ownerID,
		CreatedAt:      s.now().UTC(),
	}
	if l.Condition == "" {
		l.Condition = DefaultCondition
	}
	if l.SellerName == "" {
		l.SellerName = DefaultSellerName
	}

	id, err := s.repo.Insert(ctx, l)
	if err != nil {
		s.warnOrphans(ownerID, uploaded, err)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	l.ID = id

	s.log.Info("listing published",
		zap.String("listing_id", id),
		zap.String("owner_id", ownerID),
		zap.Int("assets", len(uploaded)),
	)
	if s.events != nil {
		if err := s.events.ListingPublished(ctx, l); err != nil {
			s.log.Warn("publish event failed", zap.String("listing_id", id), zap.Error(err))
		}
	}
	return id, nil
}

func (s *Service) upload(ctx context.Context, c Category, img *Image) (string, error) {
	url, err := s.assets.Store(ctx, c, img.Filename, img.Data)
	if err != nil {
		var ue *UploadError
		if errors.As(err, &ue) {
			return "", ue
		}
		return "", &UploadError{Category: c, Err: err}
	}
	return url, nil
}

func (s *Service) warnOrphans(ownerID string, locators []string, cause error) {
	if len(locators) == 0 {
		return
	}
	s.log.Warn("publish aborted after upload, assets left unreferenced",
		zap.String("owner_id", ownerID),
		zap.Strings("locators", locators),
		zap.Error(cause),
	)
}

// Browse returns every listing, or those whose title contains f.TitleContains
// ignoring case, newest first.
func (s *Service) Browse(ctx context.Context, f Filter) (Result, error) {
	f.TitleContains = NormalizeQuery(f.TitleContains)
	ls, err := s.repo.QueryAll(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("listing.Service.Browse: %w", err)
	}
	if ls == nil {
		ls = []Listing{}
	}
	return Result{
		Listings: ls,
		Filtered: f.TitleContains != "",
		Query:    f.TitleContains,
	}, nil
}

// canonicalOwnerID trims id and, when it is a UUID in any accepted spelling,
// rewrites it in the lowercase hyphenated form the store returns.
func canonicalOwnerID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// ListByOwner returns the listings owned by ownerID, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Listing, error) {
	ownerID = canonicalOwnerID(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("listing.Service.ListByOwner: %w", ErrPermission)
	}
	ls, err := s.repo.QueryByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing.Service.ListByOwner: %w", err)
	}
	if ls == nil {
		ls = []Listing{}
	}
	return ls, nil
}

// ListByOwnerEmail resolves email to a profile and returns its listings.
func (s *Service) ListByOwnerEmail(ctx context.Context, email string) ([]Listing, error) {
	const op = "listing.Service.ListByOwnerEmail"

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "email", Message: "email is required"}}}
	}
	if s.owners == nil {
		return nil, fmt.Errorf("%s: no owner resolver configured", op)
	}
	ownerID, err := s.owners.ResolveOwnerID(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%s: no profile for email: %w", op, ErrNotFound)
	}
	return s.ListByOwner(ctx, ownerID)
}

// Get returns a single listing, reading through the cache when configured.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("cache get failed", zap.String("listing_id", id), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Listing{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, &l); err != nil {
			s.log.Warn("cache set failed", zap.String("listing_id", id), zap.Error(err))
		}
	}
	return l, nil
}

// Delete removes a listing owned by ownerID. Asset bytes are not reclaimed.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	const op = "listing.Service.Delete"

	ownerID = canonicalOwnerID(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%s: %w", op, ErrPermission)
	}
	if err := s.repo.DeleteByID(ctx, id, ownerID); err != nil {
		if errors.Is(err, ErrPermission) {
			s.log.Warn("delete rejected", zap.String("listing_id", id), zap.String("actor_id", ownerID))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.log.Warn("cache evict failed", zap.String("listing_id", id), zap.Error(err))
		}
	}
	s.log.Info("listing deleted", zap.String("listing_id", id), zap.String("owner_id", ownerID))
	if s.events != nil {
		if err := s.events.ListingDeleted(ctx, id, ownerID); err != nil {
			s.log.Warn("delete event failed", zap.String("listing_id", id), zap.Error(err))
		}
	}
	return nil
}
