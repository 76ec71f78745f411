package profile

import (
	"context"
	"errors"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the profile with the given id.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// ResolveOwnerID maps an email to the profile id that owns listings.
// Emails compare case-insensitively. An unknown email yields ("", nil).
func (s *Service) ResolveOwnerID(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return p.ID, nil
}
