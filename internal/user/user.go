// Package user keeps the profile documents of signed-in users.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abgdnv/storefront/internal/docstore"
	"github.com/abgdnv/storefront/internal/identity"
)

const Collection = "users"

var ErrUserNotFound = errors.New("user not found")

// Profile is the stored user document. The document id is the identity subject.
type Profile struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateDto carries the editable profile fields. Nil fields are left unchanged.
type UpdateDto struct {
	Name    *string `json:"name"    validate:"omitempty,min=2,max=100"`
	Address *string `json:"address" validate:"omitempty,max=500"`
}

type Service struct {
	store docstore.Store
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// CreateIfMissing makes sure a profile exists for id and returns it.
// An existing profile is returned unchanged.
func (s *Service) CreateIfMissing(ctx context.Context, id identity.Identity) (*Profile, error) {
	p, err := s.FindByUID(ctx, id.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	doc, err := s.store.Put(ctx, Collection, id.ID, map[string]any{
		"uid":     id.ID,
		"email":   id.Email,
		"name":    id.Name,
		"isAdmin": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w", id.ID, err)
	}
	return toProfile(doc)
}

func (s *Service) FindByUID(ctx context.Context, uid string) (*Profile, error) {
	doc, err := s.store.Get(ctx, Collection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %s: %w", uid, err)
	}
	return toProfile(doc)
}

func (s *Service) Update(ctx context.Context, uid string, dto UpdateDto) (*Profile, error) {
	fields := map[string]any{}
	if dto.Name != nil {
		fields["name"] = *dto.Name
	}
	if dto.Address != nil {
		fields["address"] = *dto.Address
	}
	if len(fields) == 0 {
		return s.FindByUID(ctx, uid)
	}
	doc, err := s.store.Update(ctx, Collection, uid, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", uid, err)
	}
	return toProfile(doc)
}

func (s *Service) Delete(ctx context.Context, uid string) error {
	if err := s.store.Delete(ctx, Collection, uid); err != nil {
		return fmt.Errorf("delete profile %s: %w", uid, err)
	}
	return nil
}

func toProfile(doc docstore.Document) (*Profile, error) {
	var p Profile
	if err := doc.Decode(&p); err != nil {
		return nil, err
	}
	if p.UID == "" {
		p.UID = doc.ID
	}
	p.CreatedAt = doc.CreatedAt
	p.UpdatedAt = doc.UpdatedAt
	return &p, nil
}
