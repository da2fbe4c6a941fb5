package app

import (
	"context"
	"strings"

	"bookstore/internal/errs"
	"bookstore/pkg/domain"
	"bookstore/pkg/upload"
)

// ProfileInput is the author profile form.
type ProfileInput struct {
	FullName string       `json:"full_name" validate:"required,max=200"`
	Bio      string       `json:"bio" validate:"max=4000"`
	Image    *upload.Part `json:"-" validate:"-"`
}

// GetAuthorProfile returns the principal's author profile, if any.
func (a *App) GetAuthorProfile(ctx context.Context, p domain.Principal) (domain.Author, bool, error) {
	author, ok, err := a.store.GetAuthor(ctx, p.ID)
	if err != nil {
		return domain.Author{}, false, errs.StoreFailure(err)
	}
	return author, ok, nil
}

// SaveAuthorProfile creates or updates the principal's author profile. A new
// image is uploaded before the row is written; without one the existing
// image is kept.
func (a *App) SaveAuthorProfile(ctx context.Context, p domain.Principal, in ProfileInput) (domain.Author, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Bio = strings.TrimSpace(in.Bio)
	if err := a.validator.Validate(in); err != nil {
		return domain.Author{}, err
	}

	existing, _, err := a.store.GetAuthor(ctx, p.ID)
	if err != nil {
		return domain.Author{}, errs.StoreFailure(err)
	}
	author := domain.Author{
		ID:              p.ID,
		FullName:        in.FullName,
		ProfileImageURL: existing.ProfileImageURL,
	}
	if in.Bio != "" {
		bio := in.Bio
		author.Bio = &bio
	}

	var image storedObject
	if in.Image != nil {
		obj, url, err := a.putPart(ctx, a.buckets.AuthorImages, p.ID, in.Image, upload.KindImage)
		if err != nil {
			return domain.Author{}, err
		}
		image = obj
		author.ProfileImageURL = &url
	}

	saved, err := a.store.UpsertAuthor(ctx, author)
	if err != nil {
		logOrphans(ctx, err, image)
		return domain.Author{}, errs.StoreFailure(err)
	}
	return saved, nil
}
