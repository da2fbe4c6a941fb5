package app

import (
	"context"
	"strings"

	"bookstore/internal/errs"
	"bookstore/pkg/domain"
	"bookstore/pkg/store"
	"bookstore/pkg/upload"
	"bookstore/services/bookstore/internal/access"
	"bookstore/services/bookstore/internal/publish"
)

// BookInput is the new-book form. PDF is required, Cover is optional.
type BookInput struct {
	Title         string       `json:"title" validate:"required,max=300"`
	Description   string       `json:"description" validate:"max=10000"`
	PriceLKR      int64        `json:"price_lkr" validate:"gte=0"`
	Tags          []string     `json:"tags" validate:"max=20,dive,max=50"`
	AllowDownload bool         `json:"allow_download"`
	Cover         *upload.Part `json:"-" validate:"-"`
	PDF           *upload.Part `json:"-" validate:"-"`
}

// BookPatch is a partial edit of a book. Nil fields are left unchanged.
// Publish state is not editable here.
type BookPatch struct {
	Title         *string      `json:"title" validate:"omitnil,min=1,max=300"`
	Description   *string      `json:"description" validate:"omitnil,max=10000"`
	PriceLKR      *int64       `json:"price_lkr" validate:"omitnil,gte=0"`
	Tags          []string     `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	AllowDownload *bool        `json:"allow_download"`
	Cover         *upload.Part `json:"-" validate:"-"`
	PDF           *upload.Part `json:"-" validate:"-"`
}

// CreateBook stores a draft book for the calling author. Files are uploaded
// first and the row is inserted last; an insert failure leaves the uploaded
// files orphaned.
func (a *App) CreateBook(ctx context.Context, p domain.Principal, in BookInput) (domain.Book, error) {
	author, err := a.access.AuthorizeAuthor(ctx, p)
	if err != nil {
		return domain.Book{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := a.validator.Validate(in); err != nil {
		return domain.Book{}, err
	}
	if in.PDF == nil {
		return domain.Book{}, errs.Validation("pdf is required")
	}
	if err := inspectOnly(in.Cover, upload.KindImage); err != nil {
		return domain.Book{}, err
	}
	if err := inspectOnly(in.PDF, upload.KindPDF); err != nil {
		return domain.Book{}, err
	}

	book := domain.Book{
		ID:            a.newID(),
		AuthorID:      author.ID,
		Title:         in.Title,
		Description:   in.Description,
		PriceLKR:      in.PriceLKR,
		Tags:          normalizeTags(in.Tags),
		AllowDownload: in.AllowDownload,
		CreatedAt:     a.now().UTC(),
	}

	var uploaded []storedObject
	if in.Cover != nil {
		obj, url, err := a.putPart(ctx, a.buckets.Covers, author.ID, in.Cover, upload.KindImage)
		if err != nil {
			return domain.Book{}, err
		}
		uploaded = append(uploaded, obj)
		book.CoverImageURL = &url
	}
	obj, url, err := a.putPart(ctx, a.buckets.PDFs, author.ID, in.PDF, upload.KindPDF)
	if err != nil {
		logOrphans(ctx, err, uploaded...)
		return domain.Book{}, err
	}
	uploaded = append(uploaded, obj)
	book.PDFURL = url
	book.PDFPath = obj.Key

	if err := a.store.CreateBook(ctx, book); err != nil {
		logOrphans(ctx, err, uploaded...)
		return domain.Book{}, errs.StoreFailure(err)
	}
	return book, nil
}

// UpdateBook applies an author's edit to one of their books. Books owned by
// someone else are reported as not found.
func (a *App) UpdateBook(ctx context.Context, p domain.Principal, id string, patch BookPatch) (domain.Book, error) {
	author, err := a.access.AuthorizeAuthor(ctx, p)
	if err != nil {
		return domain.Book{}, err
	}
	current, err := a.ownedBook(ctx, author.ID, id)
	if err != nil {
		return domain.Book{}, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if err := a.validator.Validate(patch); err != nil {
		return domain.Book{}, err
	}
	if err := inspectOnly(patch.Cover, upload.KindImage); err != nil {
		return domain.Book{}, err
	}
	if err := inspectOnly(patch.PDF, upload.KindPDF); err != nil {
		return domain.Book{}, err
	}

	content := domain.BookContent{
		Title:         current.Title,
		Description:   current.Description,
		PriceLKR:      current.PriceLKR,
		Tags:          current.Tags,
		AllowDownload: current.AllowDownload,
		CoverImageURL: current.CoverImageURL,
		PDFURL:        current.PDFURL,
		PDFPath:       current.PDFPath,
	}
	if patch.Title != nil {
		content.Title = *patch.Title
	}
	if patch.Description != nil {
		content.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.PriceLKR != nil {
		content.PriceLKR = *patch.PriceLKR
	}
	if patch.Tags != nil {
		content.Tags = normalizeTags(patch.Tags)
	}
	if patch.AllowDownload != nil {
		content.AllowDownload = *patch.AllowDownload
	}

	var uploaded []storedObject
	if patch.Cover != nil {
		obj, url, err := a.putPart(ctx, a.buckets.Covers, author.ID, patch.Cover, upload.KindImage)
		if err != nil {
			return domain.Book{}, err
		}
		uploaded = append(uploaded, obj)
		content.CoverImageURL = &url
	}
	if patch.PDF != nil {
		obj, url, err := a.putPart(ctx, a.buckets.PDFs, author.ID, patch.PDF, upload.KindPDF)
		if err != nil {
			logOrphans(ctx, err, uploaded...)
			return domain.Book{}, err
		}
		uploaded = append(uploaded, obj)
		content.PDFURL = url
		content.PDFPath = obj.Key
	}

	ok, err := a.store.UpdateBookContent(ctx, id, author.ID, content)
	if err != nil {
		logOrphans(ctx, err, uploaded...)
		return domain.Book{}, errs.StoreFailure(err)
	}
	if !ok {
		logOrphans(ctx, errs.ErrNotFound, uploaded...)
		return domain.Book{}, errs.NotFound("book not found")
	}

	updated, found, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, errs.StoreFailure(err)
	}
	if !found {
		return domain.Book{}, errs.NotFound("book not found")
	}
	return updated, nil
}

// DeleteBook removes one of the author's books. Its stored files are kept.
func (a *App) DeleteBook(ctx context.Context, p domain.Principal, id string) error {
	author, err := a.access.AuthorizeAuthor(ctx, p)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return errs.Validation("book id is required")
	}
	ok, err := a.store.DeleteBook(ctx, id, author.ID)
	if err != nil {
		return errs.StoreFailure(err)
	}
	if !ok {
		return errs.NotFound("book not found")
	}
	return nil
}

// ListAuthorBooks returns every book of the calling author, drafts included.
func (a *App) ListAuthorBooks(ctx context.Context, p domain.Principal) ([]domain.Book, error) {
	author, err := a.access.AuthorizeAuthor(ctx, p)
	if err != nil {
		return nil, err
	}
	return a.listBooks(ctx, store.BookFilter{AuthorID: author.ID})
}

// ListPublicBooks returns published books, newest first.
func (a *App) ListPublicBooks(ctx context.Context) ([]domain.Book, error) {
	return a.listBooks(ctx, store.BookFilter{PublishedOnly: true})
}

// GetBook returns a book visible to viewer. Invisible books are not found.
func (a *App) GetBook(ctx context.Context, id string, viewer publish.Viewer) (domain.Book, error) {
	book, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, errs.StoreFailure(err)
	}
	if !ok || !publish.Visible(book, viewer) {
		return domain.Book{}, errs.NotFound("book not found")
	}
	return book, nil
}

// ListAuthorsWithBookCounts returns every author with their total book count.
func (a *App) ListAuthorsWithBookCounts(ctx context.Context, admin access.Admin) ([]domain.AuthorSummary, error) {
	if !admin.Valid() {
		return nil, errs.Forbidden(access.ReasonNotAllowed)
	}
	authors, err := a.store.ListAuthorsWithBookCounts(ctx)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	return authors, nil
}

// ListAllBooks returns every book regardless of publish state.
func (a *App) ListAllBooks(ctx context.Context, admin access.Admin) ([]domain.Book, error) {
	if !admin.Valid() {
		return nil, errs.Forbidden(access.ReasonNotAllowed)
	}
	return a.listBooks(ctx, store.BookFilter{})
}

func (a *App) listBooks(ctx context.Context, filter store.BookFilter) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx, filter)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	return books, nil
}

func (a *App) ownedBook(ctx context.Context, authorID, id string) (domain.Book, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Book{}, errs.Validation("book id is required")
	}
	book, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, errs.StoreFailure(err)
	}
	if !ok || book.AuthorID != authorID {
		return domain.Book{}, errs.NotFound("book not found")
	}
	return book, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
