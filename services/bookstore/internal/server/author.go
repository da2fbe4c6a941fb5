package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookstore/internal/errs"
	"bookstore/pkg/domain"
	"bookstore/pkg/upload"
	"bookstore/services/bookstore/internal/access"
	"bookstore/services/bookstore/internal/app"
)

type authorGateResponse struct {
	IsAuthor   bool   `json:"isAuthor"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// handleAuthorMe is the author gate check used before rendering author pages.
func (s *Server) handleAuthorMe(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if _, err := s.access.AuthorizeAuthor(r.Context(), p); err != nil {
		writeJSON(w, http.StatusOK, authorGateResponse{RedirectTo: access.AuthorProfilePath})
		return
	}
	writeJSON(w, http.StatusOK, authorGateResponse{IsAuthor: true})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	author, ok, err := s.app.GetAuthorProfile(r.Context(), p)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"author": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"author": author})
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if !s.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()
	image, closeImage, err := formPart(r, "image")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer closeImage()
	if image != nil && !s.allowUpload(w, r, p) {
		return
	}
	author, err := s.app.SaveAuthorProfile(r.Context(), p, app.ProfileInput{
		FullName: r.FormValue("full_name"),
		Bio:      r.FormValue("bio"),
		Image:    image,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"author": author})
}

func (s *Server) handleAuthorBooks(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	books, err := s.app.ListAuthorBooks(r.Context(), p)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if !s.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()
	if err := rejectPublishFields(r.MultipartForm); err != nil {
		writeErr(w, r, err)
		return
	}
	price, err := parsePrice(r.FormValue("price_lkr"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	cover, closeCover, err := formPart(r, "cover")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer closeCover()
	pdf, closePDF, err := formPart(r, "pdf")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer closePDF()
	if !s.allowUpload(w, r, p) {
		return
	}

	book, err := s.app.CreateBook(r.Context(), p, app.BookInput{
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		PriceLKR:      price,
		Tags:          upload.ParseTags(r.FormValue("tags")),
		AllowDownload: parseCheckbox(r.FormValue("allow_download")),
		Cover:         cover,
		PDF:           pdf,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"book": book})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if !s.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()
	form := r.MultipartForm
	if err := rejectPublishFields(form); err != nil {
		s.audit(r, "book_update", "rejected", "principal_id", p.ID, "reason", "publish fields")
		writeErr(w, r, err)
		return
	}

	patch := app.BookPatch{}
	if v, ok := formValue(form, "title"); ok {
		patch.Title = &v
	}
	if v, ok := formValue(form, "description"); ok {
		patch.Description = &v
	}
	if v, ok := formValue(form, "price_lkr"); ok {
		price, err := parsePrice(v)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		patch.PriceLKR = &price
	}
	if v, ok := formValue(form, "tags"); ok {
		patch.Tags = upload.ParseTags(v)
	}
	if v, ok := formValue(form, "allow_download"); ok {
		allow := parseCheckbox(v)
		patch.AllowDownload = &allow
	}
	cover, closeCover, err := formPart(r, "cover")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer closeCover()
	pdf, closePDF, err := formPart(r, "pdf")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer closePDF()
	patch.Cover, patch.PDF = cover, pdf
	if (cover != nil || pdf != nil) && !s.allowUpload(w, r, p) {
		return
	}

	book, err := s.app.UpdateBook(r.Context(), p, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book": book})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	id := chi.URLParam(r, "id")
	if err := s.app.DeleteBook(r.Context(), p, id); err != nil {
		writeErr(w, r, err)
		return
	}
	s.audit(r, "book_delete", "success", "principal_id", p.ID, "book_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// parseUpload bounds and parses a multipart body, answering the request itself on failure.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return false
	}
	return true
}

// formPart returns the uploaded file in field, or nil when the field is absent.
func formPart(r *http.Request, field string) (*upload.Part, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, errs.Validationf("%s could not be read", field)
	}
	return &upload.Part{Filename: header.Filename, Size: header.Size, File: file}, func() { _ = file.Close() }, nil
}

func formValue(form *multipart.Form, key string) (string, bool) {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// rejectPublishFields refuses author requests that try to set publish state.
func rejectPublishFields(form *multipart.Form) error {
	for _, key := range []string{"is_published", "published_at"} {
		if _, ok := form.Value[key]; ok {
			return errs.Validationf("%s can only be changed by an admin", key)
		}
	}
	return nil
}

func parsePrice(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	price, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Validation("price_lkr must be a whole number")
	}
	return price, nil
}

func parseCheckbox(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}
