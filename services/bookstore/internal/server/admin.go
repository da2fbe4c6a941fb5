package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"bookstore/internal/errs"
	"bookstore/services/bookstore/internal/access"
)

// handleAdminMe is the UI admin check. It answers 200 for every caller.
func (s *Server) handleAdminMe(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	writeJSON(w, http.StatusOK, map[string]bool{"isAdmin": s.access.IsAdmin(r.Context(), token)})
}

func (s *Server) handleAdminAuthors(w http.ResponseWriter, r *http.Request, admin access.Admin) {
	authors, err := s.app.ListAuthorsWithBookCounts(r.Context(), admin)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authors": authors})
}

func (s *Server) handleAdminBooks(w http.ResponseWriter, r *http.Request, admin access.Admin) {
	books, err := s.app.ListAllBooks(r.Context(), admin)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

type publishRequest struct {
	BookID  string `json:"bookId"`
	Publish *bool  `json:"publish"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, admin access.Admin) {
	var req publishRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeErr(w, r, decodeError(err))
		return
	}
	if err := s.publish.SetPublishState(r.Context(), admin, req.BookID, req.Publish); err != nil {
		if !errors.Is(err, errs.ErrValidation) {
			s.audit(r, "book_publish", "failure", "principal_id", admin.Principal().ID, "book_id", req.BookID, "code", errs.CodeOf(err))
		}
		writeErr(w, r, err)
		return
	}
	s.audit(r, "book_publish", "success", "principal_id", admin.Principal().ID, "book_id", req.BookID, "publish", *req.Publish)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decodeError turns JSON decoding failures into validation errors naming the bad field.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch typeErr.Field {
		case "publish":
			return errs.Validation("publish must be a boolean")
		case "bookId":
			return errs.Validation("bookId must be a string")
		}
		return errs.Validationf("%s has the wrong type", typeErr.Field)
	}
	if errors.Is(err, io.EOF) {
		return errs.Validation("request body is required")
	}
	return errs.Validation("invalid JSON body")
}
