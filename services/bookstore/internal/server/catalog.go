package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookstore/services/bookstore/internal/publish"
)

func (s *Server) handlePublicBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListPublicBooks(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

// handleGetBook serves published books to anyone. Drafts need the owner's
// or an admin's token; a bad token is treated as anonymous.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	viewer := publish.Viewer{}
	if token, ok := bearerToken(r); ok {
		if p, err := s.access.ResolvePrincipal(r.Context(), token); err == nil {
			viewer.PrincipalID = p.ID
			admin, err := s.access.AdminFor(r.Context(), p)
			viewer.IsAdmin = err == nil && admin.Valid()
		}
	}
	book, err := s.app.GetBook(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book": book})
}
