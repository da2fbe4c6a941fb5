package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookstore/internal/errs"
	"bookstore/internal/ratelimit"
	"bookstore/pkg/domain"
	"bookstore/pkg/storage"
	"bookstore/pkg/store"
	"bookstore/services/bookstore/internal/access"
	"bookstore/services/bookstore/internal/app"
	"bookstore/services/bookstore/internal/publish"
)

const (
	adminToken  = "tok-admin"
	authorToken = "tok-author"
	otherToken  = "tok-other"
	readerToken = "tok-reader"
	listedToken = "tok-listed"
	outageToken = "tok-outage"
)

type tokenIdentity map[string]domain.Principal

func (t tokenIdentity) Resolve(_ context.Context, token string) (domain.Principal, error) {
	if token == outageToken {
		return domain.Principal{}, errors.New("identity service: 503 database unavailable")
	}
	p, ok := t[token]
	if !ok {
		return domain.Principal{}, errs.Unauthenticated("invalid token")
	}
	return p, nil
}

type testEnv struct {
	srv   *httptest.Server
	store *store.MemoryStore
}

func newTestEnv(t *testing.T, limiter *ratelimit.FixedWindowLimiter) testEnv {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.GrantAdmin(ctx, "u-admin"); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	for _, a := range []domain.Author{{ID: "u-author", FullName: "Kumari Perera"}, {ID: "u-other", FullName: "Other"}} {
		if _, err := st.UpsertAuthor(ctx, a); err != nil {
			t.Fatalf("upsert author: %v", err)
		}
	}

	identity := tokenIdentity{
		adminToken:  {ID: "u-admin", Email: "admin@example.com"},
		authorToken: {ID: "u-author", Email: "author@example.com"},
		otherToken:  {ID: "u-other", Email: "other@example.com"},
		readerToken: {ID: "u-reader", Email: "reader@example.com"},
		listedToken: {ID: "u-listed", Email: "listed@example.com"},
	}
	acl, err := access.New(access.Config{
		AdminEmails: []string{"ADMIN@example.com", "listed@example.com"},
		Identity:    identity,
		Store:       st,
	})
	if err != nil {
		t.Fatalf("new access: %v", err)
	}
	pub, err := publish.New(st)
	if err != nil {
		t.Fatalf("new publish: %v", err)
	}

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	files, err := storage.NewLocalStore(t.TempDir(), srv.URL+"/files")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	catalog, err := app.New(app.Config{Store: st, Objects: files, Access: acl})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		Access:         acl,
		Publish:        pub,
		App:            catalog,
		Files:          files.Handler(),
		MaxUploadBytes: 1 << 20,
		UploadLimiter:  limiter,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	handler = s.Router()
	return testEnv{srv: srv, store: st}
}

func (e testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e testEnv) doJSON(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	return e.do(t, method, path, token, r, "application/json")
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func seedBook(t *testing.T, st *store.MemoryStore, id, authorID string, published bool) {
	t.Helper()
	if err := st.CreateBook(context.Background(), domain.Book{
		ID:       id,
		AuthorID: authorID,
		Title:    "Book " + id,
		PDFURL:   "http://files.test/book-pdfs/" + authorID + "/1-" + id + ".pdf",
		PDFPath:  authorID + "/1-" + id + ".pdf",
	}); err != nil {
		t.Fatalf("seed book: %v", err)
	}
	if published {
		pub, err := publish.New(st)
		if err != nil {
			t.Fatalf("new publish: %v", err)
		}
		acl, err := access.New(access.Config{
			AdminEmails: []string{"admin@example.com"},
			Identity:    tokenIdentity{adminToken: {ID: "u-admin", Email: "admin@example.com"}},
			Store:       st,
		})
		if err != nil {
			t.Fatalf("new access: %v", err)
		}
		admin, err := acl.AuthorizeAdmin(context.Background(), adminToken)
		if err != nil {
			t.Fatalf("authorize admin: %v", err)
		}
		if err := pub.Publish(context.Background(), admin, id); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
}
