package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bookstore/pkg/domain"
)

type contractStore interface {
	UserStore
	CatalogStore
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) contractStore { return NewMemoryStore() })
}

func TestGormStoreSQLiteContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) contractStore {
		s, err := NewGormStore(DBConfig{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")})
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewGormStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := NewGormStore(DBConfig{Driver: "oracle"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestMemoryStoreFailOn(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")
	s.FailOn("HasAdminGrant", boom)
	if _, err := s.HasAdminGrant(context.Background(), "u"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	s.FailOn("HasAdminGrant", nil)
	if _, err := s.HasAdminGrant(context.Background(), "u"); err != nil {
		t.Fatalf("expected cleared error, got %v", err)
	}
}

func runStoreContract(t *testing.T, open func(t *testing.T) contractStore) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("users", func(t *testing.T) {
		s := open(t)
		u := domain.User{ID: "u-1", Email: "a@example.com", PasswordHash: "hash", CreatedAt: base, UpdatedAt: base}
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		if err := s.CreateUser(ctx, domain.User{ID: "u-2", Email: "a@example.com", PasswordHash: "x", CreatedAt: base}); !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
		got, ok, err := s.GetUserByEmail(ctx, "a@example.com")
		if err != nil || !ok || got.ID != "u-1" {
			t.Fatalf("get by email: %+v ok=%v err=%v", got, ok, err)
		}
		if _, ok, err := s.GetUserByID(ctx, "missing"); err != nil || ok {
			t.Fatalf("expected missing user, ok=%v err=%v", ok, err)
		}
	})

	t.Run("author upsert keeps created_at", func(t *testing.T) {
		s := open(t)
		bio := "first"
		if _, err := s.UpsertAuthor(ctx, domain.Author{ID: "a-1", FullName: "Ann", Bio: &bio, CreatedAt: base}); err != nil {
			t.Fatalf("insert author: %v", err)
		}
		saved, err := s.UpsertAuthor(ctx, domain.Author{ID: "a-1", FullName: "Ann Perera", CreatedAt: base.Add(time.Hour)})
		if err != nil {
			t.Fatalf("update author: %v", err)
		}
		if saved.FullName != "Ann Perera" || saved.Bio != nil {
			t.Fatalf("unexpected author after update: %+v", saved)
		}
		if !saved.CreatedAt.Equal(base) {
			t.Fatalf("created_at changed: %v", saved.CreatedAt)
		}
		if _, ok, err := s.GetAuthor(ctx, "nobody"); err != nil || ok {
			t.Fatalf("expected missing author, ok=%v err=%v", ok, err)
		}
	})

	t.Run("authors with counts newest first", func(t *testing.T) {
		s := open(t)
		mustUpsertAuthor(t, s, "a-old", base)
		mustUpsertAuthor(t, s, "a-new", base.Add(time.Hour))
		mustCreateBook(t, s, "b-1", "a-old", base, true)
		mustCreateBook(t, s, "b-2", "a-old", base.Add(time.Minute), false)

		got, err := s.ListAuthorsWithBookCounts(ctx)
		if err != nil {
			t.Fatalf("list authors: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 authors, got %d", len(got))
		}
		if got[0].ID != "a-new" || got[0].BooksCount != 0 {
			t.Fatalf("unexpected first author: %+v", got[0])
		}
		if got[1].ID != "a-old" || got[1].BooksCount != 2 {
			t.Fatalf("unexpected second author: %+v", got[1])
		}
	})

	t.Run("book listings", func(t *testing.T) {
		s := open(t)
		mustCreateBook(t, s, "b-1", "a-1", base, true)
		mustCreateBook(t, s, "b-2", "a-1", base.Add(time.Minute), false)
		mustCreateBook(t, s, "b-3", "a-2", base.Add(2*time.Minute), true)

		all, err := s.ListBooks(ctx, BookFilter{})
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		assertBookIDs(t, all, "b-3", "b-2", "b-1")

		published, err := s.ListBooks(ctx, BookFilter{PublishedOnly: true})
		if err != nil {
			t.Fatalf("list published: %v", err)
		}
		assertBookIDs(t, published, "b-3", "b-1")

		mine, err := s.ListBooks(ctx, BookFilter{AuthorID: "a-1"})
		if err != nil {
			t.Fatalf("list by author: %v", err)
		}
		assertBookIDs(t, mine, "b-2", "b-1")

		got, ok, err := s.GetBook(ctx, "b-1")
		if err != nil || !ok {
			t.Fatalf("get book: ok=%v err=%v", ok, err)
		}
		if len(got.Tags) != 2 || got.Tags[0] != "fiction" || got.Tags[1] != "sinhala" {
			t.Fatalf("tags not preserved: %v", got.Tags)
		}
	})

	t.Run("publish state", func(t *testing.T) {
		s := open(t)
		mustCreateBook(t, s, "b-1", "a-1", base, false)

		at := base.Add(time.Hour)
		ok, err := s.SetPublishState(ctx, "b-1", true, &at)
		if err != nil || !ok {
			t.Fatalf("publish: ok=%v err=%v", ok, err)
		}
		got, _, _ := s.GetBook(ctx, "b-1")
		if !got.IsPublished || got.PublishedAt == nil || !got.PublishedAt.Equal(at) {
			t.Fatalf("unexpected published book: %+v", got)
		}

		for i := 0; i < 2; i++ {
			ok, err = s.SetPublishState(ctx, "b-1", false, nil)
			if err != nil || !ok {
				t.Fatalf("unpublish #%d: ok=%v err=%v", i, ok, err)
			}
		}
		got, _, _ = s.GetBook(ctx, "b-1")
		if got.IsPublished || got.PublishedAt != nil {
			t.Fatalf("unexpected unpublished book: %+v", got)
		}

		ok, err = s.SetPublishState(ctx, "missing", true, &at)
		if err != nil || ok {
			t.Fatalf("expected missing book to report false, ok=%v err=%v", ok, err)
		}
	})

	t.Run("content update and delete are owner scoped", func(t *testing.T) {
		s := open(t)
		mustCreateBook(t, s, "b-1", "a-1", base, true)

		cover := "https://cdn/cover.png"
		content := domain.BookContent{
			Title:         "Renamed",
			Description:   "new",
			PriceLKR:      900,
			Tags:          []string{"poetry"},
			AllowDownload: true,
			CoverImageURL: &cover,
			PDFURL:        "https://cdn/new.pdf",
			PDFPath:       "a-1/2-new.pdf",
		}
		if ok, err := s.UpdateBookContent(ctx, "b-1", "a-2", content); err != nil || ok {
			t.Fatalf("expected foreign author update to miss, ok=%v err=%v", ok, err)
		}
		if ok, err := s.UpdateBookContent(ctx, "b-1", "a-1", content); err != nil || !ok {
			t.Fatalf("owner update: ok=%v err=%v", ok, err)
		}
		if ok, err := s.UpdateBookContent(ctx, "b-1", "a-1", content); err != nil || !ok {
			t.Fatalf("repeated owner update must still report found: ok=%v err=%v", ok, err)
		}
		got, _, _ := s.GetBook(ctx, "b-1")
		if got.Title != "Renamed" || got.PDFPath != "a-1/2-new.pdf" || got.CoverImageURL == nil || *got.CoverImageURL != cover {
			t.Fatalf("unexpected updated book: %+v", got)
		}
		if !got.IsPublished || got.PublishedAt == nil {
			t.Fatalf("content update must not touch publish state: %+v", got)
		}

		if ok, err := s.DeleteBook(ctx, "b-1", "a-2"); err != nil || ok {
			t.Fatalf("expected foreign delete to miss, ok=%v err=%v", ok, err)
		}
		if ok, err := s.DeleteBook(ctx, "b-1", "a-1"); err != nil || !ok {
			t.Fatalf("owner delete: ok=%v err=%v", ok, err)
		}
		if _, ok, _ := s.GetBook(ctx, "b-1"); ok {
			t.Fatalf("expected book to be gone")
		}
	})

	t.Run("admin grants", func(t *testing.T) {
		s := open(t)
		if ok, err := s.HasAdminGrant(ctx, "u-1"); err != nil || ok {
			t.Fatalf("expected no grant, ok=%v err=%v", ok, err)
		}
		if err := s.GrantAdmin(ctx, "u-1"); err != nil {
			t.Fatalf("grant: %v", err)
		}
		if err := s.GrantAdmin(ctx, "u-1"); err != nil {
			t.Fatalf("repeated grant: %v", err)
		}
		if ok, err := s.HasAdminGrant(ctx, "u-1"); err != nil || !ok {
			t.Fatalf("expected grant, ok=%v err=%v", ok, err)
		}
		grants, err := s.ListAdminGrants(ctx)
		if err != nil || len(grants) != 1 || grants[0].UserID != "u-1" {
			t.Fatalf("unexpected grants: %+v err=%v", grants, err)
		}
		if ok, err := s.RevokeAdmin(ctx, "u-1"); err != nil || !ok {
			t.Fatalf("revoke: ok=%v err=%v", ok, err)
		}
		if ok, err := s.RevokeAdmin(ctx, "u-1"); err != nil || ok {
			t.Fatalf("second revoke should report false, ok=%v err=%v", ok, err)
		}
	})
}

func mustUpsertAuthor(t *testing.T, s AuthorStore, id string, createdAt time.Time) {
	t.Helper()
	if _, err := s.UpsertAuthor(context.Background(), domain.Author{ID: id, FullName: "Author " + id, CreatedAt: createdAt}); err != nil {
		t.Fatalf("upsert author %s: %v", id, err)
	}
}

func mustCreateBook(t *testing.T, s BookStore, id, authorID string, createdAt time.Time, published bool) {
	t.Helper()
	b := domain.Book{
		ID:          id,
		AuthorID:    authorID,
		Title:       "Book " + id,
		PriceLKR:    500,
		Tags:        []string{"fiction", "sinhala"},
		PDFURL:      "https://cdn/" + id + ".pdf",
		PDFPath:     authorID + "/" + id + ".pdf",
		IsPublished: published,
		CreatedAt:   createdAt,
	}
	if published {
		at := createdAt
		b.PublishedAt = &at
	}
	if err := s.CreateBook(context.Background(), b); err != nil {
		t.Fatalf("create book %s: %v", id, err)
	}
}

func assertBookIDs(t *testing.T, books []domain.Book, want ...string) {
	t.Helper()
	if len(books) != len(want) {
		t.Fatalf("expected %d books, got %d", len(want), len(books))
	}
	for i, id := range want {
		if books[i].ID != id {
			t.Fatalf("book[%d] = %s, want %s", i, books[i].ID, id)
		}
	}
}
