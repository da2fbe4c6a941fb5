package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bookstore/pkg/domain"
)

// MemoryStore keeps all records in-process. Service and handler tests use it
// in place of GormStore; FailOn injects store errors per method.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User // key: user ID
	email   map[string]string      // email -> user ID
	authors map[string]domain.Author
	books   map[string]domain.Book
	admins  map[string]domain.AdminGrant
	seq     int64
	order   map[string]int64 // insertion sequence, breaks created_at ties
	failing map[string]error
}

var (
	_ UserStore    = (*MemoryStore)(nil)
	_ CatalogStore = (*MemoryStore)(nil)
)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		email:   make(map[string]string),
		authors: make(map[string]domain.Author),
		books:   make(map[string]domain.Book),
		admins:  make(map[string]domain.AdminGrant),
		order:   make(map[string]int64),
		failing: make(map[string]error),
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, method)
		return
	}
	m.failing[method] = err
}

func (m *MemoryStore) fail(method string) error {
	return m.failing[method]
}

func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateUser"); err != nil {
		return err
	}
	key := strings.ToLower(u.Email)
	if _, taken := m.email[key]; taken {
		return ErrEmailTaken
	}
	m.users[u.ID] = u
	m.email[key] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetUserByEmail"); err != nil {
		return domain.User{}, false, err
	}
	id, ok := m.email[strings.ToLower(email)]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetUserByID"); err != nil {
		return domain.User{}, false, err
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) UpsertAuthor(_ context.Context, a domain.Author) (domain.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertAuthor"); err != nil {
		return domain.Author{}, err
	}
	if existing, ok := m.authors[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		m.seq++
		m.order["author:"+a.ID] = m.seq
	}
	m.authors[a.ID] = a
	return a, nil
}

func (m *MemoryStore) GetAuthor(_ context.Context, id string) (domain.Author, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetAuthor"); err != nil {
		return domain.Author{}, false, err
	}
	a, ok := m.authors[id]
	return a, ok, nil
}

func (m *MemoryStore) ListAuthorsWithBookCounts(_ context.Context) ([]domain.AuthorSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListAuthorsWithBookCounts"); err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(m.authors))
	for _, b := range m.books {
		counts[b.AuthorID]++
	}
	res := make([]domain.AuthorSummary, 0, len(m.authors))
	for _, a := range m.authors {
		res = append(res, domain.AuthorSummary{Author: a, BooksCount: counts[a.ID]})
	}
	sort.Slice(res, func(i, j int) bool {
		return m.newerFirst("author:", res[i].ID, res[i].CreatedAt, res[j].ID, res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) CreateBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateBook"); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Tags = append([]string{}, b.Tags...)
	m.seq++
	m.order["book:"+b.ID] = m.seq
	m.books[b.ID] = b
	return nil
}

func (m *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetBook"); err != nil {
		return domain.Book{}, false, err
	}
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBooks(_ context.Context, filter BookFilter) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListBooks"); err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		if filter.AuthorID != "" && b.AuthorID != filter.AuthorID {
			continue
		}
		if filter.PublishedOnly && !b.IsPublished {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		return m.newerFirst("book:", res[i].ID, res[i].CreatedAt, res[j].ID, res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) UpdateBookContent(_ context.Context, id, authorID string, c domain.BookContent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateBookContent"); err != nil {
		return false, err
	}
	b, ok := m.books[id]
	if !ok || b.AuthorID != authorID {
		return false, nil
	}
	b.Title = c.Title
	b.Description = c.Description
	b.PriceLKR = c.PriceLKR
	b.Tags = append([]string{}, c.Tags...)
	b.AllowDownload = c.AllowDownload
	b.CoverImageURL = c.CoverImageURL
	b.PDFURL = c.PDFURL
	b.PDFPath = c.PDFPath
	m.books[id] = b
	return true, nil
}

func (m *MemoryStore) DeleteBook(_ context.Context, id, authorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteBook"); err != nil {
		return false, err
	}
	b, ok := m.books[id]
	if !ok || b.AuthorID != authorID {
		return false, nil
	}
	delete(m.books, id)
	delete(m.order, "book:"+id)
	return true, nil
}

func (m *MemoryStore) SetPublishState(_ context.Context, id string, published bool, at *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SetPublishState"); err != nil {
		return false, err
	}
	b, ok := m.books[id]
	if !ok {
		return false, nil
	}
	b.IsPublished = published
	b.PublishedAt = nil
	if at != nil {
		ts := at.UTC()
		b.PublishedAt = &ts
	}
	m.books[id] = b
	return true, nil
}

func (m *MemoryStore) HasAdminGrant(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("HasAdminGrant"); err != nil {
		return false, err
	}
	_, ok := m.admins[userID]
	return ok, nil
}

func (m *MemoryStore) GrantAdmin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GrantAdmin"); err != nil {
		return err
	}
	if _, ok := m.admins[userID]; !ok {
		m.admins[userID] = domain.AdminGrant{UserID: userID, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (m *MemoryStore) RevokeAdmin(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RevokeAdmin"); err != nil {
		return false, err
	}
	_, ok := m.admins[userID]
	delete(m.admins, userID)
	return ok, nil
}

func (m *MemoryStore) ListAdminGrants(_ context.Context) ([]domain.AdminGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListAdminGrants"); err != nil {
		return nil, err
	}
	res := make([]domain.AdminGrant, 0, len(m.admins))
	for _, g := range m.admins {
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].UserID < res[j].UserID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) newerFirst(prefix, idA string, a time.Time, idB string, b time.Time) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return m.order[prefix+idA] > m.order[prefix+idB]
}
