package domain

import "time"

// Principal is an authenticated identity resolved from a bearer token.
// It is never persisted by the bookstore.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// User is an identity-provider account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Author is the public profile of a principal that publishes books.
// Its ID equals the owning principal's ID.
type Author struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Bio             *string   `json:"bio"`
	ProfileImageURL *string   `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// AuthorSummary is an author together with the count of all their books,
// regardless of publish state.
type AuthorSummary struct {
	Author
	BooksCount int64 `json:"books_count"`
}

// Book is a PDF listing owned by an author.
type Book struct {
	ID            string     `json:"id"`
	AuthorID      string     `json:"author_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	PriceLKR      int64      `json:"price_lkr"`
	Tags          []string   `json:"tags"`
	AllowDownload bool       `json:"allow_download"`
	CoverImageURL *string    `json:"cover_image_url"`
	PDFURL        string     `json:"pdf_url"`
	PDFPath       string     `json:"pdf_path"`
	IsPublished   bool       `json:"is_published"`
	PublishedAt   *time.Time `json:"published_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// BookContent holds the author-editable fields of a book.
// It carries no publish state.
type BookContent struct {
	Title         string
	Description   string
	PriceLKR      int64
	Tags          []string
	AllowDownload bool
	CoverImageURL *string
	PDFURL        string
	PDFPath       string
}

// AdminGrant marks a principal as holding the admin role in the relational store.
type AdminGrant struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
