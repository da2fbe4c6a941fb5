package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names are fixed so the schema can be
// shared with other clients of the same database.
type UserModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (UserModel) TableName() string { return "users" }

type AuthorModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	FullName        string    `gorm:"column:full_name;not null"`
	Bio             *string   `gorm:"column:bio;type:text"`
	ProfileImageURL *string   `gorm:"column:profile_image_url"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index"`
}

func (AuthorModel) TableName() string { return "authors" }

type BookModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	AuthorID      string         `gorm:"column:author_id;not null;index"`
	Title         string         `gorm:"column:title;not null"`
	Description   string         `gorm:"column:description;type:text"`
	PriceLKR      int64          `gorm:"column:price_lkr;not null;default:0"`
	Tags          datatypes.JSON `gorm:"column:tags"`
	AllowDownload bool           `gorm:"column:allow_download;not null;default:false"`
	CoverImageURL *string        `gorm:"column:cover_image_url"`
	PDFURL        string         `gorm:"column:pdf_url;not null"`
	PDFPath       string         `gorm:"column:pdf_path;not null"`
	IsPublished   bool           `gorm:"column:is_published;not null;default:false;index"`
	PublishedAt   *time.Time     `gorm:"column:published_at"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null;index"`
}

func (BookModel) TableName() string { return "books" }

type AdminModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (AdminModel) TableName() string { return "admins" }
