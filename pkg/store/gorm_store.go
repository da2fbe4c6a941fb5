package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookstore/pkg/domain"
)

const migrateLockID int64 = 41772207

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// DBConfig selects and configures the relational backend.
type DBConfig struct {
	Driver string
	DSN    string
	// DataDir holds the default SQLite file when DSN is empty.
	DataDir string
	Debug   bool
}

// GormStore implements UserStore and CatalogStore on GORM.
type GormStore struct {
	db     *gorm.DB
	driver string
}

var (
	_ UserStore    = (*GormStore)(nil)
	_ CatalogStore = (*GormStore)(nil)
)

// NewGormStore opens the database and runs auto-migrations.
func NewGormStore(cfg DBConfig) (*GormStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverPostgres
	}
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join(cfg.DataDir, "bookstore.db")
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logLevel := gormlogger.Warn
	if cfg.Debug {
		logLevel = gormlogger.Info
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &GormStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) migrate() error {
	run := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &AuthorModel{}, &BookModel{}, &AdminModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if s.driver != DriverPostgres {
		return run(s.db)
	}
	return withMigrationLock(s.db, run)
}

// withMigrationLock serializes migrations across replicas with a Postgres advisory lock.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a new account. Duplicate emails yield ErrEmailTaken.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpsertAuthor inserts or updates an author profile; created_at survives updates.
func (s *GormStore) UpsertAuthor(ctx context.Context, a domain.Author) (domain.Author, error) {
	model := authorToModel(a)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "bio", "profile_image_url"}),
	}).Create(&model).Error
	if err != nil {
		return domain.Author{}, err
	}
	saved, ok, err := s.GetAuthor(ctx, a.ID)
	if err != nil {
		return domain.Author{}, err
	}
	if !ok {
		return domain.Author{}, fmt.Errorf("author %s missing after upsert", a.ID)
	}
	return saved, nil
}

// GetAuthor fetches an author profile by principal ID.
func (s *GormStore) GetAuthor(ctx context.Context, id string) (domain.Author, bool, error) {
	var model AuthorModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Author{}, false, nil
		}
		return domain.Author{}, false, err
	}
	return authorFromModel(model), true, nil
}

type authorCountRow struct {
	ID              string
	FullName        string
	Bio             *string
	ProfileImageURL *string
	CreatedAt       time.Time
	BooksCount      int64
}

// ListAuthorsWithBookCounts returns authors newest first with their total book counts.
func (s *GormStore) ListAuthorsWithBookCounts(ctx context.Context) ([]domain.AuthorSummary, error) {
	var rows []authorCountRow
	err := s.db.WithContext(ctx).
		Table("authors").
		Select("authors.id, authors.full_name, authors.bio, authors.profile_image_url, authors.created_at, COUNT(books.id) AS books_count").
		Joins("LEFT JOIN books ON books.author_id = authors.id").
		Group("authors.id, authors.full_name, authors.bio, authors.profile_image_url, authors.created_at").
		Order("authors.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.AuthorSummary, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.AuthorSummary{
			Author: domain.Author{
				ID:              r.ID,
				FullName:        r.FullName,
				Bio:             r.Bio,
				ProfileImageURL: r.ProfileImageURL,
				CreatedAt:       r.CreatedAt,
			},
			BooksCount: r.BooksCount,
		})
	}
	return res, nil
}

// CreateBook inserts a new book row.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetBook fetches a book by ID regardless of publish state.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	b, err := bookFromModel(model)
	if err != nil {
		return domain.Book{}, false, err
	}
	return b, true, nil
}

// ListBooks returns books matching filter, newest first.
func (s *GormStore) ListBooks(ctx context.Context, filter BookFilter) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.AuthorID != "" {
		tx = tx.Where("author_id = ?", filter.AuthorID)
	}
	if filter.PublishedOnly {
		tx = tx.Where("is_published = ?", true)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		b, err := bookFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

// UpdateBookContent rewrites the author-editable columns of a book owned by authorID.
func (s *GormStore) UpdateBookContent(ctx context.Context, id, authorID string, c domain.BookContent) (bool, error) {
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("id = ? AND author_id = ?", id, authorID).
		Updates(map[string]any{
			"title":           c.Title,
			"description":     c.Description,
			"price_lkr":       c.PriceLKR,
			"tags":            tags,
			"allow_download":  c.AllowDownload,
			"cover_image_url": nullableString(c.CoverImageURL),
			"pdf_url":         c.PDFURL,
			"pdf_path":        c.PDFPath,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	return s.exists(ctx, &BookModel{}, "id = ? AND author_id = ?", id, authorID)
}

// DeleteBook removes a book owned by authorID.
func (s *GormStore) DeleteBook(ctx context.Context, id, authorID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ? AND author_id = ?", id, authorID).Delete(&BookModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetPublishState writes is_published and published_at in one update.
func (s *GormStore) SetPublishState(ctx context.Context, id string, published bool, at *time.Time) (bool, error) {
	var publishedAt any
	if at != nil {
		publishedAt = at.UTC()
	}
	res := s.db.WithContext(ctx).Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_published": published,
			"published_at": publishedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	// MySQL reports zero affected rows when the values did not change.
	return s.exists(ctx, &BookModel{}, "id = ?", id)
}

// HasAdminGrant reports whether userID holds an admin grant.
func (s *GormStore) HasAdminGrant(ctx context.Context, userID string) (bool, error) {
	return s.exists(ctx, &AdminModel{}, "user_id = ?", userID)
}

// GrantAdmin records an admin grant; granting twice is a no-op.
func (s *GormStore) GrantAdmin(ctx context.Context, userID string) error {
	model := AdminModel{UserID: userID, CreatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// RevokeAdmin deletes an admin grant and reports whether one existed.
func (s *GormStore) RevokeAdmin(ctx context.Context, userID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&AdminModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListAdminGrants returns all grants oldest first.
func (s *GormStore) ListAdminGrants(ctx context.Context) ([]domain.AdminGrant, error) {
	var models []AdminModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AdminGrant, 0, len(models))
	for _, m := range models {
		res = append(res, domain.AdminGrant{UserID: m.UserID, CreatedAt: m.CreatedAt})
	}
	return res, nil
}

func (s *GormStore) exists(ctx context.Context, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func encodeTags(tags []string) (datatypes.JSON, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return raw, nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func authorToModel(a domain.Author) AuthorModel {
	return AuthorModel{
		ID:              a.ID,
		FullName:        a.FullName,
		Bio:             a.Bio,
		ProfileImageURL: a.ProfileImageURL,
		CreatedAt:       a.CreatedAt,
	}
}

func authorFromModel(m AuthorModel) domain.Author {
	return domain.Author{
		ID:              m.ID,
		FullName:        m.FullName,
		Bio:             m.Bio,
		ProfileImageURL: m.ProfileImageURL,
		CreatedAt:       m.CreatedAt,
	}
}

func bookToModel(b domain.Book) (BookModel, error) {
	tags, err := encodeTags(b.Tags)
	if err != nil {
		return BookModel{}, err
	}
	return BookModel{
		ID:            b.ID,
		AuthorID:      b.AuthorID,
		Title:         b.Title,
		Description:   b.Description,
		PriceLKR:      b.PriceLKR,
		Tags:          tags,
		AllowDownload: b.AllowDownload,
		CoverImageURL: b.CoverImageURL,
		PDFURL:        b.PDFURL,
		PDFPath:       b.PDFPath,
		IsPublished:   b.IsPublished,
		PublishedAt:   b.PublishedAt,
		CreatedAt:     b.CreatedAt,
	}, nil
}

func bookFromModel(m BookModel) (domain.Book, error) {
	tags, err := decodeTags(m.Tags)
	if err != nil {
		return domain.Book{}, err
	}
	return domain.Book{
		ID:            m.ID,
		AuthorID:      m.AuthorID,
		Title:         m.Title,
		Description:   m.Description,
		PriceLKR:      m.PriceLKR,
		Tags:          tags,
		AllowDownload: m.AllowDownload,
		CoverImageURL: m.CoverImageURL,
		PDFURL:        m.PDFURL,
		PDFPath:       m.PDFPath,
		IsPublished:   m.IsPublished,
		PublishedAt:   m.PublishedAt,
		CreatedAt:     m.CreatedAt,
	}, nil
}
