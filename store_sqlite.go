package newsagg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slowQueryThresholdSeconds = 3
)

// SQLiteStore is a `DocumentStore` on a SQLite database file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at `path`.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for db: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             slowQueryThresholdSeconds * time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// migrate the schema
	if err := db.AutoMigrate(&Article{}); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return &SQLiteStore{
		db: db,
	}, nil
}

// Insert appends given rows.
func (s *SQLiteStore) Insert(ctx context.Context, articles []Article) ([]Article, error) {
	if len(articles) == 0 {
		return []Article{}, nil
	}

	if err := s.db.WithContext(ctx).Create(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to insert articles: %w", err)
	}
	return articles, nil
}

// FindByKeyword returns all rows with given keyword in write order.
func (s *SQLiteStore) FindByKeyword(ctx context.Context, keyword string) (articles []Article, err error) {
	err = s.db.WithContext(ctx).
		Where("keyword = ?", keyword).
		Order("seq ASC").
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find articles with keyword '%s': %w", keyword, err)
	}
	return articles, nil
}

// DeleteCachedBefore deletes rows cached before `cutoff`.
func (s *SQLiteStore) DeleteCachedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("cached_at < ?", cutoff).Delete(&Article{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete articles cached before %s: %w", cutoff.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}

// SetFlag sets `flag` on the row with given id.
func (s *SQLiteStore) SetFlag(ctx context.Context, id string, flag ArticleFlag) (*Article, error) {
	if !flag.valid() {
		return nil, fmt.Errorf("unknown article flag: '%s'", flag)
	}

	result := s.db.WithContext(ctx).Model(&Article{}).Where("id = ?", id).Update(string(flag), true)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update article with id '%s': %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrArticleNotFound
	}

	var article Article
	if err := s.db.WithContext(ctx).First(&article, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to fetch article with id '%s': %w", id, err)
	}
	return &article, nil
}

// FindFlagged returns rows with `flag` set in write order.
func (s *SQLiteStore) FindFlagged(ctx context.Context, flag ArticleFlag) (articles []Article, err error) {
	if !flag.valid() {
		return nil, fmt.Errorf("unknown article flag: '%s'", flag)
	}

	err = s.db.WithContext(ctx).
		Where(map[string]any{string(flag): true}).
		Order("seq ASC").
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find articles marked as %s: %w", flag, err)
	}
	return articles, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
