package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type videoRecord struct {
	Name           string `gorm:"primaryKey"`
	ClipsCount     int
	ProcessedDate  *string
	ManuallyMarked bool
	UpdatedAt      time.Time
}

func (videoRecord) TableName() string {
	return "processed_videos"
}

// SQLStore keeps the ledger in a SQLite database
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if err := db.AutoMigrate(&videoRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) IsProcessed(name string) (bool, error) {
	var count int64
	if err := s.db.Model(&videoRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) Get(name string) (Entry, error) {
	var rec videoRecord
	err := s.db.First(&rec, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return rec.entry(), nil
}

func (s *SQLStore) Record(name string, e Entry) error {
	rec := videoRecord{
		Name:           name,
		ClipsCount:     e.ClipsCount,
		ProcessedDate:  e.ProcessedDate,
		ManuallyMarked: e.ManuallyMarked,
	}
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (s *SQLStore) Remove(name string) error {
	return s.db.Where("name = ?", name).Delete(&videoRecord{}).Error
}

func (s *SQLStore) All() (map[string]Entry, error) {
	var recs []videoRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return nil, err
	}

	entries := make(map[string]Entry, len(recs))
	for _, r := range recs {
		entries[r.Name] = r.entry()
	}
	return entries, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r videoRecord) entry() Entry {
	return Entry{
		ClipsCount:     r.ClipsCount,
		ProcessedDate:  r.ProcessedDate,
		ManuallyMarked: r.ManuallyMarked,
	}
}
