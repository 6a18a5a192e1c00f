package syncstatus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// gormRecord is the Postgres row layout.
type gormRecord struct {
	DataType     string    `gorm:"primaryKey;size:32"`
	Symbol       string    `gorm:"primaryKey;size:32"`
	Timeframe    string    `gorm:"primaryKey;size:8"`
	Source       string    `gorm:"primaryKey;size:32"`
	Status       string    `gorm:"size:16;not null;index"`
	LastSyncAt   time.Time `gorm:"not null"`
	NextSyncAt   *time.Time
	RetryCount   int `gorm:"not null;default:0"`
	ErrorMessage *string
	Metadata     map[string]string `gorm:"serializer:json;type:jsonb"`
	UpdatedAt    time.Time
}

func (gormRecord) TableName() string {
	return "sync_status"
}

// GormStore keeps records in a managed Postgres database.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore connects to Postgres at dsn and migrates the sync_status table.
func OpenGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open gorm connection and migrates the sync_status table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&gormRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sync_status: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the record for key or ErrNotFound.
func (s *GormStore) Get(ctx context.Context, key Key) (*Record, error) {
	var row gormRecord
	err := s.db.WithContext(ctx).
		Where("data_type = ? AND symbol = ? AND timeframe = ? AND source = ?",
			key.DataType, key.Symbol, string(key.Timeframe), key.Source).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	rec := fromGorm(row)
	return &rec, nil
}

// Upsert inserts or replaces the record for rec.Key().
func (s *GormStore) Upsert(ctx context.Context, rec Record) error {
	row := toGorm(rec)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "data_type"}, {Name: "symbol"}, {Name: "timeframe"}, {Name: "source"},
			},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert sync status: %w", err)
	}
	return nil
}

// List returns records matching filter ordered by key.
func (s *GormStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&gormRecord{})
	if filter.DataType != "" {
		q = q.Where("data_type = ?", filter.DataType)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", domain.NormalizeSymbol(filter.Symbol))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var rows []gormRecord
	if err := q.Order("data_type, symbol, timeframe, source").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync status: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromGorm(row))
	}
	return out, nil
}

func toGorm(rec Record) gormRecord {
	row := gormRecord{
		DataType:   rec.DataType,
		Symbol:     rec.Symbol,
		Timeframe:  string(rec.Timeframe),
		Source:     rec.Source,
		Status:     string(rec.Status),
		LastSyncAt: rec.LastSyncAt.UTC(),
		NextSyncAt: rec.NextSyncAt,
		RetryCount: rec.RetryCount,
		Metadata:   nonNilMetadata(rec.Metadata),
	}
	if rec.ErrorMessage != "" {
		msg := rec.ErrorMessage
		row.ErrorMessage = &msg
	}
	return row
}

func fromGorm(row gormRecord) Record {
	rec := Record{
		DataType:   row.DataType,
		Symbol:     row.Symbol,
		Timeframe:  domain.Timeframe(row.Timeframe),
		Source:     row.Source,
		Status:     Status(row.Status),
		LastSyncAt: row.LastSyncAt.UTC(),
		RetryCount: row.RetryCount,
		Metadata:   nonNilMetadata(row.Metadata),
	}
	if row.NextSyncAt != nil {
		next := row.NextSyncAt.UTC()
		rec.NextSyncAt = &next
	}
	if row.ErrorMessage != nil {
		rec.ErrorMessage = *row.ErrorMessage
	}
	return rec
}
