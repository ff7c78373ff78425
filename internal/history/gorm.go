package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// pgUniqueViolation is the SQLSTATE for duplicate keys.
const pgUniqueViolation = "23505"

type matchRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	RivalryKey  string `gorm:"index;not null"`
	RoomCode    string `gorm:"size:16;not null"`
	Winner      string `gorm:"not null"`
	Loser       string `gorm:"not null"`
	WinnerScore int    `gorm:"not null"`
	LoserScore  int    `gorm:"not null"`
	BestOf      int    `gorm:"not null"`
	DurationSec int
	FinishedAt  time.Time `gorm:"index;not null"`
}

func (matchRow) TableName() string { return "match_records" }

func toRow(rec MatchRecord) matchRow {
	return matchRow{
		ID:          rec.ID,
		RivalryKey:  RivalryKey(rec.Winner, rec.Loser),
		RoomCode:    rec.RoomCode,
		Winner:      rec.Winner,
		Loser:       rec.Loser,
		WinnerScore: rec.WinnerScore,
		LoserScore:  rec.LoserScore,
		BestOf:      rec.BestOf,
		DurationSec: rec.DurationSec,
		FinishedAt:  rec.FinishedAt,
	}
}

func (r matchRow) record() MatchRecord {
	return MatchRecord{
		ID:          r.ID,
		RoomCode:    r.RoomCode,
		Winner:      r.Winner,
		Loser:       r.Loser,
		WinnerScore: r.WinnerScore,
		LoserScore:  r.LoserScore,
		BestOf:      r.BestOf,
		DurationSec: r.DurationSec,
		FinishedAt:  r.FinishedAt,
	}
}

// GormStore archives matches in Postgres.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to Postgres and migrates the match table.
func OpenGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&matchRow{}); err != nil {
		return nil, fmt.Errorf("migrate match_records: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) Save(ctx context.Context, rec MatchRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	row := toRow(rec)
	err := g.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("save match %s: %w", rec.ID, err)
	}
	return nil
}

func (g *GormStore) Rivalry(ctx context.Context, a, b string) (RivalryStats, error) {
	var rows []matchRow
	err := g.db.WithContext(ctx).
		Where("rivalry_key = ?", RivalryKey(a, b)).
		Order("finished_at DESC").
		Find(&rows).Error
	if err != nil {
		return RivalryStats{}, fmt.Errorf("load rivalry: %w", err)
	}

	recs := make([]MatchRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.record())
	}
	return buildRivalry(a, b, recs), nil
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
