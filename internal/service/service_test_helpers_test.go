package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.AttendanceRecord{},
		&domain.Member{},
		&domain.ExcuseReport{},
		&domain.Notice{},
		&domain.PointLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func fixedClock(ts time.Time) Clock {
	return ClockFunc(func() time.Time { return ts })
}
