package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/friendsincode/slidify/internal/config"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/rs/zerolog"
)

func TestPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectPing()
	if err := Ping(context.Background(), sqlDB); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	if err := Ping(context.Background(), sqlDB); err == nil {
		t.Fatal("expected ping failure")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPingNilDB(t *testing.T) {
	if err := Ping(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil database")
	}
}

func TestConnectUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestMigrateSQLite(t *testing.T) {
	database, err := Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(database)

	if err := RegisterCallbacks(database, zerolog.Nop()); err != nil {
		t.Fatalf("RegisterCallbacks: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	show := models.Slideshow{ID: "s1", Name: "Trip", Images: []string{"a.jpg", "b.jpg"}, Duration: 3}
	if err := database.Create(&show).Error; err != nil {
		t.Fatalf("create slideshow: %v", err)
	}
	var loaded models.Slideshow
	if err := database.First(&loaded, "id = ?", "s1").Error; err != nil {
		t.Fatalf("load slideshow: %v", err)
	}
	if len(loaded.Images) != 2 || loaded.Images[0] != "a.jpg" {
		t.Fatalf("images not round-tripped in order: %v", loaded.Images)
	}

	for _, table := range []string{"music", "upload_sessions", "session_images", "subscriptions", "feedback", "waitlist"} {
		if !database.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}
