// Package db opens the gorm connection and keeps the schema migrated. The
// backend is picked from the DSN: postgres:// URLs use the postgres driver,
// mysql tcp DSNs use the mysql driver, anything else is treated as a local
// sqlite file.
package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/chat"
)

func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	case strings.Contains(dsn, "@tcp("):
		dialector = mysql.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return gdb, nil
}

// Migrate creates or updates the tables the bot owns.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&chat.Session{}, &chat.Message{}, &chat.ReplyJob{}); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
