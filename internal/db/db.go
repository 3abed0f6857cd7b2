package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/meditech-nic/backend/internal/config"
	"github.com/meditech-nic/backend/internal/logger"
)

// Connect opens the store for the configured driver. SQLite is the default
// local single-profile store; MySQL is available for server deployments.
func Connect(cfg config.Config, logg *logger.Logger) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.DBDriver) {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DBDSN)
	case "mysql":
		dialector = mysql.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.DBDriver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.DBDriver, err)
	}

	// Cascade deletes depend on FK enforcement, which SQLite leaves off
	// unless asked. The default DSN carries the pragma; repeat it here for
	// custom DSNs that forget.
	if gdb.Dialector.Name() == "sqlite" {
		if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("db: enable foreign keys: %w", err)
		}
	}

	logg.Info("store connected", "driver", cfg.DBDriver)
	return gdb, nil
}
