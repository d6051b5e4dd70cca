package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/directdebit/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnsupportedDialect is returned for databases the embedded schema does not target.
// MySQL connects through pkg/db but its schema is managed outside this module.
var ErrUnsupportedDialect = errors.New("migrations: unsupported dialect")

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("database auto migrate disabled")
			return nil
		}
		return Apply(conn, cfg.DBType)
	}),
)

// Apply migrates conn with the runner for its dialect. Only postgres and sqlite are targets.
func Apply(conn *gorm.DB, dbType string) error {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	case "sqlite":
		return ApplySchema(conn)
	default:
		return fmt.Errorf("%w %q: apply the schema manually", ErrUnsupportedDialect, dbType)
	}
}
