package version

import (
	"fmt"

	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens a gorm connection using the driver named by
// static_cluster_parameters.db (§6): "sqlite" or "postgres". The sqlite
// driver treats cfg.Database as a filesystem path (":memory:" for tests);
// the postgres driver treats it as a DSN.
func Connect(cfg topology.DB) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch cfg.Driver {
	case "", "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.Database), gcfg)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite version store at %s: %w", cfg.Database, err)
		}
		return db, nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.Database), gcfg)
		if err != nil {
			return nil, fmt.Errorf("opening postgres version store: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported version store driver %q", cfg.Driver)
	}
}
