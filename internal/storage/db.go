package storage

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/samims/notifier/internal/config"
)

// Connect opens the configured database, verifies it and applies pending
// migrations. DB_DRIVER=pgx targets Postgres, DB_DRIVER=sqlite a local file.
func Connect(ctx context.Context, dbCfg config.DBConfig) (*sqlx.DB, error) {
	dsn := dbCfg.URL
	if dbCfg.Driver == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(dbCfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dbCfg.Driver, err)
	}

	if dbCfg.Driver == "sqlite" {
		// one writer; also keeps a :memory: database alive on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(dbCfg.MaxOpenConn)
		db.SetConnMaxIdleTime(dbCfg.ConnMaxIdle)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dbCfg.Driver, err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}

// sqliteDSN stores timestamps in a sortable text format and turns on
// foreign keys for every pooled connection.
func sqliteDSN(dsn string) string {
	params := []string{"_time_format=sqlite", "_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
