package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/creditbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/creditbook/internal/store/jsonstore"
	"github.com/MarkoPoloResearchLab/creditbook/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	driverPostgres = "postgres"
	driverPgx      = "pgx"
	driverSQLite   = "sqlite"
	driverJSON     = "json"

	schemePgx           = "pgx://"
	schemeFile          = "file://"
	defaultSQLiteFile   = "creditbook.db"
	snapshotFileSuffix  = ".json"
	sqliteMemoryAddress = ":memory:"
)

// openStore picks a snapshot store for dsn and prepares its schema.
func openStore(ctx context.Context, dsn string) (ledger.SnapshotStore, func() error, error) {
	driver, target, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}
	switch driver {
	case driverJSON:
		return jsonstore.New(target), func() error { return nil }, nil
	case driverPgx:
		pool, err := pgxpool.New(ctx, target)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() error { pool.Close(); return nil }, nil
	}

	gormDB, cleanup, err := openDatabase(driver, target)
	if err != nil {
		return nil, nil, err
	}
	store := gormstore.New(gormDB)
	if err := store.Migrate(ctx); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

func openDatabase(driver string, target string) (*gorm.DB, func() error, error) {
	var (
		db  *gorm.DB
		err error
	)
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(target), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(target), cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, sqlDB.Close, nil
}

// resolveDriver maps dsn to a driver name and the target handed to it.
func resolveDriver(dsn string) (string, string, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return driverPostgres, trimmed, nil
	case strings.HasPrefix(trimmed, schemePgx):
		return driverPgx, "postgres://" + strings.TrimPrefix(trimmed, schemePgx), nil
	case strings.HasPrefix(trimmed, schemeFile):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("parse file url: %w", err)
		}
		path := parsed.Host + parsed.Path
		if path == "" {
			return "", "", fmt.Errorf("file url %q has no path", trimmed)
		}
		return driverJSON, path, nil
	case strings.HasSuffix(trimmed, snapshotFileSuffix):
		return driverJSON, trimmed, nil
	case strings.HasPrefix(trimmed, "sqlite://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == sqliteMemoryAddress {
		return path, nil
	}
	if path == "" {
		path = defaultSQLiteFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(".", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}
